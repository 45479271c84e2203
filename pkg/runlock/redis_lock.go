// Package runlock extends the ledger's per-run_id single-writer
// guarantee across multiple engine processes sharing one database.
// It is a Redis-backed mutex keyed on the
// run_id, acquired with an atomic SET NX carrying a TTL and released
// with a compare-and-delete Lua script. Passing no RunLocker to the
// ledger (never constructing a Lock) is a valid single-process
// deployment: the ledger's own in-process mutex is always held
// regardless of whether a distributed lock is configured.
package runlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "saw-ledger-lock:"

// unlockScript deletes the lock key only if it still holds the token
// this holder set, so one holder's unlock can never release a lock
// that a different holder has since acquired after this one's TTL
// expired.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Lock is a Redis-backed distributed mutex, one instance guarding every
// run_id via a per-call key.
type Lock struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a Lock against client. ttl bounds how long a single lock
// acquisition (i.e. one ledger append) may hold the key before it is
// eligible for another holder to steal it, guarding against a crashed
// process wedging a run_id's lock forever.
func New(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Lock{client: client, ttl: ttl}
}

// Lock blocks until it acquires the per-run_id lock (retrying on a
// short backoff) or ctx is canceled, returning an unlock function the
// caller must call exactly once to release it.
func (l *Lock) Lock(ctx context.Context, runID string) (func(), error) {
	key := keyPrefix + runID
	token, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("runlock: generate token: %w", err)
	}

	const retryDelay = 25 * time.Millisecond
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("runlock: acquire: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("runlock: acquire %s: %w", runID, ctx.Err())
		case <-time.After(retryDelay):
		}
	}

	unlock := func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), l.ttl)
		defer cancel()
		unlockScript.Run(unlockCtx, l.client, []string{key}, token)
	}
	return unlock, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
