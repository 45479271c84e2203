package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/surfit-labs/saw-core/pkg/canonicalize"
	"github.com/surfit-labs/saw-core/pkg/model"
)

// snapshotPolicy canonicalizes bundle and hashes the result, producing the
// policy_snapshot/policy_hash pair a run record is opened with. Two
// structurally identical bundles always produce the same policy_hash,
// since canonicalization sorts keys and fixes number formatting before
// hashing.
func snapshotPolicy(bundle model.PolicyBundle) (snapshot, hash string, err error) {
	canon, err := canonicalize.MarshalCanonical(bundle)
	if err != nil {
		return "", "", fmt.Errorf("engine: canonicalize policy bundle: %w", err)
	}
	sum := sha256.Sum256(canon)
	return string(canon), hex.EncodeToString(sum[:]), nil
}

// Fingerprint truncates a policy_hash to a short human-readable prefix
// for UI display.
func Fingerprint(policyHash string) string {
	const n = 12
	if len(policyHash) <= n {
		return policyHash
	}
	return policyHash[:n]
}
