package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/surfit-labs/saw-core/pkg/attestation"
	"github.com/surfit-labs/saw-core/pkg/config"
	"github.com/surfit-labs/saw-core/pkg/engine"
	"github.com/surfit-labs/saw-core/pkg/evidence"
	"github.com/surfit-labs/saw-core/pkg/ledger"
	"github.com/surfit-labs/saw-core/pkg/llmrecord"
	"github.com/surfit-labs/saw-core/pkg/policy"
	"github.com/surfit-labs/saw-core/pkg/registry"
	"github.com/surfit-labs/saw-core/pkg/resolver"
	"github.com/surfit-labs/saw-core/pkg/runlock"
	"github.com/surfit-labs/saw-core/pkg/runstore"
	"github.com/surfit-labs/saw-core/pkg/specvalidate"
	"github.com/surfit-labs/saw-core/pkg/tools"
)

// app bundles every dependency a sawctl subcommand needs. It is built
// once per invocation and torn down via Close.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	redis     *redis.Client
	Ledger    *ledger.Ledger
	RunStore  *runstore.SQLStore
	LLM       *llmrecord.Recorder
	llmStore  *llmrecord.SQLStore
	Engine    *engine.Engine
	Evidence  *evidence.Exporter
	Validator *specvalidate.Validator
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	postgres := strings.HasPrefix(cfg.DatabaseURL, "postgres://") || strings.HasPrefix(cfg.DatabaseURL, "postgresql://")
	driver := "sqlite"
	if postgres {
		driver = "postgres"
	}
	db, err := sql.Open(driver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("sawctl: open database: %w", err)
	}

	ledgerStore, err := ledger.NewSQLStore(ctx, db, postgres)
	if err != nil {
		return nil, fmt.Errorf("sawctl: init ledger store: %w", err)
	}
	runs, err := runstore.NewSQLStore(ctx, db, postgres)
	if err != nil {
		return nil, fmt.Errorf("sawctl: init run store: %w", err)
	}
	llmStore, err := llmrecord.NewSQLStore(ctx, db, postgres)
	if err != nil {
		return nil, fmt.Errorf("sawctl: init llm store: %w", err)
	}

	var locker ledger.RunLocker
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("sawctl: parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		locker = runlock.New(rdb, cfg.LockTTL)
	}

	lg := ledger.New(ledgerStore, locker)
	llm := llmrecord.New(llmStore)

	validator, err := specvalidate.New()
	if err != nil {
		return nil, fmt.Errorf("sawctl: compile spec schema: %w", err)
	}

	reg := registry.New()
	tools.Register(reg)

	blobs, err := evidence.NewLocalStore(cfg.EvidenceDir)
	if err != nil {
		return nil, fmt.Errorf("sawctl: init evidence store: %w", err)
	}
	exporter := evidence.New(lg, runs, blobs)

	eng := &engine.Engine{
		Policy:    policy.New(),
		Registry:  reg,
		Resolver:  resolver.Default,
		Ledger:    lg,
		RunStore:  runs,
		LLM:       llm,
		Tokens:    attestation.NewVerifier([]byte(cfg.AttestationKey)),
		Validator: validator,
		Logger:    slog.Default(),
	}

	return &app{
		cfg:       cfg,
		db:        db,
		redis:     rdb,
		Ledger:    lg,
		RunStore:  runs,
		LLM:       llm,
		llmStore:  llmStore,
		Engine:    eng,
		Evidence:  exporter,
		Validator: validator,
	}, nil
}

func (a *app) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return a.db.Close()
}
