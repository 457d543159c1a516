// Package audit persists policy.PolicyVerificationResult records to
// Postgres for observability and testability (spec.md §7 "the policy
// engine additionally returns a detailed trail for debugging"). Grounded
// on pkg/database/client.go's connection-pooling and migration idiom,
// trimmed to the single table a verification trail log needs.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/google/uuid"

	"github.com/certenio/ksi-go/pkg/policy"
)

const schema = `
CREATE TABLE IF NOT EXISTS ksi_verification_log (
	id            UUID PRIMARY KEY,
	context_id    UUID NOT NULL,
	policy_name   TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	error_code    TEXT NOT NULL DEFAULT '',
	rule_trail    JSONB NOT NULL,
	recorded_at   TIMESTAMPTZ NOT NULL
)`

// Config configures a Postgres-backed audit Log.
type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Log appends PolicyVerificationResult rows to a Postgres table.
type Log struct {
	db     *sql.DB
	logger *log.Logger
}

// Open connects to Postgres, configures the pool, and ensures the
// verification-log table exists.
func Open(cfg Config) (*Log, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("audit: DatabaseURL is required")
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: opening database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: pinging database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: applying schema: %w", err)
	}

	return &Log{db: db, logger: log.New(log.Writer(), "[ksi/audit] ", log.LstdFlags)}, nil
}

// Close releases the underlying connection pool.
func (l *Log) Close() error { return l.db.Close() }

// Record appends one verification result, tagged with the issuing
// context's id.
func (l *Log) Record(ctx context.Context, contextID uuid.UUID, policyName string, result policy.PolicyVerificationResult) error {
	trail, err := json.Marshal(result.RuleTrail)
	if err != nil {
		return fmt.Errorf("audit: marshaling rule trail: %w", err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO ksi_verification_log (id, context_id, policy_name, outcome, error_code, rule_trail, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), contextID, policyName, result.Final.Outcome.String(), result.ErrorCode, trail, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("audit: inserting verification record: %w", err)
	}
	return nil
}
