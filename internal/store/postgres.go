package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/gungifree/gungi-server-go/internal/match"
)

const matchesSchema = `
CREATE TABLE IF NOT EXISTS matches (
	id          TEXT PRIMARY KEY,
	match_type  TEXT NOT NULL,
	status      TEXT NOT NULL,
	snapshot    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists match snapshots in postgres via a pgx connection
// pool. The snapshot itself is stored as a JSONB document; the columns
// beside it exist for querying and recovery filtering.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to the database, verifies connectivity, and
// ensures the schema exists.
func NewPostgresStore(ctx context.Context, url string, logger *zap.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, matchesSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure matches table: %w", err)
	}

	logger.Info("postgres match store initialized",
		zap.Int32("max_conns", cfg.MaxConns),
	)
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// SaveMatch upserts the latest snapshot of a match.
func (s *PostgresStore) SaveMatch(ctx context.Context, snap match.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO matches (id, match_type, status, snapshot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    snapshot = EXCLUDED.snapshot,
		    updated_at = EXCLUDED.updated_at`,
		snap.ID, string(snap.Type), snap.Status.String(), doc, snap.CreatedAt, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert match %s: %w", snap.ID, err)
	}
	return nil
}

// LoadMatch returns the stored snapshot for id.
func (s *PostgresStore) LoadMatch(ctx context.Context, id string) (match.Snapshot, bool, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT snapshot FROM matches WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return match.Snapshot{}, false, nil
	}
	if err != nil {
		return match.Snapshot{}, false, fmt.Errorf("load match %s: %w", id, err)
	}
	var snap match.Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return match.Snapshot{}, false, fmt.Errorf("unmarshal match %s: %w", id, err)
	}
	return snap, true, nil
}

// ListRecoverable returns every non-final match for registry repopulation
// at startup.
func (s *PostgresStore) ListRecoverable(ctx context.Context) ([]match.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT snapshot FROM matches WHERE status IN ($1, $2) ORDER BY created_at`,
		match.StatusPending.String(), match.StatusActive.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list recoverable matches: %w", err)
	}
	defer rows.Close()

	var out []match.Snapshot
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan recoverable match: %w", err)
		}
		var snap match.Snapshot
		if err := json.Unmarshal(doc, &snap); err != nil {
			s.logger.Warn("skipping undecodable stored match", zap.Error(err))
			continue
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
