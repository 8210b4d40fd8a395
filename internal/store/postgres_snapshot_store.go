package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/config"
	"github.com/mydripnurse-lab/devasks-delta-system-sub000/internal/model"
)

// PostgresSnapshotStore implements SnapshotStore on PostgreSQL. The whole
// snapshot is stored as one JSONB payload per (kind, tenant) row and
// replaced by upsert, matching the wholesale-replacement contract of the
// file backend.
type PostgresSnapshotStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresSnapshotStore creates the store and bootstraps its schema.
func NewPostgresSnapshotStore(cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresSnapshotStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password,
		cfg.MaxConnections, cfg.MinConnections,
	)

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresSnapshotStore{pool: pool, logger: logger}
	if err := s.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSnapshotStore) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS snapshots (
			kind          TEXT   NOT NULL,
			tenant_id     TEXT   NOT NULL,
			version       INT    NOT NULL,
			updated_at_ms BIGINT NOT NULL,
			payload       JSONB  NOT NULL,
			PRIMARY KEY (kind, tenant_id)
		)
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}
	return nil
}

// Read loads the snapshot for a tenant and kind. Malformed payloads and
// tenant mismatches read as absent, same as the file backend.
func (s *PostgresSnapshotStore) Read(ctx context.Context, kind model.RecordKind, tenantID string) (*model.Snapshot, error) {
	query := `
		SELECT payload
		FROM snapshots
		WHERE kind = $1 AND tenant_id = $2
	`

	var payload []byte
	err := s.pool.QueryRow(ctx, query, string(kind), tenantID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Warn("snapshot row unreadable, treating as absent",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, ErrNotFound
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.logger.Warn("snapshot payload malformed, treating as absent",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, ErrNotFound
	}
	if snapshot.TenantID != tenantID || snapshot.Version > model.SnapshotVersion {
		s.logger.Warn("snapshot payload rejected, treating as absent",
			zap.String("tenant_id", tenantID),
			zap.String("embedded", snapshot.TenantID),
			zap.Int("version", snapshot.Version))
		return nil, ErrNotFound
	}

	return &snapshot, nil
}

// Write replaces the tenant's snapshot by upsert.
func (s *PostgresSnapshotStore) Write(ctx context.Context, snapshot *model.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	query := `
		INSERT INTO snapshots (kind, tenant_id, version, updated_at_ms, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, tenant_id)
		DO UPDATE SET version = $3, updated_at_ms = $4, payload = $5
	`

	_, err = s.pool.Exec(ctx, query,
		string(snapshot.Kind),
		snapshot.TenantID,
		snapshot.Version,
		snapshot.UpdatedAtMs,
		payload,
	)
	return err
}

// Ping checks the database connection.
func (s *PostgresSnapshotStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresSnapshotStore) Close() {
	s.pool.Close()
}
