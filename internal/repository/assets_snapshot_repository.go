package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/trading-bot/internal/database"
	"github.com/yourusername/trading-bot/internal/models"
)

// PostgresAssetsSnapshotRepository implements AssetsSnapshotRepository for PostgreSQL
type PostgresAssetsSnapshotRepository struct {
	db *database.DB
}

// NewPostgresAssetsSnapshotRepository creates a new assets snapshot repository
func NewPostgresAssetsSnapshotRepository(db *database.DB) AssetsSnapshotRepository {
	return &PostgresAssetsSnapshotRepository{db: db}
}

// Create inserts a snapshot
func (r *PostgresAssetsSnapshotRepository) Create(ctx context.Context, snapshot *models.AssetsSnapshot) error {
	query := `
		INSERT INTO assets_snapshots (id, created_at, backtest_id, equity, cash, positions)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	cash, err := json.Marshal(snapshot.Cash)
	if err != nil {
		return fmt.Errorf("failed to marshal cash: %w", err)
	}
	positions, err := json.Marshal(snapshot.Positions)
	if err != nil {
		return fmt.Errorf("failed to marshal positions: %w", err)
	}

	_, err = r.db.Exec(ctx, query,
		snapshot.ID, snapshot.CreatedAt, snapshot.BacktestID, snapshot.Equity, cash, positions,
	)
	if err != nil {
		return fmt.Errorf("failed to create assets snapshot: %w", err)
	}
	return nil
}

// ListByBacktest retrieves every snapshot of a backtest, oldest first
func (r *PostgresAssetsSnapshotRepository) ListByBacktest(ctx context.Context, backtestID *uuid.UUID) ([]*models.AssetsSnapshot, error) {
	query := `
		SELECT id, created_at, backtest_id, equity, cash, positions
		FROM assets_snapshots
		WHERE backtest_id IS NOT DISTINCT FROM $1
		ORDER BY created_at, id
	`
	return r.list(ctx, query, backtestID)
}

// ListByTimeRange retrieves snapshots created within [start, end], oldest first
func (r *PostgresAssetsSnapshotRepository) ListByTimeRange(ctx context.Context, backtestID *uuid.UUID, start, end time.Time) ([]*models.AssetsSnapshot, error) {
	query := `
		SELECT id, created_at, backtest_id, equity, cash, positions
		FROM assets_snapshots
		WHERE backtest_id IS NOT DISTINCT FROM $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at, id
	`
	return r.list(ctx, query, backtestID, start, end)
}

// Earliest retrieves the oldest snapshot of a partition
func (r *PostgresAssetsSnapshotRepository) Earliest(ctx context.Context, backtestID *uuid.UUID) (*models.AssetsSnapshot, error) {
	query := `
		SELECT id, created_at, backtest_id, equity, cash, positions
		FROM assets_snapshots
		WHERE backtest_id IS NOT DISTINCT FROM $1
		ORDER BY created_at, id
		LIMIT 1
	`

	snapshot, err := scanSnapshot(r.db.QueryRow(ctx, query, backtestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get earliest snapshot: %w", err)
	}
	return snapshot, nil
}

func (r *PostgresAssetsSnapshotRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.AssetsSnapshot, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.AssetsSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assets snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

func scanSnapshot(row pgx.Row) (*models.AssetsSnapshot, error) {
	snapshot := &models.AssetsSnapshot{}
	var cash, positions []byte
	if err := row.Scan(&snapshot.ID, &snapshot.CreatedAt, &snapshot.BacktestID, &snapshot.Equity, &cash, &positions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cash, &snapshot.Cash); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cash: %w", err)
	}
	if err := json.Unmarshal(positions, &snapshot.Positions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal positions: %w", err)
	}
	return snapshot, nil
}
