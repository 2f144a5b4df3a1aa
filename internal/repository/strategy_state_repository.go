package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/trading-bot/internal/database"
	"github.com/yourusername/trading-bot/internal/models"
)

// PostgresStrategyStateRepository implements StrategyStateRepository for PostgreSQL
type PostgresStrategyStateRepository struct {
	db *database.DB
}

// NewPostgresStrategyStateRepository creates a new strategy state repository
func NewPostgresStrategyStateRepository(db *database.DB) StrategyStateRepository {
	return &PostgresStrategyStateRepository{db: db}
}

// Load returns the stored state document
func (r *PostgresStrategyStateRepository) Load(ctx context.Context, variant string, backtestID *uuid.UUID) (json.RawMessage, error) {
	query := `SELECT state FROM strategy_states WHERE variant = $1 AND partition = $2`

	var state []byte
	err := r.db.QueryRow(ctx, query, variant, partitionKey(backtestID)).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy state: %w", err)
	}
	return json.RawMessage(state), nil
}

// Save upserts the state document
func (r *PostgresStrategyStateRepository) Save(ctx context.Context, variant string, backtestID *uuid.UUID, state json.RawMessage) error {
	query := `
		INSERT INTO strategy_states (variant, partition, state, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (variant, partition) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()
	`

	if _, err := r.db.Exec(ctx, query, variant, partitionKey(backtestID), []byte(state)); err != nil {
		return fmt.Errorf("failed to save strategy state: %w", err)
	}
	return nil
}

// Delete removes the state document
func (r *PostgresStrategyStateRepository) Delete(ctx context.Context, variant string, backtestID *uuid.UUID) error {
	query := `DELETE FROM strategy_states WHERE variant = $1 AND partition = $2`

	if _, err := r.db.Exec(ctx, query, variant, partitionKey(backtestID)); err != nil {
		return fmt.Errorf("failed to delete strategy state: %w", err)
	}
	return nil
}
