package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/trading-bot/internal/database"
	"github.com/yourusername/trading-bot/internal/models"
)

// PostgresStrategySelectionRepository implements StrategySelectionRepository for PostgreSQL
type PostgresStrategySelectionRepository struct {
	db *database.DB
}

// NewPostgresStrategySelectionRepository creates a new strategy selection repository
func NewPostgresStrategySelectionRepository(db *database.DB) StrategySelectionRepository {
	return &PostgresStrategySelectionRepository{db: db}
}

// Get returns the persisted strategy name
func (r *PostgresStrategySelectionRepository) Get(ctx context.Context) (string, error) {
	var name string
	err := r.db.QueryRow(ctx, `SELECT name FROM strategy_selection WHERE id = 1`).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get strategy selection: %w", err)
	}
	return name, nil
}

// Set persists the strategy name
func (r *PostgresStrategySelectionRepository) Set(ctx context.Context, name, changedBy string) error {
	query := `
		INSERT INTO strategy_selection (id, name, changed_by, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, changed_by = EXCLUDED.changed_by, updated_at = NOW()
	`

	if _, err := r.db.Exec(ctx, query, name, changedBy); err != nil {
		return fmt.Errorf("failed to set strategy selection: %w", err)
	}
	return nil
}
