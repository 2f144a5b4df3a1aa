package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/trading-bot/internal/database"
	"github.com/yourusername/trading-bot/internal/models"
)

const backtestColumns = `
	id, simulation_start, simulation_end, execution_start, execution_end, initial_cash,
	use_predictor, strategy, state, state_details, description, total_return`

// PostgresBacktestRepository implements BacktestRepository for PostgreSQL
type PostgresBacktestRepository struct {
	db *database.DB
}

// NewPostgresBacktestRepository creates a new backtest repository
func NewPostgresBacktestRepository(db *database.DB) BacktestRepository {
	return &PostgresBacktestRepository{db: db}
}

// Create inserts a new backtest
func (r *PostgresBacktestRepository) Create(ctx context.Context, b *models.Backtest) error {
	query := `INSERT INTO backtests (` + backtestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		b.ID, b.SimulationStart, b.SimulationEnd, b.ExecutionStart, b.ExecutionEnd, b.InitialCash,
		b.UsePredictor, b.Strategy, b.State, b.StateDetails, b.Description, b.TotalReturn,
	)
	if err != nil {
		return fmt.Errorf("failed to create backtest: %w", err)
	}
	return nil
}

// Finish moves a running backtest to its terminal state. It succeeds once.
func (r *PostgresBacktestRepository) Finish(ctx context.Context, id uuid.UUID, completion models.BacktestCompletion) error {
	query := `
		UPDATE backtests SET execution_end = $2, state = $3, state_details = $4, total_return = $5
		WHERE id = $1 AND state = $6
	`

	tag, err := r.db.Exec(ctx, query,
		id, completion.ExecutionEnd, completion.State, completion.Details, completion.TotalReturn, models.BacktestStateRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to finish backtest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return models.ErrAlreadyFinished
	}
	return nil
}

// GetByID retrieves a backtest by ID
func (r *PostgresBacktestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Backtest, error) {
	query := `SELECT ` + backtestColumns + ` FROM backtests WHERE id = $1`

	b, err := scanBacktest(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest: %w", err)
	}
	return b, nil
}

// List retrieves the most recent backtests
func (r *PostgresBacktestRepository) List(ctx context.Context, limit int) ([]*models.Backtest, error) {
	query := `SELECT ` + backtestColumns + ` FROM backtests ORDER BY execution_start DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtests: %w", err)
	}
	defer rows.Close()

	var backtests []*models.Backtest
	for rows.Next() {
		b, err := scanBacktest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest: %w", err)
		}
		backtests = append(backtests, b)
	}
	return backtests, rows.Err()
}

func scanBacktest(row pgx.Row) (*models.Backtest, error) {
	b := &models.Backtest{}
	err := row.Scan(
		&b.ID, &b.SimulationStart, &b.SimulationEnd, &b.ExecutionStart, &b.ExecutionEnd, &b.InitialCash,
		&b.UsePredictor, &b.Strategy, &b.State, &b.StateDetails, &b.Description, &b.TotalReturn,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}
