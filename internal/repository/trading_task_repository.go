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

// PostgresTradingTaskRepository implements TradingTaskRepository for PostgreSQL
type PostgresTradingTaskRepository struct {
	db *database.DB
}

// NewPostgresTradingTaskRepository creates a new trading task repository
func NewPostgresTradingTaskRepository(db *database.DB) TradingTaskRepository {
	return &PostgresTradingTaskRepository{db: db}
}

// Create inserts a new trading task
func (r *PostgresTradingTaskRepository) Create(ctx context.Context, task *models.TradingTask) error {
	query := `
		INSERT INTO trading_tasks (id, started_at, finished_at, state, state_details, backtest_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		task.ID, task.StartedAt, task.FinishedAt, task.State, task.StateDetails, task.BacktestID,
	)
	if err != nil {
		return fmt.Errorf("failed to create trading task: %w", err)
	}
	return nil
}

// Finish records the final state of a task. A task can finish only once.
func (r *PostgresTradingTaskRepository) Finish(ctx context.Context, id uuid.UUID, completion models.TradingTaskCompletion) error {
	query := `
		UPDATE trading_tasks SET finished_at = $2, state = $3, state_details = $4
		WHERE id = $1 AND finished_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, id, completion.FinishedAt, completion.State, completion.Details)
	if err != nil {
		return fmt.Errorf("failed to finish trading task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return models.ErrAlreadyFinished
	}
	return nil
}

// GetByID retrieves a trading task by ID
func (r *PostgresTradingTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TradingTask, error) {
	query := `
		SELECT id, started_at, finished_at, state, state_details, backtest_id
		FROM trading_tasks WHERE id = $1
	`

	task := &models.TradingTask{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&task.ID, &task.StartedAt, &task.FinishedAt, &task.State, &task.StateDetails, &task.BacktestID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trading task: %w", err)
	}
	return task, nil
}

// ListByBacktest retrieves the tasks of a backtest, or live tasks when
// backtestID is nil, oldest first
func (r *PostgresTradingTaskRepository) ListByBacktest(ctx context.Context, backtestID *uuid.UUID) ([]*models.TradingTask, error) {
	query := `
		SELECT id, started_at, finished_at, state, state_details, backtest_id
		FROM trading_tasks
		WHERE backtest_id IS NOT DISTINCT FROM $1
		ORDER BY started_at, id
	`

	rows, err := r.db.Query(ctx, query, backtestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trading tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.TradingTask
	for rows.Next() {
		task := &models.TradingTask{}
		if err := rows.Scan(
			&task.ID, &task.StartedAt, &task.FinishedAt, &task.State, &task.StateDetails, &task.BacktestID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trading task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
