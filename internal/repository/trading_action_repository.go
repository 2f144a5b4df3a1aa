package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/trading-bot/internal/database"
	"github.com/yourusername/trading-bot/internal/models"
)

const tradingActionColumns = `
	a.id, a.created_at, a.symbol, a.quantity, a.price, a.in_force, a.order_type, a.status,
	a.executed_at, a.broker_order_id, a.average_fill_price, a.error_code, a.error_message, a.trading_task_id`

// PostgresTradingActionRepository implements TradingActionRepository for PostgreSQL
type PostgresTradingActionRepository struct {
	db *database.DB
}

// NewPostgresTradingActionRepository creates a new trading action repository
func NewPostgresTradingActionRepository(db *database.DB) TradingActionRepository {
	return &PostgresTradingActionRepository{db: db}
}

// Create inserts a new trading action
func (r *PostgresTradingActionRepository) Create(ctx context.Context, action *models.TradingAction) error {
	query := `
		INSERT INTO trading_actions (id, created_at, symbol, quantity, price, in_force, order_type, status,
		                             executed_at, broker_order_id, average_fill_price, error_code, error_message,
		                             trading_task_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	code, message := errorColumns(action)
	_, err := r.db.Exec(ctx, query,
		action.ID, action.CreatedAt, action.Symbol, action.Quantity, action.Price, action.InForce,
		action.OrderType, action.Status, action.ExecutedAt, action.BrokerOrderID, action.AverageFillPrice,
		code, message, action.TaskID,
	)
	if err != nil {
		return fmt.Errorf("failed to create trading action: %w", err)
	}
	return nil
}

// UpdateOutcome records the execution outcome of an action
func (r *PostgresTradingActionRepository) UpdateOutcome(ctx context.Context, action *models.TradingAction) error {
	query := `
		UPDATE trading_actions SET
			status = $2, executed_at = $3, broker_order_id = $4, average_fill_price = $5,
			error_code = $6, error_message = $7
		WHERE id = $1
	`

	code, message := errorColumns(action)
	tag, err := r.db.Exec(ctx, query,
		action.ID, action.Status, action.ExecutedAt, action.BrokerOrderID, action.AverageFillPrice, code, message,
	)
	if err != nil {
		return fmt.Errorf("failed to update trading action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetByID retrieves an action by ID
func (r *PostgresTradingActionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TradingAction, error) {
	query := `SELECT ` + tradingActionColumns + ` FROM trading_actions a WHERE a.id = $1`

	action, err := scanTradingAction(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trading action: %w", err)
	}
	return action, nil
}

// GetByIDs retrieves the actions with the given IDs. Unknown IDs are skipped.
func (r *PostgresTradingActionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.TradingAction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + tradingActionColumns + ` FROM trading_actions a WHERE a.id = ANY($1) ORDER BY a.seq`
	return r.list(ctx, query, ids)
}

// GetByBrokerOrderID retrieves the action submitted as brokerOrderID
func (r *PostgresTradingActionRepository) GetByBrokerOrderID(ctx context.Context, brokerOrderID string) (*models.TradingAction, error) {
	query := `SELECT ` + tradingActionColumns + ` FROM trading_actions a WHERE a.broker_order_id = $1`

	action, err := scanTradingAction(r.db.QueryRow(ctx, query, brokerOrderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trading action: %w", err)
	}
	return action, nil
}

// ListByTask retrieves the actions of a trading task
func (r *PostgresTradingActionRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.TradingAction, error) {
	query := `SELECT ` + tradingActionColumns + ` FROM trading_actions a WHERE a.trading_task_id = $1 ORDER BY a.seq`
	return r.list(ctx, query, taskID)
}

// ListByBacktest retrieves every action issued by a backtest, or by live
// trading when backtestID is nil
func (r *PostgresTradingActionRepository) ListByBacktest(ctx context.Context, backtestID *uuid.UUID) ([]*models.TradingAction, error) {
	query := `
		SELECT ` + tradingActionColumns + `
		FROM trading_actions a
		JOIN trading_tasks t ON t.id = a.trading_task_id
		WHERE t.backtest_id IS NOT DISTINCT FROM $1
		ORDER BY a.seq
	`
	return r.list(ctx, query, backtestID)
}

// ListByTimeRange retrieves actions created within [start, end]
func (r *PostgresTradingActionRepository) ListByTimeRange(ctx context.Context, start, end time.Time) ([]*models.TradingAction, error) {
	query := `SELECT ` + tradingActionColumns + ` FROM trading_actions a WHERE a.created_at >= $1 AND a.created_at <= $2 ORDER BY a.seq`
	return r.list(ctx, query, start, end)
}

func (r *PostgresTradingActionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.TradingAction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trading actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.TradingAction
	for rows.Next() {
		action, err := scanTradingAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trading action: %w", err)
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

func scanTradingAction(row pgx.Row) (*models.TradingAction, error) {
	action := &models.TradingAction{}
	var code, message *string
	err := row.Scan(
		&action.ID, &action.CreatedAt, &action.Symbol, &action.Quantity, &action.Price, &action.InForce,
		&action.OrderType, &action.Status, &action.ExecutedAt, &action.BrokerOrderID, &action.AverageFillPrice,
		&code, &message, &action.TaskID,
	)
	if err != nil {
		return nil, err
	}
	if code != nil {
		action.Error = &models.ActionError{Code: *code}
		if message != nil {
			action.Error.Message = *message
		}
	}
	return action, nil
}

func errorColumns(action *models.TradingAction) (*string, *string) {
	if action.Error == nil {
		return nil, nil
	}
	code, message := action.Error.Code, action.Error.Message
	return &code, &message
}
