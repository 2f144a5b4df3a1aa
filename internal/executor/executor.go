// Package executor turns trading actions into brokerage orders and records
// their outcomes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/trading-bot/internal/broker"
	"github.com/yourusername/trading-bot/internal/events"
	"github.com/yourusername/trading-bot/internal/logger"
	"github.com/yourusername/trading-bot/internal/metrics"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/repository"
)

// Executor submits actions to a brokerage client
type Executor struct {
	client    broker.Client
	actions   repository.TradingActionRepository
	publisher events.Publisher
	simulated bool
	logger    *logrus.Logger
	audit     *logger.AuditLogger
}

// NewExecutor creates an executor bound to one brokerage client. Simulated
// executors only differ in how their submissions are audited.
func NewExecutor(
	client broker.Client,
	actions repository.TradingActionRepository,
	publisher events.Publisher,
	simulated bool,
	log *logrus.Logger,
) *Executor {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Executor{
		client:    client,
		actions:   actions,
		publisher: publisher,
		simulated: simulated,
		logger:    log,
		audit:     logger.NewAuditLogger(log),
	}
}

// Execute submits a single action and returns an enriched copy. Transient
// failures return the original action with the error so the caller can
// skip recording it; every other failure is written onto the copy.
func (e *Executor) Execute(ctx context.Context, action *models.TradingAction) (*models.TradingAction, error) {
	start := time.Now()
	result := action.Clone()

	req := broker.NewOrderRequest(action)
	if err := broker.ValidateOrder(req); err != nil {
		return e.fail(result, broker.Classify(err), start), nil
	}

	res, err := e.client.SubmitOrder(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return action, ctx.Err()
		}
		classified := broker.Classify(err)
		if classified.Kind == broker.KindRateLimited {
			metrics.RecordBrokerError(classified.Code)
			e.audit.LogActionDeferred(action.ID.String(), string(action.Symbol), classified.Message)
			return action, classified
		}
		return e.fail(result, classified, start), nil
	}

	brokerOrderID := res.BrokerOrderID
	result.BrokerOrderID = &brokerOrderID
	result.Status = res.Status
	if res.FilledAt != nil {
		executedAt := *res.FilledAt
		result.ExecutedAt = &executedAt
	}
	if res.FillPrice != nil {
		price := *res.FillPrice
		result.AverageFillPrice = &price
	}

	metrics.RecordActionSubmitted(string(result.OrderType), string(result.Status), time.Since(start).Seconds())
	e.audit.LogActionSubmitted(
		result.ID.String(),
		string(result.Symbol),
		string(result.OrderType),
		result.Quantity.String(),
		string(result.Status),
		brokerOrderID,
		res.SubmittedAt,
		e.simulated,
	)
	return result, nil
}

func (e *Executor) fail(action *models.TradingAction, err *broker.Error, start time.Time) *models.TradingAction {
	action.Status = models.ActionStatusFailed
	action.Error = &models.ActionError{Code: err.Code, Message: err.Message}

	metrics.RecordBrokerError(err.Code)
	metrics.RecordActionSubmitted(string(action.OrderType), string(action.Status), time.Since(start).Seconds())
	e.audit.LogActionFailed(action.ID.String(), string(action.Symbol), string(action.OrderType), err.Code, err.Message)
	return action
}

// ExecuteBatch executes actions one after another on behalf of a trading
// task. It stops at the first cancellation and returns the outcomes
// recorded so far. Deferred actions are left out of the result.
func (e *Executor) ExecuteBatch(ctx context.Context, taskID uuid.UUID, actions []*models.TradingAction) ([]*models.TradingAction, error) {
	executed := make([]*models.TradingAction, 0, len(actions))
	deferred := 0

	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return executed, err
		}

		pending := action.Clone()
		pending.TaskID = &taskID

		result, err := e.Execute(ctx, pending)
		if err != nil {
			if broker.IsTransient(err) {
				deferred++
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return executed, err
			}
			return executed, fmt.Errorf("failed to execute action %s: %w", action.ID, err)
		}

		if err := e.actions.Create(ctx, result); err != nil {
			return executed, fmt.Errorf("failed to record action %s: %w", result.ID, err)
		}
		if err := e.publisher.ActionExecuted(ctx, result); err != nil {
			e.logger.WithError(err).WithField("action_id", result.ID).Warn("Action event not published")
		}
		executed = append(executed, result)
	}

	if len(actions) > 0 {
		e.logger.WithFields(logrus.Fields{
			"trading_task_id": taskID,
			"total_actions":   len(actions),
			"recorded":        len(executed),
			"deferred":        deferred,
			"simulated":       e.simulated,
		}).Info("Batch execution completed")
	}
	return executed, nil
}
