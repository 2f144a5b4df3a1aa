package models

import (
	"time"

	"github.com/google/uuid"
)

// TradingTaskState is the outcome of a single decision tick
type TradingTaskState string

const (
	TradingTaskStateConfigDisabled TradingTaskState = "config_disabled"
	TradingTaskStateExchangeClosed TradingTaskState = "exchange_closed"
	TradingTaskStateRunning        TradingTaskState = "running"
	TradingTaskStateSuccess        TradingTaskState = "success"
	TradingTaskStateError          TradingTaskState = "error"
)

// Fixed state details recorded on trading tasks
const (
	TaskDetailsRunning        = "Trading task is running"
	TaskDetailsSuccess        = "Finished successfully"
	TaskDetailsConfigDisabled = "Automatic investing is disabled in configuration"
	TaskDetailsExchangeClosed = "Exchange will not open in the following 24 hours"
)

// TradingTask records one execution of the decision cycle
type TradingTask struct {
	ID           uuid.UUID        `db:"id" json:"id"`
	StartedAt    time.Time        `db:"started_at" json:"started_at"`
	FinishedAt   *time.Time       `db:"finished_at" json:"finished_at,omitempty"`
	State        TradingTaskState `db:"state" json:"state"`
	StateDetails string           `db:"state_details" json:"state_details"`
	BacktestID   *uuid.UUID       `db:"backtest_id" json:"backtest_id,omitempty"`
}

// TradingTaskCompletion describes how a trading task ended
type TradingTaskCompletion struct {
	FinishedAt time.Time
	State      TradingTaskState
	Details    string
}
