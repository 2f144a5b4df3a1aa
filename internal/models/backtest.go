package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BacktestState is the lifecycle state of a backtest
type BacktestState string

const (
	BacktestStateRunning   BacktestState = "running"
	BacktestStateFinished  BacktestState = "finished"
	BacktestStateError     BacktestState = "error"
	BacktestStateCancelled BacktestState = "cancelled"
)

// IsTerminal reports whether no further transition is allowed
func (s BacktestState) IsTerminal() bool {
	return s == BacktestStateFinished || s == BacktestStateError || s == BacktestStateCancelled
}

// Backtest is a simulation of the decision process over a historical range
type Backtest struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	SimulationStart time.Time       `db:"simulation_start" json:"simulation_start"`
	SimulationEnd   time.Time       `db:"simulation_end" json:"simulation_end"`
	ExecutionStart  time.Time       `db:"execution_start" json:"execution_start"`
	ExecutionEnd    *time.Time      `db:"execution_end" json:"execution_end,omitempty"`
	InitialCash     decimal.Decimal `db:"initial_cash" json:"initial_cash"`
	UsePredictor    bool            `db:"use_predictor" json:"use_predictor"`
	Strategy        string          `db:"strategy" json:"strategy"`
	State           BacktestState   `db:"state" json:"state"`
	StateDetails    string          `db:"state_details" json:"state_details"`
	Description     string          `db:"description" json:"description"`
	TotalReturn     float64         `db:"total_return" json:"total_return"`
}

// BacktestCompletion describes the terminal transition of a backtest
type BacktestCompletion struct {
	ExecutionEnd time.Time
	State        BacktestState
	Details      string
	TotalReturn  float64
}
