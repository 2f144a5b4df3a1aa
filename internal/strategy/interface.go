package strategy

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/trading-bot/internal/datasource"
	"github.com/yourusername/trading-bot/internal/models"
	"github.com/yourusername/trading-bot/internal/pca"
)

// Registered strategy names
const (
	LosersName  = "losers"
	WinnersName = "winners"
	PairsName   = "pairs"
	PcaName     = "pca"
)

// State is the persisted document of an evaluator. Implementations are
// pointers to JSON-serializable structs returned by NewState.
type State interface{}

// Evaluator turns market data and account state into trading intents
type Evaluator interface {
	Name() string
	Description() string
	NewState() State
	Evaluate(ctx context.Context, in Input, state State) (State, []*models.TradingAction, error)
}

// Deselector is implemented by evaluators that adjust their state when the
// active strategy changes to next.
type Deselector interface {
	OnDeselect(state State, next string) State
}

// ActionReader resolves actions linked from strategy state
type ActionReader interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.TradingAction, error)
}

// Input carries everything an evaluation may read
type Input struct {
	AsOf         time.Time
	BacktestID   *uuid.UUID
	Assets       *models.AssetsSnapshot
	Universe     []models.TradingSymbol
	Market       datasource.Provider
	Actions      ActionReader
	IDs          IDGenerator
	Models       *pca.ModelCache
	UsePredictor bool
}

// Day returns the evaluated calendar day
func (in Input) Day() time.Time {
	return models.Day(in.AsOf)
}
