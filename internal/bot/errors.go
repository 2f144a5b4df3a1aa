package bot

import (
	"errors"
	"fmt"

	"github.com/yourusername/trading-bot/internal/broker"
	"github.com/yourusername/trading-bot/internal/datasource"
)

// ErrorCodeUnknown is reported for failures outside the broker and market
// data taxonomies
const ErrorCodeUnknown = "unknown"

// ErrCircuitOpen is returned for ticks refused by an open circuit breaker
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrorDetails extracts the code and message recorded for a failed tick
func ErrorDetails(err error) (code, message string) {
	var brokerErr *broker.Error
	if errors.As(err, &brokerErr) {
		return brokerErr.Code, brokerErr.Message
	}
	var dataErr datasource.DataSourceError
	if errors.As(err, &dataErr) {
		return dataErr.Code, dataErr.Message
	}
	return ErrorCodeUnknown, err.Error()
}

// TaskErrorDetails formats the state details of a failed trading task
func TaskErrorDetails(err error) string {
	code, message := ErrorDetails(err)
	return fmt.Sprintf("Trading task failed with error code %s: %s", code, message)
}
