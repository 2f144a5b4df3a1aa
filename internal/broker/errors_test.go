package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   ErrorKind
		code   string
		status int
	}{
		{
			name:   "rate limited",
			err:    &APIError{StatusCode: 429, Code: 0, Message: "too many requests"},
			kind:   KindRateLimited,
			code:   CodeRateLimited,
			status: http.StatusTooManyRequests,
		},
		{
			name:   "asset not found",
			err:    &APIError{StatusCode: 422, Code: 42210000, Message: `asset "XYZ" not found`},
			kind:   KindAssetNotFound,
			code:   CodeAssetNotFound,
			status: http.StatusNotFound,
		},
		{
			name:   "fractional order",
			err:    &APIError{StatusCode: 422, Code: 42210000, Message: "fractional orders must be DAY orders"},
			kind:   KindInvalidFractionalOrder,
			code:   CodeInvalidFractionalOrder,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "short not allowed",
			err:    &APIError{StatusCode: 403, Code: 40310000, Message: "account is not allowed to short"},
			kind:   KindInsufficientAssets,
			code:   CodeInsufficientAssets,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "insufficient buying power",
			err:    &APIError{StatusCode: 403, Code: 40310000, Message: "insufficient buying power"},
			kind:   KindInsufficientFunds,
			code:   CodeInsufficientFunds,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "pattern needs matching code",
			err:    &APIError{StatusCode: 403, Code: 42210000, Message: "insufficient buying power", Body: "body"},
			kind:   KindUnsuccessfulResponse,
			code:   CodeUnsuccessfulResponse,
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "patterns are anchored",
			err:    &APIError{StatusCode: 422, Code: 42210000, Message: "the asset XYZ not found"},
			kind:   KindUnsuccessfulResponse,
			code:   CodeUnsuccessfulResponse,
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "patterns are case sensitive",
			err:    &APIError{StatusCode: 403, Code: 40310000, Message: "Insufficient buying power"},
			kind:   KindUnsuccessfulResponse,
			code:   CodeUnsuccessfulResponse,
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "other status",
			err:    &APIError{StatusCode: 500, Code: 50010000, Message: "internal", Body: "oops"},
			kind:   KindUnsuccessfulResponse,
			code:   CodeUnsuccessfulResponse,
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "network failure",
			err:    &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			kind:   KindCallFailed,
			code:   CodeCallFailed,
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "deadline exceeded",
			err:    fmt.Errorf("request: %w", context.DeadlineExceeded),
			kind:   KindCallFailed,
			code:   CodeCallFailed,
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "already classified",
			err:    fmt.Errorf("wrapped: %w", NewBadRequestError("Quantity", "must be greater than 0")),
			kind:   KindBadRequest,
			code:   CodeBadRequest,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.status, got.HTTPStatus)
			assert.Equal(t, tt.kind == KindRateLimited, IsTransient(tt.err))
		})
	}
}

func TestClassify_Messages(t *testing.T) {
	unsuccessful := Classify(&APIError{StatusCode: 500, Code: 123, Body: `{"code":123}`})
	assert.Equal(t, `Broker API responded with status code 500: [123] {"code":123}`, unsuccessful.Message)

	failed := Classify(errors.New("dial tcp: no such host"))
	assert.Equal(t, "Call to Broker API failed: dial tcp: no such host", failed.Message)

	assert.Nil(t, Classify(nil))
	assert.False(t, IsTransient(nil))
}

func TestClassify_Unwrap(t *testing.T) {
	cause := &APIError{StatusCode: 429}
	err := Classify(cause)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 429, apiErr.StatusCode)
}

func TestIsNetworkError(t *testing.T) {
	assert.True(t, IsNetworkError(&net.DNSError{Err: "no such host", Name: "example"}))
	assert.True(t, IsNetworkError(context.DeadlineExceeded))
	assert.False(t, IsNetworkError(errors.New("boom")))
}
