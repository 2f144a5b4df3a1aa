package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
)

// ErrorKind is the closed set of brokerage failure categories
type ErrorKind int

const (
	KindBadRequest ErrorKind = iota + 1
	KindRateLimited
	KindAssetNotFound
	KindInvalidFractionalOrder
	KindInsufficientAssets
	KindInsufficientFunds
	KindUnsuccessfulResponse
	KindCallFailed
)

// Error codes recorded on failed actions
const (
	CodeBadRequest             = "bad-request"
	CodeRateLimited            = "rate-limited"
	CodeAssetNotFound          = "asset-not-found"
	CodeInvalidFractionalOrder = "invalid-fractional-order"
	CodeInsufficientAssets     = "insufficient-assets"
	CodeInsufficientFunds      = "insufficient-funds"
	CodeUnsuccessfulResponse   = "unsuccessful-api-response"
	CodeCallFailed             = "api-call-failed"
)

// Broker API error codes
const (
	APICodeUnprocessable = 42210000
	APICodeForbidden     = 40310000
)

var (
	assetNotFoundPattern      = regexp.MustCompile(`^asset .* not found`)
	fractionalOrderPattern    = regexp.MustCompile(`^fractional orders must be`)
	shortNotAllowedPattern    = regexp.MustCompile(`^account is not allowed to short`)
	insufficientBuyingPattern = regexp.MustCompile(`^insufficient buying power`)
)

// String returns the error code of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return CodeBadRequest
	case KindRateLimited:
		return CodeRateLimited
	case KindAssetNotFound:
		return CodeAssetNotFound
	case KindInvalidFractionalOrder:
		return CodeInvalidFractionalOrder
	case KindInsufficientAssets:
		return CodeInsufficientAssets
	case KindInsufficientFunds:
		return CodeInsufficientFunds
	case KindUnsuccessfulResponse:
		return CodeUnsuccessfulResponse
	case KindCallFailed:
		return CodeCallFailed
	default:
		return "unknown"
	}
}

// Error is a classified brokerage failure
type Error struct {
	Kind       ErrorKind
	Code       string
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// APIError is a non-2xx response of the broker REST API
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker API status %d: [%d] %s", e.StatusCode, e.Code, e.Message)
}

func newError(kind ErrorKind, status int, message string, cause error) *Error {
	return &Error{
		Kind:       kind,
		Code:       kind.String(),
		Message:    message,
		HTTPStatus: status,
		Cause:      cause,
	}
}

// NewBadRequestError creates a local validation failure for field
func NewBadRequestError(field, message string) *Error {
	return newError(KindBadRequest, http.StatusBadRequest, fmt.Sprintf("%s: %s", field, message), nil)
}

// NewRateLimitedError creates a transient rate limit error
func NewRateLimitedError(cause error) *Error {
	return newError(KindRateLimited, http.StatusTooManyRequests, "Broker API rate limit exceeded", cause)
}

// NewAssetNotFoundError creates an unknown asset error
func NewAssetNotFoundError(message string, cause error) *Error {
	return newError(KindAssetNotFound, http.StatusNotFound, message, cause)
}

// NewInvalidFractionalOrderError creates a fractional order rejection
func NewInvalidFractionalOrderError(message string, cause error) *Error {
	return newError(KindInvalidFractionalOrder, http.StatusUnprocessableEntity, message, cause)
}

// NewInsufficientAssetsError creates a rejection for selling more than held
func NewInsufficientAssetsError(message string, cause error) *Error {
	return newError(KindInsufficientAssets, http.StatusUnprocessableEntity, message, cause)
}

// NewInsufficientFundsError creates a buying power rejection
func NewInsufficientFundsError(message string, cause error) *Error {
	return newError(KindInsufficientFunds, http.StatusUnprocessableEntity, message, cause)
}

// NewUnsuccessfulResponseError creates an error for any other non-2xx response
func NewUnsuccessfulResponseError(status, code int, body string, cause error) *Error {
	msg := fmt.Sprintf("Broker API responded with status code %d: [%d] %s", status, code, body)
	return newError(KindUnsuccessfulResponse, http.StatusServiceUnavailable, msg, cause)
}

// NewCallFailedError creates an error for a call that got no response
func NewCallFailedError(cause error) *Error {
	return newError(KindCallFailed, http.StatusServiceUnavailable, fmt.Sprintf("Call to Broker API failed: %v", cause), cause)
}

// Classify maps a brokerage failure to its kind. Rules are applied in a
// fixed order and the first match wins.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return NewRateLimitedError(err)
		case apiErr.Code == APICodeUnprocessable && assetNotFoundPattern.MatchString(apiErr.Message):
			return NewAssetNotFoundError(apiErr.Message, err)
		case apiErr.Code == APICodeUnprocessable && fractionalOrderPattern.MatchString(apiErr.Message):
			return NewInvalidFractionalOrderError(apiErr.Message, err)
		case apiErr.Code == APICodeForbidden && shortNotAllowedPattern.MatchString(apiErr.Message):
			return NewInsufficientAssetsError(apiErr.Message, err)
		case apiErr.Code == APICodeForbidden && insufficientBuyingPattern.MatchString(apiErr.Message):
			return NewInsufficientFundsError(apiErr.Message, err)
		default:
			return NewUnsuccessfulResponseError(apiErr.StatusCode, apiErr.Code, apiErr.Body, err)
		}
	}

	return NewCallFailedError(err)
}

// IsTransient reports whether the failure should be retried later
// instead of being recorded
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Kind == KindRateLimited
}

// IsNetworkError reports whether err is a dial, DNS or timeout failure
func IsNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}
