// Package apperr defines the failures shared by the gateway, ledger and
// trading layers and how they map onto HTTP responses.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidQuantity    = errors.New("quantity must be a positive whole number")
	ErrInvalidSide        = errors.New("side must be buy or sell")
	ErrInvalidPrice       = errors.New("price must be positive")
	ErrInvalidQuery       = errors.New("invalid query")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrNotFound           = errors.New("not found")
	ErrTimeout            = errors.New("timeout")
	ErrConflict           = errors.New("concurrent modification")
	ErrUnknownChannel     = errors.New("unknown channel")
)

// UpstreamError is returned when a market-data provider answers with a
// non-success status. Status is 0 for transport failures.
type UpstreamError struct {
	Status   int
	Endpoint string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 && e.Err != nil {
		return fmt.Sprintf("upstream %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("upstream %s: status %d", e.Endpoint, e.Status)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// RejectionError is a trade refused by validation. MaxQuantity is the
// largest quantity that would have passed (affordable shares for a buy,
// held shares for a sell).
type RejectionError struct {
	Reason      error
	MaxQuantity int64
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("trade rejected: %v (max quantity %d)", e.Reason, e.MaxQuantity)
}

func (e *RejectionError) Unwrap() error { return e.Reason }

// FromContext converts a context failure into ErrTimeout. Other errors are
// returned unchanged.
func FromContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// HTTPStatus maps an error to the status code handlers answer with.
func HTTPStatus(err error) int {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidSide),
		errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientShares):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
