package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudo-app/cloudo-go/internal/api"
)

// Reason says why an upload did not complete.
type Reason int

const (
	// ReasonNetwork means the request never got an answer from the backend.
	ReasonNetwork Reason = iota
	// ReasonRejected means the backend answered with an error status or an
	// unreadable success body, or the upload was refused locally.
	ReasonRejected
	// ReasonCancelled means the caller cancelled the task or its context.
	ReasonCancelled
)

func (r Reason) String() string {
	switch r {
	case ReasonNetwork:
		return "network"
	case ReasonRejected:
		return "rejected"
	case ReasonCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// TransferError is the failure outcome of an upload task. It unwraps to the
// cause, so errors.Is(err, api.ErrAuth) works through it.
type TransferError struct {
	Reason Reason
	TaskID string
	Name   string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer: upload %q %s: %v", e.Name, e.Reason, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// classify maps an upload failure to a Reason. A done context always means
// cancelled, whatever the transport reported.
func classify(ctx context.Context, err error) Reason {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return ReasonCancelled
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return ReasonRejected
	}

	if errors.Is(err, api.ErrAuth) || errors.Is(err, api.ErrInvalidInput) || errors.Is(err, api.ErrTooLarge) ||
		errors.Is(err, api.ErrUnexpectedResponse) {
		return ReasonRejected
	}

	return ReasonNetwork
}
