package domain

import (
	"context"
	"errors"
)

// DispatchRequest names one receipt and one channel to call out on.
type DispatchRequest struct {
	ReceiptID string
	Channel   string
}

type Service interface {
	// Dispatch calls the channel's collaborator once and seals the
	// channel's status with the outcome. Re-dispatching a channel that
	// already reached a terminal state fails with
	// ErrIllegalStatusTransition before any provider call.
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchAttempt, error)

	// DispatchAll fans out over all three channels concurrently and
	// reports per-channel outcomes. Channel-level refusals land in the
	// outcome, not in the returned error.
	DispatchAll(ctx context.Context, receiptID string) ([]ChannelOutcome, error)

	ListAttempts(ctx context.Context, receiptID string) ([]DispatchAttempt, error)
}

var (
	ErrChannelDisabled  = errors.New("channel_disabled")
	ErrMissingContact   = errors.New("missing_contact")
	ErrDispatchInFlight = errors.New("dispatch_in_flight")
)
