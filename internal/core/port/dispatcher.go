package port

import (
	"context"
	"fmt"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
)

// ChannelDispatcher delivers a one-time code over the requested channel.
// Delivery is not transactional with issuance: a code that fails to send
// remains valid until expiry and may be re-dispatched.
type ChannelDispatcher interface {
	Send(ctx context.Context, channel domain.OtpChannel, target, code string) error
}

// DispatchError wraps a provider failure so callers can surface it as a
// gateway problem without losing the underlying cause.
type DispatchError struct {
	Channel  domain.OtpChannel
	Provider string
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch via %s (%s): %v", e.Channel, e.Provider, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
