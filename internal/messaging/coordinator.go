package messaging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// DefaultPacing is the pause between consecutive outbound messages so a
// multi-part response arrives in order on the user's phone.
const DefaultPacing = 500 * time.Millisecond

// Coordinator sequences outbound responses to the transport with
// inter-message pacing. A failed send is logged and does not abort the
// remaining messages.
type Coordinator struct {
	service Service
	pacing  time.Duration
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithPacing overrides the inter-message pause.
func WithPacing(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.pacing = d
	}
}

// NewCoordinator creates a delivery coordinator for the given transport.
func NewCoordinator(service Service, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{service: service, pacing: DefaultPacing}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver sends each response in order. Payloads starting with '{' go out as
// interactive messages, anything else as text. The pacing pause runs between
// messages but not after the last one.
func (c *Coordinator) Deliver(ctx context.Context, to string, responses []string) {
	for i, response := range responses {
		var err error
		if strings.HasPrefix(response, "{") {
			err = c.service.SendInteractive(ctx, to, response)
		} else {
			err = c.service.SendText(ctx, to, response)
		}
		if err != nil {
			slog.Error("Coordinator failed to deliver response", "error", err, "to", to, "index", i)
		}

		if i < len(responses)-1 {
			select {
			case <-time.After(c.pacing):
			case <-ctx.Done():
				slog.Warn("Coordinator delivery cancelled", "to", to, "remaining", len(responses)-i-1)
				return
			}
		}
	}
}
