// Package messaging provides the outbound transport abstraction and the
// delivery coordinator that paces multi-message responses.
//
// Two transports are implemented: the Meta Cloud API (webhook-driven) and a
// direct Whatsmeow connection. Both satisfy Service, so the router never
// knows which one is wired.
package messaging

import (
	"context"
	"time"

	"github.com/avans-mx/avanbot/internal/models"
)

const (
	// DefaultChannelBufferSize defines the buffer size for inbound event channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel sends.
	DefaultChannelTimeout = 1 * time.Second
)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier, returning the canonical form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a plain text message.
	SendText(ctx context.Context, to string, body string) error

	// SendInteractive sends an interactive message given its Cloud API JSON
	// payload. Transports without interactive support downgrade it to text.
	SendInteractive(ctx context.Context, to string, payloadJSON string) error

	// MarkRead marks an inbound message as read.
	MarkRead(ctx context.Context, from string, messageID string) error

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Events returns a channel of inbound message events. Webhook-driven
	// transports never emit here; their events arrive through the HTTP layer.
	Events() <-chan models.MessageContext
}
