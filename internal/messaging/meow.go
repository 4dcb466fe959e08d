package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avans-mx/avanbot/internal/models"
	"github.com/avans-mx/avanbot/internal/util"
	"github.com/avans-mx/avanbot/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// MeowService implements Service over a direct Whatsmeow connection. It feeds
// inbound messages into the Events channel instead of relying on webhooks.
type MeowService struct {
	sender   whatsapp.Sender
	waClient *whatsapp.Client // full client when available, for event handling
	events   chan models.MessageContext
	done     chan struct{}
}

// NewMeowService creates a Whatsmeow-backed transport wrapping the given
// sender.
func NewMeowService(sender whatsapp.Sender) *MeowService {
	s := &MeowService{
		sender: sender,
		events: make(chan models.MessageContext, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}
	if waClient, ok := sender.(*whatsapp.Client); ok {
		s.waClient = waClient
		slog.Debug("MeowService created with full client for event handling")
	} else {
		slog.Debug("MeowService created with interface client (likely mock)")
	}
	return s
}

// ValidateAndCanonicalizeRecipient applies the same phone rules as the Cloud
// API transport.
func (s *MeowService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	r := strings.TrimSpace(strings.TrimPrefix(recipient, "+"))
	if r == "" {
		return "", models.ErrEmptyRecipient
	}
	r = util.NormalizePhone(r)
	if !phoneDigitsRe.MatchString(r) {
		return "", fmt.Errorf("invalid recipient %q: must be 10-15 digits", recipient)
	}
	return r, nil
}

// SendText sends a plain text message.
func (s *MeowService) SendText(ctx context.Context, to string, body string) error {
	return s.sender.SendMessage(ctx, to, body)
}

// SendInteractive downgrades an interactive payload to plain text: the body
// plus an enumerated list of the button titles. Whatsmeow speaks the personal
// protocol, which has no reply buttons for business-style messages.
func (s *MeowService) SendInteractive(ctx context.Context, to string, payloadJSON string) error {
	text, err := flattenInteractive(payloadJSON)
	if err != nil {
		slog.Error("MeowService failed to flatten interactive payload", "error", err)
		return err
	}
	return s.sender.SendMessage(ctx, to, text)
}

// flattenInteractive renders a Cloud API interactive payload as plain text.
func flattenInteractive(payloadJSON string) (string, error) {
	var payload struct {
		Interactive struct {
			Body struct {
				Text string `json:"text"`
			} `json:"body"`
			Footer struct {
				Text string `json:"text"`
			} `json:"footer"`
			Action struct {
				Buttons []struct {
					Reply struct {
						Title string `json:"title"`
					} `json:"reply"`
				} `json:"buttons"`
			} `json:"action"`
		} `json:"interactive"`
	}
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return "", fmt.Errorf("invalid interactive payload: %w", err)
	}

	var b strings.Builder
	b.WriteString(payload.Interactive.Body.Text)
	for i, btn := range payload.Interactive.Action.Buttons {
		fmt.Fprintf(&b, "\n%d. %s", i+1, btn.Reply.Title)
	}
	if payload.Interactive.Footer.Text != "" {
		b.WriteString("\n\n" + payload.Interactive.Footer.Text)
	}
	return b.String(), nil
}

// MarkRead marks an inbound message as read.
func (s *MeowService) MarkRead(ctx context.Context, from string, messageID string) error {
	return s.sender.MarkRead(ctx, from, messageID)
}

// Start registers the inbound event handler when a full client is available.
func (s *MeowService) Start(ctx context.Context) error {
	slog.Debug("MeowService Start invoked")
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("MeowService no full client available, skipping event handling")
		return nil
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if msg, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(msg)
		}
	})
	slog.Debug("MeowService event handler registered")
	return nil
}

// Stop disconnects, then closes the events channel so consumers drain out.
// Disconnecting first stops the event dispatch loop, so no handler can be
// left sending on the closed channel.
func (s *MeowService) Stop() error {
	slog.Info("MeowService Stop invoked")
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
	close(s.done)
	close(s.events)
	return nil
}

// Events returns the inbound message channel.
func (s *MeowService) Events() <-chan models.MessageContext {
	return s.events
}

func (s *MeowService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil {
		return
	}

	var text string
	msgType := models.MessageTypeText
	switch {
	case evt.Message.Conversation != nil:
		text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		text = *evt.Message.ExtendedTextMessage.Text
	case evt.Message.ImageMessage != nil:
		text = "imagen"
		msgType = models.MessageTypeImage
	case evt.Message.DocumentMessage != nil:
		text = "documento"
		msgType = models.MessageTypeDocument
	case evt.Message.AudioMessage != nil:
		text = "audio"
		msgType = models.MessageTypeAudio
	case evt.Message.VideoMessage != nil:
		text = "video"
		msgType = models.MessageTypeVideo
	default:
		slog.Debug("MeowService ignoring unsupported message", "from", evt.Info.Sender.String())
		return
	}

	mc := models.MessageContext{
		Text:        strings.ToLower(strings.TrimSpace(text)),
		UserID:      util.NormalizePhone(evt.Info.Sender.User),
		MessageID:   string(evt.Info.ID),
		DisplayName: evt.Info.PushName,
		Type:        msgType,
		Timestamp:   evt.Info.Timestamp.Unix(),
	}

	select {
	case <-s.done:
		slog.Debug("MeowService stopped, dropping message", "from", mc.UserID)
		return
	default:
	}

	select {
	case s.events <- mc:
		slog.Info("MeowService incoming message forwarded", "from", mc.UserID, "type", mc.Type)
	case <-s.done:
		slog.Debug("MeowService stopped, dropping message", "from", mc.UserID)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("MeowService events channel blocked, dropping message", "from", mc.UserID, "timeout", DefaultChannelTimeout)
	}
}
