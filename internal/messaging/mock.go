package messaging

import (
	"context"
	"sync"

	"github.com/avans-mx/avanbot/internal/models"
)

// SentMessage records one outbound message captured by the mock.
type SentMessage struct {
	To          string
	Body        string
	Interactive bool
}

// MockService implements Service in memory for tests. It records every send
// and can be scripted to fail.
type MockService struct {
	mu       sync.Mutex
	Sent     []SentMessage
	ReadIDs  []string
	SendErr  error
	Attempts int
	events   chan models.MessageContext
}

// NewMockService creates an empty mock transport.
func NewMockService() *MockService {
	return &MockService{events: make(chan models.MessageContext, DefaultChannelBufferSize)}
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	return recipient, nil
}

func (m *MockService) SendText(_ context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts++
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockService) SendInteractive(_ context.Context, to string, payloadJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts++
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, SentMessage{To: to, Body: payloadJSON, Interactive: true})
	return nil
}

func (m *MockService) MarkRead(_ context.Context, _ string, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadIDs = append(m.ReadIDs, messageID)
	return nil
}

func (m *MockService) Start(ctx context.Context) error { return nil }

func (m *MockService) Stop() error {
	close(m.events)
	return nil
}

func (m *MockService) Events() <-chan models.MessageContext {
	return m.events
}

// Inject pushes an inbound event through the mock's events channel.
func (m *MockService) Inject(mc models.MessageContext) {
	m.events <- mc
}

// SentBodies returns the bodies of all captured messages.
func (m *MockService) SentBodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Sent))
	for i, s := range m.Sent {
		out[i] = s.Body
	}
	return out
}
