package messaging

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCoordinatorDeliverRoutesByPrefix(t *testing.T) {
	mock := NewMockService()
	coord := NewCoordinator(mock, WithPacing(time.Millisecond))

	responses := []string{
		"texto plano",
		`{"messaging_product":"whatsapp","type":"interactive"}`,
		"despedida",
	}
	coord.Deliver(context.Background(), "524771234567", responses)

	if len(mock.Sent) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(mock.Sent))
	}
	if mock.Sent[0].Interactive || mock.Sent[2].Interactive {
		t.Error("plain text responses routed as interactive")
	}
	if !mock.Sent[1].Interactive {
		t.Error("JSON response not routed as interactive")
	}
}

func TestCoordinatorDeliverContinuesAfterSendError(t *testing.T) {
	mock := NewMockService()
	mock.SendErr = errors.New("network down")
	coord := NewCoordinator(mock, WithPacing(time.Millisecond))

	coord.Deliver(context.Background(), "524771234567", []string{"uno", "dos"})

	if mock.Attempts != 2 {
		t.Errorf("expected both sends attempted, got %d", mock.Attempts)
	}
}

func TestCoordinatorDeliverStopsOnCancelledContext(t *testing.T) {
	mock := NewMockService()
	coord := NewCoordinator(mock, WithPacing(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Deliver(ctx, "524771234567", []string{"uno", "dos", "tres"})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver did not stop after context cancellation")
	}
	if len(mock.Sent) != 1 {
		t.Errorf("expected 1 send before cancellation, got %d", len(mock.Sent))
	}
}

func TestCoordinatorDeliverEmpty(t *testing.T) {
	mock := NewMockService()
	coord := NewCoordinator(mock)

	coord.Deliver(context.Background(), "524771234567", nil)

	if len(mock.Sent) != 0 {
		t.Errorf("expected no sends for empty responses, got %d", len(mock.Sent))
	}
}
