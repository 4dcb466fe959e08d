package models

import "testing"

func TestIsValidSessionState(t *testing.T) {
	valid := []SessionState{
		StateIdle, StateAwaitingPartSearch, StateAwaitingStatusSearch,
		StateAwaitingOrderNumber, StatePostConsultation, StatePostStatus, StatePostOrder,
	}
	for _, s := range valid {
		if !IsValidSessionState(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}

	invalid := []SessionState{"", "waiting", "post_", "IDLE"}
	for _, s := range invalid {
		if IsValidSessionState(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	resp := Error("bad payload")
	if resp.Status != string(APIStatusError) {
		t.Errorf("expected error status, got %q", resp.Status)
	}
	if resp.Message != "bad payload" {
		t.Errorf("expected message to carry through, got %q", resp.Message)
	}

	ok := Success(map[string]int{"count": 3})
	if ok.Status != string(APIStatusOK) {
		t.Errorf("expected ok status, got %q", ok.Status)
	}
	if ok.Result == nil {
		t.Error("expected result payload")
	}

	hook := WebhookAccepted("Mensaje procesado correctamente")
	if hook.Status != string(APIStatusSuccess) {
		t.Errorf("expected success status for webhook ack, got %q", hook.Status)
	}
}
