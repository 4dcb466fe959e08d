// Package models defines the core data structures for avanbot.
//
// It includes the inbound message context, conversation session states,
// detected intents, and the inventory/order domain records shared across modules.
package models

import (
	"errors"
	"time"
)

// MessageType identifies the kind of inbound WhatsApp message.
type MessageType string

const (
	// MessageTypeText is a plain text message.
	MessageTypeText MessageType = "text"
	// MessageTypeButton is a legacy button reply.
	MessageTypeButton MessageType = "button"
	// MessageTypeInteractive is an interactive (button/list) reply.
	MessageTypeInteractive MessageType = "interactive"
	// MessageTypeImage is an image message.
	MessageTypeImage MessageType = "image"
	// MessageTypeDocument is a document message.
	MessageTypeDocument MessageType = "document"
	// MessageTypeAudio is an audio message.
	MessageTypeAudio MessageType = "audio"
	// MessageTypeVideo is a video message.
	MessageTypeVideo MessageType = "video"
	// MessageTypeUnknown is any message type the ingress could not classify.
	MessageTypeUnknown MessageType = "unknown"
)

// MessageContext is the immutable per-event value built once by the ingress
// and threaded through the router. Text is already normalized to lowercase.
type MessageContext struct {
	Text        string
	UserID      string
	MessageID   string
	DisplayName string
	Type        MessageType
	MediaID     string // media reference for image/document messages, if any
	Timestamp   int64
}

// SessionState is the closed set of conversation states a user can be in.
type SessionState string

const (
	// StateIdle means no active conversation flow.
	StateIdle SessionState = "idle"
	// StateAwaitingPartSearch means the user was prompted for a part term.
	StateAwaitingPartSearch SessionState = "awaiting_part_search"
	// StateAwaitingStatusSearch means the user was prompted for a status term.
	StateAwaitingStatusSearch SessionState = "awaiting_status_search"
	// StateAwaitingOrderNumber means the user was prompted for an order number.
	StateAwaitingOrderNumber SessionState = "awaiting_order_number"
	// StatePostConsultation follows a completed part search, awaiting yes/no.
	StatePostConsultation SessionState = "post_consultation"
	// StatePostStatus follows a completed status search, awaiting yes/no.
	StatePostStatus SessionState = "post_status"
	// StatePostOrder follows a completed order lookup, awaiting yes/no.
	StatePostOrder SessionState = "post_order"
)

// IsValidSessionState checks if the given state belongs to the closed enum.
func IsValidSessionState(s SessionState) bool {
	switch s {
	case StateIdle, StateAwaitingPartSearch, StateAwaitingStatusSearch,
		StateAwaitingOrderNumber, StatePostConsultation, StatePostStatus, StatePostOrder:
		return true
	default:
		return false
	}
}

// IntentType tags the structured classification of free text.
type IntentType string

const (
	// IntentPart is a part/inventory lookup intent.
	IntentPart IntentType = "part"
	// IntentOrder is an order lookup intent.
	IntentOrder IntentType = "order"
	// IntentStatus is a part status intent.
	IntentStatus IntentType = "status"
	// IntentNone means no structured intent was detected.
	IntentNone IntentType = "none"
)

// Intent is the output of the automatic query dispatcher. Term carries the
// captured token for part/status intents; Number carries the captured digits
// for order intents.
type Intent struct {
	Type   IntentType
	Term   string
	Number string
}

// Availability is the stock of a part in one warehouse.
type Availability struct {
	Warehouse string `json:"warehouse"`
	Quantity  int    `json:"quantity"`
}

// StatusInfo is the production status attached to a part.
type StatusInfo struct {
	Stage     string `json:"stage"`
	UpdatedAt string `json:"updated_at"`
}

// Part is one inventory record. Availability and Status are populated
// depending on which lookup produced the record.
type Part struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Code         string         `json:"code"`
	Availability []Availability `json:"availability,omitempty"`
	Status       *StatusInfo    `json:"status,omitempty"`
}

// Order is one sales order record with rollup percentages as stored upstream.
type Order struct {
	DocNum          int64  `json:"doc_num"`
	CardName        string `json:"card_name"`
	PaidToDate      string `json:"paid_to_date"`
	InvoicedToDate  string `json:"invoiced_to_date"`
	DeliveredToDate string `json:"delivered_to_date"`
}

// Interaction is one analytics record, appended per handled event.
type Interaction struct {
	ID        int64     `json:"id,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Context   string    `json:"context"` // user identifier
	Timestamp time.Time `json:"timestamp"`
}

// Validation errors shared across modules.
var (
	ErrEmptyRecipient    = errors.New("recipient cannot be empty")
	ErrEmptyBody         = errors.New("message body cannot be empty")
	ErrInvalidOrderInput = errors.New("order number must be numeric")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusSuccess keeps compatibility with the webhook contract, which
	// answers {"status":"success"} to the messaging platform.
	APIStatusSuccess APIStatus = "success"
)

// APIResponse is the standard JSON envelope returned by the HTTP layer.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// WebhookAccepted creates the acknowledgement body expected by the platform.
func WebhookAccepted(message string) APIResponse {
	return APIResponse{Status: string(APIStatusSuccess), Message: message}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
