package telephony

import (
	"context"
	"net/http"
	"time"
)

// Adapter is the provider-agnostic call-control interface used by business logic.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Keep request/response types provider-agnostic; vendor payloads travel only
//   in CallEvent.Raw.
// - Expected vendor failures (auth rejection, non-2xx, transport errors) are
//   returned as result data, never as panics. Error returns are reserved for
//   programmer errors and list operations.
// - ParseWebhook and ValidateWebhook are pure: no network, no state.
type Adapter interface {
	Code() Code

	// ValidateCredentials performs a low-cost authenticated vendor call.
	// Missing required fields are detected locally, before any network I/O.
	ValidateCredentials(ctx context.Context, creds Credentials) ValidationResult

	// ListNumbers maps vendor number records to the canonical shape.
	ListNumbers(ctx context.Context, creds Credentials) ([]PhoneNumber, error)

	MakeCall(ctx context.Context, creds Credentials, params MakeCallParams) MakeCallResult
	Hangup(ctx context.Context, creds Credentials, callID string) ControlResult
	Transfer(ctx context.Context, creds Credentials, params TransferParams) ControlResult

	// ParseWebhook maps a vendor event to the canonical shape.
	// Unmappable payloads return nil; callers ignore them.
	ParseWebhook(req WebhookRequest) *CallEvent

	// ValidateWebhook cryptographically verifies the vendor's signature.
	// It must gate ParseWebhook: an event from an unverified request is untrusted.
	ValidateWebhook(req WebhookRequest, secret string) bool
}

// Code identifies a telephony vendor. The set is closed; adding a vendor means
// adding a constant here and a case to the registry factory.
type Code string

const (
	CodeTwilio Code = "twilio"
	CodeTelnyx Code = "telnyx"
	CodeVonage Code = "vonage"
)

// Codes lists every supported telephony vendor.
func Codes() []Code {
	return []Code{CodeTwilio, CodeTelnyx, CodeVonage}
}

// Credentials is the decrypted provider config bag. Keys are vendor-specific
// (accountSid/authToken for Twilio, apiKey/connectionId for Telnyx, ...).
// Never log or return these unmasked.
type Credentials map[string]string

type EventType string

const (
	EventInitiated      EventType = "initiated"
	EventRinging        EventType = "ringing"
	EventAnswered       EventType = "answered"
	EventEnded          EventType = "ended"
	EventFailed         EventType = "failed"
	EventRecordingReady EventType = "recording_ready"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// CallEvent is the vendor-independent representation of a call-lifecycle
// occurrence. Every vendor webhook that maps to a known status produces exactly
// one CallEvent; unknown statuses are dropped upstream (nil from ParseWebhook).
type CallEvent struct {
	Type           EventType `json:"type"`
	CallID         string    `json:"call_id"`
	ProviderCallID string    `json:"provider_call_id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Direction      Direction `json:"direction"`

	// Timestamp is the provider event time; zero when the vendor omitted it.
	Timestamp time.Time `json:"timestamp"`

	DurationSeconds int    `json:"duration_seconds,omitempty"`
	EndReason       string `json:"end_reason,omitempty"`
	RecordingURL    string `json:"recording_url,omitempty"`

	// Raw is the original vendor payload for debugging/audit.
	Raw string `json:"raw,omitempty"`
}

type NumberType string

const (
	NumberTypeLocal    NumberType = "local"
	NumberTypeTollfree NumberType = "tollfree"
	NumberTypeMobile   NumberType = "mobile"
	NumberTypeUnknown  NumberType = "unknown"
)

type Capabilities struct {
	Voice bool `json:"voice"`
	SMS   bool `json:"sms"`
	MMS   bool `json:"mms"`
	Fax   bool `json:"fax"`
}

// PhoneNumber is a provider-agnostic number record.
type PhoneNumber struct {
	PhoneNumber      string       `json:"phone_number"`
	ProviderNumberID string       `json:"provider_number_id"`
	FriendlyName     string       `json:"friendly_name,omitempty"`
	Type             NumberType   `json:"type"`
	Country          string       `json:"country"`
	Capabilities     Capabilities `json:"capabilities"`
}

// ValidationResult reports whether a vendor accepted the credentials.
// Local validation failures, vendor rejections and transport failures all land
// here as Valid=false with a human-readable Error.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Error       string            `json:"error,omitempty"`
	AccountInfo map[string]string `json:"account_info,omitempty"`
}

type MakeCallParams struct {
	From       string `json:"from"`
	To         string `json:"to"`
	CallerID   string `json:"caller_id,omitempty"`
	Record     bool   `json:"record,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

type MakeCallResult struct {
	Success        bool   `json:"success"`
	CallID         string `json:"call_id,omitempty"`
	ProviderCallID string `json:"provider_call_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

type TransferType string

const (
	TransferBlind TransferType = "blind"
	TransferWarm  TransferType = "warm"
)

type TransferParams struct {
	CallID string       `json:"call_id"`
	To     string       `json:"to"`
	Type   TransferType `json:"type"`
}

// ControlResult is the outcome of a call-control mutation (hangup, transfer).
type ControlResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// WebhookRequest carries the parts of an inbound vendor callback that parsing
// and signature verification need. Body is read once by the HTTP layer.
type WebhookRequest struct {
	// URL is the full public URL the vendor called; Twilio signs over it.
	URL    string
	Header http.Header
	Body   []byte
}
