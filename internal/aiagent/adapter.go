package aiagent

import (
	"context"
	"errors"
	"net/http"
)

// AgentAdapter is the provider-agnostic interface for AI voice-agent platforms.
//
// Rules:
// - Initialize must be called before any other method; calling earlier is a
//   programmer error and returns ErrNotInitialized.
// - ParseWebhook and ValidateWebhook are pure and never panic on malformed
//   payloads; unknown event types return nil.
type AgentAdapter interface {
	Code() Code

	Initialize(config Config) error

	// CheckHealth probes platform reachability. A 401 can still count as
	// healthy when the platform is reachable but the key is misconfigured
	// (connectivity and authorization are separate concerns).
	CheckHealth(ctx context.Context) HealthStatus

	// SipURI returns the SIP address a telephony leg should dial to reach the
	// agent. When params carry an AgentContext a context-specific assistant is
	// provisioned first.
	SipURI(ctx context.Context, params SipURIParams) (string, error)

	// CreateOrUpdateAssistant provisions (or refreshes) the voice assistant
	// and returns its platform id.
	CreateOrUpdateAssistant(ctx context.Context, params AssistantParams) (string, error)

	// ParseWebhook maps a call-ended platform event to the canonical shape.
	ParseWebhook(req WebhookRequest) *CallEndedEvent

	ValidateWebhook(req WebhookRequest) bool
}

type Code string

const (
	CodeVAPI       Code = "vapi"
	CodeElevenLabs Code = "elevenlabs"
)

// Codes lists every supported agent platform.
func Codes() []Code {
	return []Code{CodeVAPI, CodeElevenLabs}
}

var ErrNotInitialized = errors.New("aiagent: adapter not initialized")

// Config is the decrypted platform config bag (apiKey, assistantId, agentId,
// voiceId, webhookSecret, ...). Never log values.
type Config map[string]string

type HealthStatus struct {
	Healthy   bool   `json:"healthy"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

type SipURIParams struct {
	// AssistantID overrides the configured default assistant.
	AssistantID string

	// Context, when set, provisions a call-specific assistant before issuing
	// the URI.
	Context *AgentContext
}

type AssistantParams struct {
	Name           string
	SystemPrompt   string
	Voice          string
	Language       string
	TransferNumber string
	WebhookURL     string
}

// AgentContext is the ephemeral prompt-construction input for one diverted
// call. It is consumed once per provisioning call and never persisted.
type AgentContext struct {
	Reason         DivertReason
	ManagerName    string
	ContactName    string
	ContactCompany string
	CompanyName    string
	CallHistory    []string
}

type DivertReason string

const (
	ReasonAfterHours DivertReason = "after_hours"
	ReasonNoAnswer   DivertReason = "no_answer"
	ReasonBusy       DivertReason = "busy"
	ReasonOverflow   DivertReason = "overflow"
)

type EndReason string

const (
	EndCustomerEnded  EndReason = "customer_ended"
	EndAssistantEnded EndReason = "assistant_ended"
	EndTransferred    EndReason = "transferred"
	EndError          EndReason = "error"
)

type TranscriptTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CallEndedEvent is the canonical call-end report from an agent platform.
type CallEndedEvent struct {
	ProviderCallID  string           `json:"provider_call_id"`
	AssistantID     string           `json:"assistant_id,omitempty"`
	EndReason       EndReason        `json:"end_reason"`
	Transcript      []TranscriptTurn `json:"transcript,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	RecordingURL    string           `json:"recording_url,omitempty"`
	DurationSeconds int              `json:"duration_seconds,omitempty"`
	Raw             string           `json:"raw,omitempty"`
}

// WebhookRequest carries the parts of an inbound platform callback needed for
// verification and parsing.
type WebhookRequest struct {
	Header http.Header
	Body   []byte
}
