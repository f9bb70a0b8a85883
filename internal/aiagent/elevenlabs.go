package aiagent

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL   = "https://api.elevenlabs.io/v1"
	elevenLabsSIPDomain = "sip.rtc.elevenlabs.io"
)

// ElevenLabs conversational-agent adapter. Auth via the xi-api-key header;
// webhooks carry an HMAC-SHA256 signature in ElevenLabs-Signature.
type ElevenLabs struct {
	base string
	hc   *http.Client
	cfg  Config
}

func NewElevenLabs() *ElevenLabs {
	return &ElevenLabs{base: elevenLabsBaseURL, hc: &http.Client{}}
}

func (a *ElevenLabs) Code() Code { return CodeElevenLabs }

func (a *ElevenLabs) Initialize(config Config) error {
	if config["apiKey"] == "" {
		return fmt.Errorf("elevenlabs: apiKey is required")
	}
	a.cfg = config
	return nil
}

func (a *ElevenLabs) CheckHealth(ctx context.Context) HealthStatus {
	if a.cfg == nil {
		return HealthStatus{Healthy: false, Error: ErrNotInitialized.Error()}
	}

	start := time.Now()
	status, _, err := doJSON(ctx, a.hc, "GET", a.base+"/user", a.headers(), nil)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return HealthStatus{Healthy: false, LatencyMS: latency, Error: err.Error()}
	}
	if !is2xx(status) {
		return HealthStatus{Healthy: false, LatencyMS: latency, Error: fmt.Sprintf("elevenlabs returned %d", status)}
	}
	return HealthStatus{Healthy: true, LatencyMS: latency}
}

func (a *ElevenLabs) SipURI(ctx context.Context, params SipURIParams) (string, error) {
	if a.cfg == nil {
		return "", ErrNotInitialized
	}

	agentID := params.AssistantID
	if agentID == "" {
		agentID = a.cfg["agentId"]
	}
	if params.Context != nil {
		id, err := a.CreateOrUpdateAssistant(ctx, AssistantParams{
			Name:         "diverted-call",
			SystemPrompt: BuildSystemPrompt(*params.Context),
			Voice:        a.cfg["voiceId"],
			Language:     "ru",
		})
		if err != nil {
			return "", err
		}
		agentID = id
	}
	if agentID == "" {
		return "", fmt.Errorf("elevenlabs: agentId is required")
	}
	return "sip:" + agentID + "@" + elevenLabsSIPDomain, nil
}

func (a *ElevenLabs) CreateOrUpdateAssistant(ctx context.Context, params AssistantParams) (string, error) {
	if a.cfg == nil {
		return "", ErrNotInitialized
	}

	agentConfig := map[string]any{
		"prompt": map[string]string{"prompt": params.SystemPrompt},
	}
	if params.Language != "" {
		agentConfig["language"] = params.Language
	}
	conversationConfig := map[string]any{"agent": agentConfig}
	if params.Voice != "" {
		conversationConfig["tts"] = map[string]string{"voice_id": params.Voice}
	}
	payload := map[string]any{
		"name":                params.Name,
		"conversation_config": conversationConfig,
	}

	method, endpoint := "POST", a.base+"/convai/agents/create"
	if existing := a.cfg["agentId"]; existing != "" {
		method, endpoint = "PATCH", a.base+"/convai/agents/"+url.PathEscape(existing)
	}

	status, body, err := doJSON(ctx, a.hc, method, endpoint, a.headers(), payload)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: agent provisioning: %w", err)
	}
	if !is2xx(status) {
		return "", fmt.Errorf("elevenlabs: agent provisioning failed: %d", status)
	}

	var agent struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.Unmarshal(body, &agent); err != nil || agent.AgentID == "" {
		// PATCH responses may omit the id; fall back to the configured one.
		if existing := a.cfg["agentId"]; existing != "" {
			return existing, nil
		}
		return "", fmt.Errorf("elevenlabs: agent response carried no id")
	}
	return agent.AgentID, nil
}

// elevenLabsEndReasonMap translates termination reasons to the canonical enum.
var elevenLabsEndReasonMap = map[string]EndReason{
	"customer_ended_call": EndCustomerEnded,
	"end_call_tool":       EndAssistantEnded,
	"agent_ended_call":    EndAssistantEnded,
	"transfer_to_number":  EndTransferred,
	"error":               EndError,
}

// ParseWebhook handles post_call_transcription events; everything else is nil.
func (a *ElevenLabs) ParseWebhook(req WebhookRequest) *CallEndedEvent {
	var envelope struct {
		Type string `json:"type"`
		Data struct {
			ConversationID string `json:"conversation_id"`
			AgentID        string `json:"agent_id"`
			Transcript     []struct {
				Role    string `json:"role"`
				Message string `json:"message"`
			} `json:"transcript"`
			Metadata struct {
				CallDurationSecs  int    `json:"call_duration_secs"`
				TerminationReason string `json:"termination_reason"`
				RecordingURL      string `json:"recording_url"`
			} `json:"metadata"`
			Analysis struct {
				TranscriptSummary string `json:"transcript_summary"`
			} `json:"analysis"`
		} `json:"data"`
	}
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil
	}
	if envelope.Type != "post_call_transcription" {
		return nil
	}

	endReason, ok := elevenLabsEndReasonMap[envelope.Data.Metadata.TerminationReason]
	if !ok {
		endReason = EndError
	}

	transcript := make([]TranscriptTurn, 0, len(envelope.Data.Transcript))
	for _, turn := range envelope.Data.Transcript {
		role := turn.Role
		if role == "agent" {
			role = "assistant"
		}
		transcript = append(transcript, TranscriptTurn{Role: role, Content: turn.Message})
	}

	return &CallEndedEvent{
		ProviderCallID:  envelope.Data.ConversationID,
		AssistantID:     envelope.Data.AgentID,
		EndReason:       endReason,
		Transcript:      transcript,
		Summary:         envelope.Data.Analysis.TranscriptSummary,
		RecordingURL:    envelope.Data.Metadata.RecordingURL,
		DurationSeconds: envelope.Data.Metadata.CallDurationSecs,
		Raw:             string(req.Body),
	}
}

// ValidateWebhook verifies the ElevenLabs-Signature header
// ("t=<unix>,v0=<hex>"): HMAC-SHA256 over "<timestamp>.<body>" keyed by the
// configured webhook secret.
func (a *ElevenLabs) ValidateWebhook(req WebhookRequest) bool {
	if a.cfg == nil {
		return false
	}
	secret := a.cfg["webhookSecret"]
	header := req.Header.Get("ElevenLabs-Signature")
	if secret == "" || header == "" {
		return false
	}

	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		switch {
		case strings.HasPrefix(part, "t="):
			timestamp = strings.TrimPrefix(part, "t=")
		case strings.HasPrefix(part, "v0="):
			signature = strings.TrimPrefix(part, "v0=")
		}
	}
	if timestamp == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(req.Body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func (a *ElevenLabs) headers() map[string]string {
	return map[string]string{"xi-api-key": a.cfg["apiKey"]}
}
