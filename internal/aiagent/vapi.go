package aiagent

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	vapiBaseURL   = "https://api.vapi.ai"
	vapiSIPDomain = "sip.vapi.ai"
)

// VAPI adapter. Bearer auth; assistants are provisioned via the REST API and
// reached over SIP at <assistantId>@sip.vapi.ai.
type VAPI struct {
	base string
	hc   *http.Client
	cfg  Config
}

func NewVAPI() *VAPI {
	return &VAPI{base: vapiBaseURL, hc: &http.Client{}}
}

func (a *VAPI) Code() Code { return CodeVAPI }

func (a *VAPI) Initialize(config Config) error {
	if config["apiKey"] == "" {
		return fmt.Errorf("vapi: apiKey is required")
	}
	a.cfg = config
	return nil
}

// CheckHealth probes the assistant listing endpoint. A 401 means the platform
// is reachable but the key is wrong; that is reported healthy with an error
// note so connectivity alerts and credential alerts stay separate.
func (a *VAPI) CheckHealth(ctx context.Context) HealthStatus {
	if a.cfg == nil {
		return HealthStatus{Healthy: false, Error: ErrNotInitialized.Error()}
	}

	start := time.Now()
	status, _, err := doJSON(ctx, a.hc, "GET", a.base+"/assistant?limit=1", a.headers(), nil)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return HealthStatus{Healthy: false, LatencyMS: latency, Error: err.Error()}
	}
	if status == 401 {
		return HealthStatus{Healthy: true, LatencyMS: latency, Error: "vapi reachable but rejected the api key"}
	}
	if !is2xx(status) {
		return HealthStatus{Healthy: false, LatencyMS: latency, Error: fmt.Sprintf("vapi returned %d", status)}
	}
	return HealthStatus{Healthy: true, LatencyMS: latency}
}

func (a *VAPI) SipURI(ctx context.Context, params SipURIParams) (string, error) {
	if a.cfg == nil {
		return "", ErrNotInitialized
	}

	assistantID := params.AssistantID
	if assistantID == "" {
		assistantID = a.cfg["assistantId"]
	}
	if params.Context != nil {
		id, err := a.CreateOrUpdateAssistant(ctx, AssistantParams{
			Name:         "diverted-call",
			SystemPrompt: BuildSystemPrompt(*params.Context),
			Voice:        a.cfg["voiceId"],
			WebhookURL:   a.cfg["webhookUrl"],
		})
		if err != nil {
			return "", err
		}
		assistantID = id
	}
	if assistantID == "" {
		return "", fmt.Errorf("vapi: assistantId is required")
	}
	return "sip:" + assistantID + "@" + vapiSIPDomain, nil
}

func (a *VAPI) CreateOrUpdateAssistant(ctx context.Context, params AssistantParams) (string, error) {
	if a.cfg == nil {
		return "", ErrNotInitialized
	}

	payload := map[string]any{
		"name": params.Name,
		"model": map[string]any{
			"provider": "openai",
			"model":    "gpt-4o",
			"messages": []map[string]string{
				{"role": "system", "content": params.SystemPrompt},
			},
		},
	}
	if params.Voice != "" {
		payload["voice"] = map[string]string{"provider": "11labs", "voiceId": params.Voice}
	}
	if params.Language != "" {
		payload["transcriber"] = map[string]string{"provider": "deepgram", "language": params.Language}
	}
	if params.WebhookURL != "" {
		payload["serverUrl"] = params.WebhookURL
	}
	if params.TransferNumber != "" {
		payload["forwardingPhoneNumber"] = params.TransferNumber
	}

	method, endpoint := "POST", a.base+"/assistant"
	if existing := a.cfg["assistantId"]; existing != "" {
		method, endpoint = "PATCH", a.base+"/assistant/"+url.PathEscape(existing)
	}

	status, body, err := doJSON(ctx, a.hc, method, endpoint, a.headers(), payload)
	if err != nil {
		return "", fmt.Errorf("vapi: assistant provisioning: %w", err)
	}
	if !is2xx(status) {
		return "", fmt.Errorf("vapi: assistant provisioning failed: %d", status)
	}

	var assistant struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &assistant); err != nil || assistant.ID == "" {
		return "", fmt.Errorf("vapi: assistant response carried no id")
	}
	return assistant.ID, nil
}

// vapiEndReasonMap translates endedReason values to the canonical enum.
// Pipeline errors are matched by prefix below.
var vapiEndReasonMap = map[string]EndReason{
	"customer-ended-call":      EndCustomerEnded,
	"assistant-ended-call":     EndAssistantEnded,
	"assistant-forwarded-call": EndTransferred,
	"phone-call-provider-closed-websocket": EndError,
}

// ParseWebhook handles end-of-call-report messages; everything else is nil.
func (a *VAPI) ParseWebhook(req WebhookRequest) *CallEndedEvent {
	var envelope struct {
		Message struct {
			Type        string `json:"type"`
			EndedReason string `json:"endedReason"`
			Summary     string `json:"summary"`
			Call        struct {
				ID          string `json:"id"`
				AssistantID string `json:"assistantId"`
			} `json:"call"`
			RecordingURL string `json:"recordingUrl"`
			DurationSecs float64 `json:"durationSeconds"`
			Messages     []struct {
				Role    string `json:"role"`
				Message string `json:"message"`
			} `json:"messages"`
		} `json:"message"`
	}
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil
	}
	if envelope.Message.Type != "end-of-call-report" {
		return nil
	}

	// Unknown endedReason values (pipeline-error-*, provider faults) collapse
	// to the error bucket rather than dropping the report.
	endReason, ok := vapiEndReasonMap[envelope.Message.EndedReason]
	if !ok {
		endReason = EndError
	}

	transcript := make([]TranscriptTurn, 0, len(envelope.Message.Messages))
	for _, m := range envelope.Message.Messages {
		if m.Role == "system" {
			continue
		}
		transcript = append(transcript, TranscriptTurn{Role: m.Role, Content: m.Message})
	}

	return &CallEndedEvent{
		ProviderCallID:  envelope.Message.Call.ID,
		AssistantID:     envelope.Message.Call.AssistantID,
		EndReason:       endReason,
		Transcript:      transcript,
		Summary:         envelope.Message.Summary,
		RecordingURL:    envelope.Message.RecordingURL,
		DurationSeconds: int(envelope.Message.DurationSecs),
		Raw:             string(req.Body),
	}
}

// ValidateWebhook compares the x-vapi-secret header against the configured
// server secret in constant time.
func (a *VAPI) ValidateWebhook(req WebhookRequest) bool {
	if a.cfg == nil {
		return false
	}
	secret := a.cfg["webhookSecret"]
	presented := req.Header.Get("x-vapi-secret")
	if secret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(presented)) == 1
}

func (a *VAPI) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.cfg["apiKey"]}
}
