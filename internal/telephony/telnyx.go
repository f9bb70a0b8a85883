package telephony

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

const telnyxBaseURL = "https://api.telnyx.com/v2"

// Telnyx adapter. Bearer auth, JSON bodies, call_control_id/call_leg_id call
// identifiers, Ed25519-signed webhooks.
type Telnyx struct {
	base string
	rest *restClient
}

func NewTelnyx() *Telnyx {
	return &Telnyx{base: telnyxBaseURL, rest: newRESTClient()}
}

func (t *Telnyx) Code() Code { return CodeTelnyx }

// telnyxEventMap translates Call Control event types to canonical event types.
var telnyxEventMap = map[string]EventType{
	"call.initiated":       EventInitiated,
	"call.ringing":         EventRinging,
	"call.answered":        EventAnswered,
	"call.bridged":         EventAnswered,
	"call.hangup":          EventEnded,
	"call.recording.saved": EventRecordingReady,
}

func (t *Telnyx) ValidateCredentials(ctx context.Context, creds Credentials) ValidationResult {
	apiKey := creds["apiKey"]
	if apiKey == "" {
		return ValidationResult{Valid: false, Error: "apiKey is required"}
	}

	status, body, err := t.rest.do(ctx, restRequest{
		method: "GET",
		url:    t.base + "/balance",
		bearer: apiKey,
	})
	if err != nil {
		return ValidationResult{Valid: false, Error: "telnyx unreachable: " + err.Error()}
	}
	if status == 401 {
		return ValidationResult{Valid: false, Error: "telnyx rejected credentials"}
	}
	if !is2xx(status) {
		return ValidationResult{Valid: false, Error: vendorError("balance fetch", status, body)}
	}

	var balance struct {
		Data struct {
			Balance  string `json:"balance"`
			Currency string `json:"currency"`
		} `json:"data"`
	}
	_ = json.Unmarshal(body, &balance)
	return ValidationResult{
		Valid: true,
		AccountInfo: map[string]string{
			"balance":  balance.Data.Balance,
			"currency": balance.Data.Currency,
		},
	}
}

func (t *Telnyx) ListNumbers(ctx context.Context, creds Credentials) ([]PhoneNumber, error) {
	apiKey := creds["apiKey"]
	if apiKey == "" {
		return nil, fmt.Errorf("telnyx: apiKey is required")
	}

	status, body, err := t.rest.do(ctx, restRequest{
		method: "GET",
		url:    t.base + "/phone_numbers",
		bearer: apiKey,
	})
	if err != nil {
		return nil, err
	}
	if !is2xx(status) {
		return nil, fmt.Errorf("telnyx: %s", vendorError("number listing", status, body))
	}

	var page struct {
		Data []struct {
			ID                 string `json:"id"`
			PhoneNumber        string `json:"phone_number"`
			PhoneNumberType    string `json:"phone_number_type"`
			MessagingProfileID string `json:"messaging_profile_id"`
			CountryISOAlpha2   string `json:"country_iso_alpha2"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("telnyx: decode number listing: %w", err)
	}

	numbers := make([]PhoneNumber, 0, len(page.Data))
	for _, n := range page.Data {
		numbers = append(numbers, PhoneNumber{
			PhoneNumber:      NormalizePhone(n.PhoneNumber),
			ProviderNumberID: n.ID,
			Type:             telnyxNumberType(n.PhoneNumberType),
			Country:          n.CountryISOAlpha2,
			Capabilities: Capabilities{
				Voice: true,
				// SMS capability is inferred: numbers without a messaging
				// profile cannot send messages on Telnyx.
				SMS: n.MessagingProfileID != "",
				MMS: n.MessagingProfileID != "",
			},
		})
	}
	return numbers, nil
}

func (t *Telnyx) MakeCall(ctx context.Context, creds Credentials, params MakeCallParams) MakeCallResult {
	apiKey := creds["apiKey"]
	if apiKey == "" {
		return MakeCallResult{Success: false, Error: "apiKey is required"}
	}
	connectionID := creds["connectionId"]
	if connectionID == "" {
		return MakeCallResult{Success: false, Error: "connectionId is required"}
	}
	if params.From == "" {
		return MakeCallResult{Success: false, Error: "from is required"}
	}
	if params.To == "" {
		return MakeCallResult{Success: false, Error: "to is required"}
	}

	from := NormalizePhone(params.From)
	if params.CallerID != "" {
		from = NormalizePhone(params.CallerID)
	}

	payload := map[string]any{
		"connection_id": connectionID,
		"to":            NormalizePhone(params.To),
		"from":          from,
	}
	if params.WebhookURL != "" {
		payload["webhook_url"] = params.WebhookURL
	}
	if params.Record {
		payload["record"] = "record-from-answer"
	}

	status, body, err := t.rest.do(ctx, restRequest{
		method:   "POST",
		url:      t.base + "/calls",
		bearer:   apiKey,
		jsonBody: payload,
	})
	if err != nil {
		return MakeCallResult{Success: false, Error: "telnyx unreachable: " + err.Error()}
	}
	if !is2xx(status) {
		return MakeCallResult{Success: false, Error: vendorError("call creation", status, body)}
	}

	var call struct {
		Data struct {
			CallControlID string `json:"call_control_id"`
			CallLegID     string `json:"call_leg_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &call); err != nil || call.Data.CallControlID == "" {
		return MakeCallResult{Success: false, Error: "telnyx returned no call_control_id"}
	}
	return MakeCallResult{
		Success:        true,
		CallID:         call.Data.CallControlID,
		ProviderCallID: call.Data.CallLegID,
	}
}

func (t *Telnyx) Hangup(ctx context.Context, creds Credentials, callID string) ControlResult {
	return t.callAction(ctx, creds, callID, "hangup", map[string]any{})
}

// Transfer moves the call leg to a new destination. Telnyx's transfer action
// covers both blind and warm semantics at this layer.
func (t *Telnyx) Transfer(ctx context.Context, creds Credentials, params TransferParams) ControlResult {
	if params.To == "" {
		return ControlResult{Success: false, Error: "to is required"}
	}
	return t.callAction(ctx, creds, params.CallID, "transfer", map[string]any{
		"to": NormalizePhone(params.To),
	})
}

func (t *Telnyx) callAction(ctx context.Context, creds Credentials, callID, action string, payload map[string]any) ControlResult {
	apiKey := creds["apiKey"]
	if apiKey == "" {
		return ControlResult{Success: false, Error: "apiKey is required"}
	}
	if callID == "" {
		return ControlResult{Success: false, Error: "callId is required"}
	}

	status, body, err := t.rest.do(ctx, restRequest{
		method:   "POST",
		url:      t.base + "/calls/" + url.PathEscape(callID) + "/actions/" + action,
		bearer:   apiKey,
		jsonBody: payload,
	})
	if err != nil {
		return ControlResult{Success: false, Error: "telnyx unreachable: " + err.Error()}
	}
	if !is2xx(status) {
		return ControlResult{Success: false, Error: vendorError(action, status, body)}
	}
	return ControlResult{Success: true}
}

// ParseWebhook maps a Telnyx event envelope to a CallEvent.
func (t *Telnyx) ParseWebhook(req WebhookRequest) *CallEvent {
	var envelope struct {
		Data struct {
			EventType  string `json:"event_type"`
			OccurredAt string `json:"occurred_at"`
			Payload    struct {
				CallControlID string `json:"call_control_id"`
				CallLegID     string `json:"call_leg_id"`
				From          string `json:"from"`
				To            string `json:"to"`
				Direction     string `json:"direction"`
				HangupCause   string `json:"hangup_cause"`
				RecordingURLs struct {
					MP3 string `json:"mp3"`
					WAV string `json:"wav"`
				} `json:"recording_urls"`
			} `json:"payload"`
		} `json:"data"`
	}
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil
	}

	eventType, ok := telnyxEventMap[envelope.Data.EventType]
	if !ok {
		return nil
	}
	p := envelope.Data.Payload
	if p.CallControlID == "" {
		return nil
	}

	direction := DirectionOutbound
	if p.Direction == "incoming" || p.Direction == "inbound" {
		direction = DirectionInbound
	}

	var ts time.Time
	if envelope.Data.OccurredAt != "" {
		ts, _ = time.Parse(time.RFC3339, envelope.Data.OccurredAt)
	}

	recordingURL := p.RecordingURLs.MP3
	if recordingURL == "" {
		recordingURL = p.RecordingURLs.WAV
	}

	event := &CallEvent{
		Type:           eventType,
		CallID:         p.CallControlID,
		ProviderCallID: p.CallLegID,
		From:           NormalizePhone(p.From),
		To:             NormalizePhone(p.To),
		Direction:      direction,
		Timestamp:      ts,
		EndReason:      p.HangupCause,
		RecordingURL:   recordingURL,
		Raw:            string(req.Body),
	}
	if event.ProviderCallID == "" {
		event.ProviderCallID = p.CallControlID
	}
	return event
}

// ValidateWebhook verifies the telnyx-signature-ed25519 header: Ed25519 over
// "<timestamp>|<body>" against the account's base64-encoded public key.
func (t *Telnyx) ValidateWebhook(req WebhookRequest, secret string) bool {
	signatureB64 := req.Header.Get("telnyx-signature-ed25519")
	timestamp := req.Header.Get("telnyx-timestamp")
	if signatureB64 == "" || timestamp == "" || secret == "" {
		return false
	}

	publicKey, err := base64.StdEncoding.DecodeString(secret)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}

	message := append([]byte(timestamp+"|"), req.Body...)
	return ed25519.Verify(publicKey, message, signature)
}

func telnyxNumberType(t string) NumberType {
	switch t {
	case "local", "landline":
		return NumberTypeLocal
	case "toll_free", "toll-free":
		return NumberTypeTollfree
	case "mobile":
		return NumberTypeMobile
	default:
		return NumberTypeUnknown
	}
}
