package telephony

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const vonageBaseURL = "https://api.nexmo.com"

// Vonage adapter. Account endpoints (balance, number listing) use basic auth;
// the Voice API requires a short-lived RS256 application JWT minted from the
// applicationId/privateKey credentials. Webhooks are verified via the
// signed-webhook JWT in the Authorization header.
type Vonage struct {
	base  string
	rest  *restClient
	clock func() time.Time
}

func NewVonage() *Vonage {
	return &Vonage{base: vonageBaseURL, rest: newRESTClient(), clock: time.Now}
}

func (v *Vonage) Code() Code { return CodeVonage }

// vonageStatusMap translates Voice API call statuses to canonical event types.
var vonageStatusMap = map[string]EventType{
	"started":    EventInitiated,
	"ringing":    EventRinging,
	"answered":   EventAnswered,
	"completed":  EventEnded,
	"busy":       EventEnded,
	"cancelled":  EventEnded,
	"timeout":    EventEnded,
	"unanswered": EventEnded,
	"rejected":   EventEnded,
	"failed":     EventFailed,
}

func (v *Vonage) ValidateCredentials(ctx context.Context, creds Credentials) ValidationResult {
	apiKey, apiSecret := creds["apiKey"], creds["apiSecret"]
	if apiKey == "" {
		return ValidationResult{Valid: false, Error: "apiKey is required"}
	}
	if apiSecret == "" {
		return ValidationResult{Valid: false, Error: "apiSecret is required"}
	}

	q := url.Values{}
	q.Set("api_key", apiKey)
	q.Set("api_secret", apiSecret)

	status, body, err := v.rest.do(ctx, restRequest{
		method: "GET",
		url:    v.base + "/account/get-balance?" + q.Encode(),
	})
	if err != nil {
		return ValidationResult{Valid: false, Error: "vonage unreachable: " + err.Error()}
	}
	if status == 401 {
		return ValidationResult{Valid: false, Error: "vonage rejected credentials"}
	}
	if !is2xx(status) {
		return ValidationResult{Valid: false, Error: vendorError("balance fetch", status, body)}
	}

	var balance struct {
		Value float64 `json:"value"`
	}
	_ = json.Unmarshal(body, &balance)
	return ValidationResult{
		Valid: true,
		AccountInfo: map[string]string{
			"balance": fmt.Sprintf("%.2f", balance.Value),
		},
	}
}

func (v *Vonage) ListNumbers(ctx context.Context, creds Credentials) ([]PhoneNumber, error) {
	apiKey, apiSecret := creds["apiKey"], creds["apiSecret"]
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("vonage: apiKey and apiSecret are required")
	}

	q := url.Values{}
	q.Set("api_key", apiKey)
	q.Set("api_secret", apiSecret)

	status, body, err := v.rest.do(ctx, restRequest{
		method: "GET",
		url:    v.base + "/account/numbers?" + q.Encode(),
	})
	if err != nil {
		return nil, err
	}
	if !is2xx(status) {
		return nil, fmt.Errorf("vonage: %s", vendorError("number listing", status, body))
	}

	var page struct {
		Numbers []struct {
			MSISDN   string   `json:"msisdn"`
			Country  string   `json:"country"`
			Type     string   `json:"type"`
			Features []string `json:"features"`
		} `json:"numbers"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("vonage: decode number listing: %w", err)
	}

	numbers := make([]PhoneNumber, 0, len(page.Numbers))
	for _, n := range page.Numbers {
		caps := Capabilities{}
		for _, f := range n.Features {
			switch f {
			case "VOICE":
				caps.Voice = true
			case "SMS":
				caps.SMS = true
			case "MMS":
				caps.MMS = true
			}
		}
		numbers = append(numbers, PhoneNumber{
			PhoneNumber:      NormalizePhone(n.MSISDN),
			ProviderNumberID: n.MSISDN,
			Type:             vonageNumberType(n.Type),
			Country:          n.Country,
			Capabilities:     caps,
		})
	}
	return numbers, nil
}

func (v *Vonage) MakeCall(ctx context.Context, creds Credentials, params MakeCallParams) MakeCallResult {
	if params.From == "" {
		return MakeCallResult{Success: false, Error: "from is required"}
	}
	if params.To == "" {
		return MakeCallResult{Success: false, Error: "to is required"}
	}
	token, errMsg := v.applicationJWT(creds)
	if errMsg != "" {
		return MakeCallResult{Success: false, Error: errMsg}
	}

	from := NormalizePhone(params.From)
	if params.CallerID != "" {
		from = NormalizePhone(params.CallerID)
	}

	payload := map[string]any{
		"to":   []map[string]string{{"type": "phone", "number": strings.TrimPrefix(NormalizePhone(params.To), "+")}},
		"from": map[string]string{"type": "phone", "number": strings.TrimPrefix(from, "+")},
	}
	// Vonage rejects requests carrying both answer_url and an inline NCCO, and
	// the record action needs a real eventUrl to deliver the recording.
	switch {
	case params.Record && params.WebhookURL != "":
		payload["ncco"] = []map[string]any{{"action": "record", "eventUrl": []string{params.WebhookURL}}}
		payload["event_url"] = []string{params.WebhookURL}
	case params.WebhookURL != "":
		payload["answer_url"] = []string{params.WebhookURL}
		payload["event_url"] = []string{params.WebhookURL}
	}

	status, body, err := v.rest.do(ctx, restRequest{
		method:   "POST",
		url:      v.base + "/v1/calls",
		bearer:   token,
		jsonBody: payload,
	})
	if err != nil {
		return MakeCallResult{Success: false, Error: "vonage unreachable: " + err.Error()}
	}
	if !is2xx(status) {
		return MakeCallResult{Success: false, Error: vendorError("call creation", status, body)}
	}

	var call struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(body, &call); err != nil || call.UUID == "" {
		return MakeCallResult{Success: false, Error: "vonage returned no call uuid"}
	}
	return MakeCallResult{Success: true, CallID: call.UUID, ProviderCallID: call.UUID}
}

func (v *Vonage) Hangup(ctx context.Context, creds Credentials, callID string) ControlResult {
	return v.modifyCall(ctx, creds, callID, map[string]any{"action": "hangup"})
}

func (v *Vonage) Transfer(ctx context.Context, creds Credentials, params TransferParams) ControlResult {
	if params.To == "" {
		return ControlResult{Success: false, Error: "to is required"}
	}
	return v.modifyCall(ctx, creds, params.CallID, map[string]any{
		"action": "transfer",
		"destination": map[string]any{
			"type": "ncco",
			"ncco": []map[string]any{{
				"action":   "connect",
				"endpoint": []map[string]string{{"type": "phone", "number": strings.TrimPrefix(NormalizePhone(params.To), "+")}},
			}},
		},
	})
}

func (v *Vonage) modifyCall(ctx context.Context, creds Credentials, callID string, payload map[string]any) ControlResult {
	if callID == "" {
		return ControlResult{Success: false, Error: "callId is required"}
	}
	token, errMsg := v.applicationJWT(creds)
	if errMsg != "" {
		return ControlResult{Success: false, Error: errMsg}
	}

	status, body, err := v.rest.do(ctx, restRequest{
		method:   "PUT",
		url:      v.base + "/v1/calls/" + url.PathEscape(callID),
		bearer:   token,
		jsonBody: payload,
	})
	if err != nil {
		return ControlResult{Success: false, Error: "vonage unreachable: " + err.Error()}
	}
	if !is2xx(status) {
		return ControlResult{Success: false, Error: vendorError("call update", status, body)}
	}
	return ControlResult{Success: true}
}

// ParseWebhook maps a Voice API event callback to a CallEvent.
func (v *Vonage) ParseWebhook(req WebhookRequest) *CallEvent {
	var payload struct {
		UUID             string `json:"uuid"`
		ConversationUUID string `json:"conversation_uuid"`
		Status           string `json:"status"`
		Direction        string `json:"direction"`
		From             string `json:"from"`
		To               string `json:"to"`
		Timestamp        string `json:"timestamp"`
		Duration         string `json:"duration"`
		RecordingURL     string `json:"recording_url"`
	}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil
	}

	// Recording callbacks carry no status but identify the conversation.
	if payload.Status == "" && payload.RecordingURL != "" {
		return &CallEvent{
			Type:           EventRecordingReady,
			CallID:         payload.ConversationUUID,
			ProviderCallID: payload.ConversationUUID,
			RecordingURL:   payload.RecordingURL,
			Raw:            string(req.Body),
		}
	}

	eventType, ok := vonageStatusMap[payload.Status]
	if !ok {
		return nil
	}
	if payload.UUID == "" {
		return nil
	}

	direction := DirectionOutbound
	if payload.Direction == "inbound" {
		direction = DirectionInbound
	}

	var ts time.Time
	if payload.Timestamp != "" {
		ts, _ = time.Parse(time.RFC3339, payload.Timestamp)
	}
	duration := 0
	if payload.Duration != "" {
		fmt.Sscanf(payload.Duration, "%d", &duration)
	}

	event := &CallEvent{
		Type:            eventType,
		CallID:          payload.UUID,
		ProviderCallID:  payload.UUID,
		From:            NormalizePhone(payload.From),
		To:              NormalizePhone(payload.To),
		Direction:       direction,
		Timestamp:       ts,
		DurationSeconds: duration,
		RecordingURL:    payload.RecordingURL,
		Raw:             string(req.Body),
	}
	if eventType == EventEnded || eventType == EventFailed {
		event.EndReason = payload.Status
	}
	return event
}

// ValidateWebhook verifies Vonage signed webhooks: an HS256 JWT in the
// Authorization header, signed with the account's signature secret. When the
// token carries a payload_hash claim it must match SHA-256 of the body.
func (v *Vonage) ValidateWebhook(req WebhookRequest, secret string) bool {
	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || secret == "" {
		return false
	}
	tokenString := strings.TrimPrefix(auth, "Bearer ")

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return false
	}

	if hash, ok := claims["payload_hash"].(string); ok {
		sum := sha256.Sum256(req.Body)
		expected := hex.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(expected), []byte(hash)) != 1 {
			return false
		}
	}
	return true
}

// applicationJWT mints the short-lived RS256 token the Voice API requires.
// Returns a human-readable error string for the result-shaped error paths.
func (v *Vonage) applicationJWT(creds Credentials) (string, string) {
	applicationID := creds["applicationId"]
	if applicationID == "" {
		return "", "applicationId is required"
	}
	privateKeyPEM := creds["privateKey"]
	if privateKeyPEM == "" {
		return "", "privateKey is required"
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return "", "privateKey is not a valid RSA PEM key"
	}

	now := v.clock()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"application_id": applicationID,
		"iat":            now.Unix(),
		"exp":            now.Add(15 * time.Minute).Unix(),
		"jti":            uuid.NewString(),
	})
	signed, err := token.SignedString(key)
	if err != nil {
		return "", "failed to sign application jwt: " + err.Error()
	}
	return signed, ""
}

func vonageNumberType(t string) NumberType {
	switch t {
	case "landline":
		return NumberTypeLocal
	case "landline-toll-free":
		return NumberTypeTollfree
	case "mobile-lvn", "mobile":
		return NumberTypeMobile
	default:
		return NumberTypeUnknown
	}
}
