package aiagent

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initElevenLabs(t *testing.T, baseURL string, cfg Config) *ElevenLabs {
	t.Helper()
	a := NewElevenLabs()
	if baseURL != "" {
		a.base = baseURL
	}
	if cfg == nil {
		cfg = Config{"apiKey": "key"}
	}
	if err := a.Initialize(cfg); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return a
}

func TestElevenLabsInitializeRequiresAPIKey(t *testing.T) {
	if err := NewElevenLabs().Initialize(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestElevenLabsCheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"subscription":{"tier":"creator"}}`))
	}))
	defer srv.Close()

	hs := initElevenLabs(t, srv.URL, nil).CheckHealth(context.Background())
	if !hs.Healthy {
		t.Fatalf("expected healthy, got %+v", hs)
	}

	bad := initElevenLabs(t, srv.URL, Config{"apiKey": "wrong"})
	if hs := bad.CheckHealth(context.Background()); hs.Healthy {
		t.Fatalf("expected unhealthy on 401, got %+v", hs)
	}
}

func TestElevenLabsSipURI(t *testing.T) {
	a := initElevenLabs(t, "", Config{"apiKey": "key", "agentId": "ag-1"})
	uri, err := a.SipURI(context.Background(), SipURIParams{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if uri != "sip:ag-1@sip.rtc.elevenlabs.io" {
		t.Fatalf("unexpected uri %q", uri)
	}

	if _, err := initElevenLabs(t, "", nil).SipURI(context.Background(), SipURIParams{}); err == nil {
		t.Fatalf("expected error without agentId")
	}
}

func TestElevenLabsCreateOrUpdateAssistantPatchFallsBackToConfiguredID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/convai/agents/ag-1" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	a := initElevenLabs(t, srv.URL, Config{"apiKey": "key", "agentId": "ag-1"})
	id, err := a.CreateOrUpdateAssistant(context.Background(), AssistantParams{Name: "n", SystemPrompt: "p"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id != "ag-1" {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestElevenLabsParseWebhookTranscription(t *testing.T) {
	body := []byte(`{"type":"post_call_transcription","data":{
		"conversation_id":"conv-1","agent_id":"ag-1",
		"transcript":[{"role":"agent","message":"Здравствуйте"},{"role":"user","message":"Добрый день"}],
		"metadata":{"call_duration_secs":95,"termination_reason":"customer_ended_call","recording_url":"https://xi/rec.mp3"},
		"analysis":{"transcript_summary":"Клиент просил перезвонить."}}}`)

	event := initElevenLabs(t, "", nil).ParseWebhook(WebhookRequest{Body: body})
	if event == nil {
		t.Fatalf("expected event")
	}
	if event.ProviderCallID != "conv-1" || event.AssistantID != "ag-1" {
		t.Fatalf("unexpected ids %+v", event)
	}
	if event.EndReason != EndCustomerEnded {
		t.Fatalf("expected customer_ended, got %q", event.EndReason)
	}
	if len(event.Transcript) != 2 || event.Transcript[0].Role != "assistant" {
		t.Fatalf("agent role must map to assistant, got %+v", event.Transcript)
	}
	if event.DurationSeconds != 95 || event.Summary == "" || event.RecordingURL == "" {
		t.Fatalf("missing metadata fields %+v", event)
	}
}

func TestElevenLabsParseWebhookEndReasons(t *testing.T) {
	cases := map[string]EndReason{
		"customer_ended_call": EndCustomerEnded,
		"end_call_tool":       EndAssistantEnded,
		"agent_ended_call":    EndAssistantEnded,
		"transfer_to_number":  EndTransferred,
		"error":               EndError,
		"something_new":       EndError,
	}
	a := initElevenLabs(t, "", nil)
	for reason, want := range cases {
		body := []byte(`{"type":"post_call_transcription","data":{"conversation_id":"c","metadata":{"termination_reason":"` + reason + `"}}}`)
		event := a.ParseWebhook(WebhookRequest{Body: body})
		if event == nil || event.EndReason != want {
			t.Fatalf("reason %q: got %+v, want %q", reason, event, want)
		}
	}
}

func TestElevenLabsParseWebhookIgnoresOtherTypes(t *testing.T) {
	a := initElevenLabs(t, "", nil)
	if event := a.ParseWebhook(WebhookRequest{Body: []byte(`{"type":"post_call_audio","data":{}}`)}); event != nil {
		t.Fatalf("expected nil for audio event")
	}
	if event := a.ParseWebhook(WebhookRequest{Body: []byte(`garbage`)}); event != nil {
		t.Fatalf("expected nil for malformed body")
	}
}

func elevenLabsSign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestElevenLabsValidateWebhook(t *testing.T) {
	secret := "hook-secret"
	body := []byte(`{"type":"post_call_transcription"}`)
	timestamp := "1700000000"

	header := http.Header{}
	header.Set("ElevenLabs-Signature", "t="+timestamp+",v0="+elevenLabsSign(secret, timestamp, body))
	req := WebhookRequest{Header: header, Body: body}

	a := initElevenLabs(t, "", Config{"apiKey": "key", "webhookSecret": secret})
	if !a.ValidateWebhook(req) {
		t.Fatalf("expected valid signature")
	}

	tampered := WebhookRequest{Header: header, Body: []byte(`{"type":"other"}`)}
	if a.ValidateWebhook(tampered) {
		t.Fatalf("expected rejection of tampered body")
	}

	other := initElevenLabs(t, "", Config{"apiKey": "key", "webhookSecret": "different"})
	if other.ValidateWebhook(req) {
		t.Fatalf("expected rejection with wrong secret")
	}

	malformed := http.Header{}
	malformed.Set("ElevenLabs-Signature", "v0=deadbeef")
	if a.ValidateWebhook(WebhookRequest{Header: malformed, Body: body}) {
		t.Fatalf("expected rejection without timestamp")
	}
	if a.ValidateWebhook(WebhookRequest{Header: http.Header{}, Body: body}) {
		t.Fatalf("expected rejection without header")
	}
}
