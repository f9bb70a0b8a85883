package telephony

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func testVonage(baseURL string) *Vonage {
	v := NewVonage()
	v.base = baseURL
	return v
}

func TestVonageValidateCredentialsMissingFields(t *testing.T) {
	res := NewVonage().ValidateCredentials(context.Background(), Credentials{"apiKey": "k"})
	if res.Valid || !strings.Contains(res.Error, "apiSecret") {
		t.Fatalf("expected apiSecret error, got %+v", res)
	}
}

func TestVonageValidateCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "k" || r.URL.Query().Get("api_secret") != "s" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"value":10.28,"autoReload":false}`))
	}))
	defer srv.Close()

	res := testVonage(srv.URL).ValidateCredentials(context.Background(), Credentials{"apiKey": "k", "apiSecret": "s"})
	if !res.Valid {
		t.Fatalf("expected valid, got %q", res.Error)
	}
	if res.AccountInfo["balance"] != "10.28" {
		t.Fatalf("expected balance, got %v", res.AccountInfo)
	}
}

func TestVonageListNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count":1,"numbers":[
			{"msisdn":"14155550100","country":"US","type":"mobile-lvn","features":["VOICE","SMS"]}
		]}`))
	}))
	defer srv.Close()

	numbers, err := testVonage(srv.URL).ListNumbers(context.Background(), Credentials{"apiKey": "k", "apiSecret": "s"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(numbers) != 1 {
		t.Fatalf("expected 1 number, got %d", len(numbers))
	}
	n := numbers[0]
	if n.PhoneNumber != "+14155550100" {
		t.Fatalf("expected normalized number, got %q", n.PhoneNumber)
	}
	if n.Type != NumberTypeMobile {
		t.Fatalf("expected mobile, got %q", n.Type)
	}
	if !n.Capabilities.Voice || !n.Capabilities.SMS || n.Capabilities.MMS {
		t.Fatalf("unexpected capabilities %+v", n.Capabilities)
	}
}

func TestVonageMakeCallRequiresApplicationJWT(t *testing.T) {
	res := NewVonage().MakeCall(context.Background(),
		Credentials{"apiKey": "k", "apiSecret": "s"},
		MakeCallParams{From: "+1", To: "+2"},
	)
	if res.Success || !strings.Contains(res.Error, "applicationId") {
		t.Fatalf("expected applicationId error, got %+v", res)
	}

	res = NewVonage().MakeCall(context.Background(),
		Credentials{"applicationId": "app1"},
		MakeCallParams{From: "+1", To: "+2"},
	)
	if res.Success || !strings.Contains(res.Error, "privateKey") {
		t.Fatalf("expected privateKey error, got %+v", res)
	}
}

func vonageAppCreds(t *testing.T) Credentials {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return Credentials{"applicationId": "app1", "privateKey": string(pemKey)}
}

func TestVonageMakeCallAnswerURLWithoutRecording(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calls" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"uuid":"call-uuid-1"}`))
	}))
	defer srv.Close()

	res := testVonage(srv.URL).MakeCall(context.Background(), vonageAppCreds(t), MakeCallParams{
		From:       "+14155550100",
		To:         "+79991234567",
		WebhookURL: "https://x/cb",
	})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if _, ok := payload["answer_url"]; !ok {
		t.Fatalf("expected answer_url, got %v", payload)
	}
	if _, ok := payload["ncco"]; ok {
		t.Fatalf("ncco must not accompany answer_url: %v", payload)
	}
}

func TestVonageMakeCallRecordingUsesNCCOOnly(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"uuid":"call-uuid-2"}`))
	}))
	defer srv.Close()

	res := testVonage(srv.URL).MakeCall(context.Background(), vonageAppCreds(t), MakeCallParams{
		From:       "+14155550100",
		To:         "+79991234567",
		WebhookURL: "https://x/cb",
		Record:     true,
	})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if _, ok := payload["answer_url"]; ok {
		t.Fatalf("answer_url must not accompany an inline ncco: %v", payload)
	}
	ncco, ok := payload["ncco"].([]any)
	if !ok || len(ncco) != 1 {
		t.Fatalf("expected one ncco action, got %v", payload["ncco"])
	}
	action, _ := ncco[0].(map[string]any)
	urls, _ := action["eventUrl"].([]any)
	if len(urls) != 1 || urls[0] != "https://x/cb" {
		t.Fatalf("expected recording eventUrl, got %v", action)
	}
}

func TestVonageMakeCallRecordWithoutWebhookSkipsNCCO(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"uuid":"call-uuid-3"}`))
	}))
	defer srv.Close()

	res := testVonage(srv.URL).MakeCall(context.Background(), vonageAppCreds(t), MakeCallParams{
		From:   "+14155550100",
		To:     "+79991234567",
		Record: true,
	})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if _, ok := payload["ncco"]; ok {
		t.Fatalf("record action without an event url must be dropped: %v", payload)
	}
}

func TestVonageStatusMapping(t *testing.T) {
	cases := map[string]EventType{
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
	v := NewVonage()
	for status, want := range cases {
		body := []byte(`{"uuid":"u1","conversation_uuid":"c1","status":"` + status + `","direction":"outbound"}`)
		event := v.ParseWebhook(WebhookRequest{Body: body})
		if event == nil {
			t.Fatalf("status %q: expected event", status)
		}
		if event.Type != want {
			t.Fatalf("status %q: got %q, want %q", status, event.Type, want)
		}
	}

	unknown := []byte(`{"uuid":"u1","status":"transferring"}`)
	if event := v.ParseWebhook(WebhookRequest{Body: unknown}); event != nil {
		t.Fatalf("expected nil for unknown status, got %+v", event)
	}
}

func TestVonageParseRecordingWebhook(t *testing.T) {
	body := []byte(`{"conversation_uuid":"c1","recording_url":"https://api.nexmo.com/v1/files/rec1"}`)
	event := NewVonage().ParseWebhook(WebhookRequest{Body: body})
	if event == nil {
		t.Fatalf("expected event")
	}
	if event.Type != EventRecordingReady {
		t.Fatalf("expected recording_ready, got %q", event.Type)
	}
	if event.RecordingURL == "" {
		t.Fatalf("expected recording url")
	}
}

func TestVonageValidateWebhookJWT(t *testing.T) {
	secret := "signature-secret"
	body := []byte(`{"uuid":"u1","status":"completed"}`)
	sum := sha256.Sum256(body)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"api_key":      "k",
		"payload_hash": hex.EncodeToString(sum[:]),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+signed)
	req := WebhookRequest{Header: header, Body: body}

	v := NewVonage()
	if !v.ValidateWebhook(req, secret) {
		t.Fatalf("expected valid signature")
	}
	if v.ValidateWebhook(req, "wrong-secret") {
		t.Fatalf("expected rejection with wrong secret")
	}

	tampered := WebhookRequest{Header: header, Body: []byte(`{"uuid":"other"}`)}
	if v.ValidateWebhook(tampered, secret) {
		t.Fatalf("expected rejection when payload hash mismatches")
	}

	if v.ValidateWebhook(WebhookRequest{Header: http.Header{}, Body: body}, secret) {
		t.Fatalf("expected rejection without authorization header")
	}
}
