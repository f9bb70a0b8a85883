package telephony

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testTelnyx(baseURL string) *Telnyx {
	tx := NewTelnyx()
	tx.base = baseURL
	return tx
}

func TestTelnyxValidateCredentialsMissingKey(t *testing.T) {
	res := NewTelnyx().ValidateCredentials(context.Background(), Credentials{})
	if res.Valid || !strings.Contains(res.Error, "apiKey") {
		t.Fatalf("expected local apiKey error, got %+v", res)
	}
}

func TestTelnyxValidateCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer KEY123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"data":{"balance":"42.00","currency":"USD"}}`))
	}))
	defer srv.Close()

	res := testTelnyx(srv.URL).ValidateCredentials(context.Background(), Credentials{"apiKey": "KEY123"})
	if !res.Valid {
		t.Fatalf("expected valid, got %q", res.Error)
	}
	if res.AccountInfo["balance"] != "42.00" {
		t.Fatalf("expected balance, got %v", res.AccountInfo)
	}

	bad := testTelnyx(srv.URL).ValidateCredentials(context.Background(), Credentials{"apiKey": "WRONG"})
	if bad.Valid {
		t.Fatalf("expected rejection")
	}
}

func TestTelnyxListNumbersInfersSMSCapability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"id":"n1","phone_number":"+13125550100","phone_number_type":"local","messaging_profile_id":"mp1","country_iso_alpha2":"US"},
			{"id":"n2","phone_number":"+18005550100","phone_number_type":"toll_free","messaging_profile_id":"","country_iso_alpha2":"US"}
		]}`))
	}))
	defer srv.Close()

	numbers, err := testTelnyx(srv.URL).ListNumbers(context.Background(), Credentials{"apiKey": "k"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(numbers) != 2 {
		t.Fatalf("expected 2 numbers, got %d", len(numbers))
	}
	if !numbers[0].Capabilities.SMS {
		t.Fatalf("number with messaging profile should have SMS capability")
	}
	if numbers[1].Capabilities.SMS {
		t.Fatalf("number without messaging profile should not have SMS capability")
	}
	if numbers[1].Type != NumberTypeTollfree {
		t.Fatalf("expected tollfree, got %q", numbers[1].Type)
	}
}

func TestTelnyxMakeCallRequiresConnectionID(t *testing.T) {
	res := NewTelnyx().MakeCall(context.Background(), Credentials{"apiKey": "k"}, MakeCallParams{From: "+1", To: "+2"})
	if res.Success || !strings.Contains(res.Error, "connectionId") {
		t.Fatalf("expected connectionId error, got %+v", res)
	}
}

func TestTelnyxMakeCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calls" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"data":{"call_control_id":"v3:abc","call_leg_id":"leg1"}}`))
	}))
	defer srv.Close()

	res := testTelnyx(srv.URL).MakeCall(context.Background(),
		Credentials{"apiKey": "k", "connectionId": "conn1"},
		MakeCallParams{From: "+13125550100", To: "+79991234567"},
	)
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if res.CallID != "v3:abc" || res.ProviderCallID != "leg1" {
		t.Fatalf("unexpected ids: %+v", res)
	}
}

func TestTelnyxParseWebhookHangup(t *testing.T) {
	body := []byte(`{"data":{"event_type":"call.hangup","occurred_at":"2024-01-01T00:00:00Z","payload":{
		"call_control_id":"v3:abc","call_leg_id":"leg1","from":"+13125550100","to":"+79991234567",
		"direction":"incoming","hangup_cause":"normal_clearing"}}}`)

	event := NewTelnyx().ParseWebhook(WebhookRequest{Body: body})
	if event == nil {
		t.Fatalf("expected event")
	}
	if event.Type != EventEnded {
		t.Fatalf("expected ended, got %q", event.Type)
	}
	if event.CallID != "v3:abc" {
		t.Fatalf("expected call_control_id as call id, got %q", event.CallID)
	}
	if !event.Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", event.Timestamp)
	}
	if event.Direction != DirectionInbound {
		t.Fatalf("expected inbound, got %q", event.Direction)
	}
	if event.EndReason != "normal_clearing" {
		t.Fatalf("unexpected end reason %q", event.EndReason)
	}
}

func TestTelnyxParseWebhookUnknownEvent(t *testing.T) {
	body := []byte(`{"data":{"event_type":"call.dtmf.received","payload":{"call_control_id":"v3:abc"}}}`)
	if event := NewTelnyx().ParseWebhook(WebhookRequest{Body: body}); event != nil {
		t.Fatalf("expected nil for unknown event, got %+v", event)
	}
	if event := NewTelnyx().ParseWebhook(WebhookRequest{Body: []byte("not json")}); event != nil {
		t.Fatalf("expected nil for malformed body, got %+v", event)
	}
}

func TestTelnyxValidateWebhookEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	body := []byte(`{"data":{"event_type":"call.hangup"}}`)
	timestamp := "1700000000"
	signature := ed25519.Sign(priv, []byte(timestamp+"|"+string(body)))

	header := http.Header{}
	header.Set("telnyx-signature-ed25519", base64.StdEncoding.EncodeToString(signature))
	header.Set("telnyx-timestamp", timestamp)

	secret := base64.StdEncoding.EncodeToString(pub)
	req := WebhookRequest{Header: header, Body: body}

	tx := NewTelnyx()
	if !tx.ValidateWebhook(req, secret) {
		t.Fatalf("expected valid signature")
	}

	tampered := WebhookRequest{Header: header, Body: []byte(`{"data":{}}`)}
	if tx.ValidateWebhook(tampered, secret) {
		t.Fatalf("expected rejection of tampered body")
	}

	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	if tx.ValidateWebhook(req, base64.StdEncoding.EncodeToString(otherPub)) {
		t.Fatalf("expected rejection with wrong public key")
	}
	if tx.ValidateWebhook(req, "") {
		t.Fatalf("expected rejection without secret")
	}
}
