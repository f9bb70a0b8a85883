package telephony

import (
	"strings"
	"testing"
)

func TestRenderTwiMLForward(t *testing.T) {
	xml, err := RenderTwiML(TwiMLFlow{Action: TwiMLForward, Target: "+15550001111"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Dial>") || !strings.Contains(xml, "+15550001111") {
		t.Fatalf("expected dial verb in xml: %s", xml)
	}
}

func TestRenderTwiMLForwardSip(t *testing.T) {
	xml, err := RenderTwiML(TwiMLFlow{Action: TwiMLForward, Target: "sip:agent@sip.vapi.ai"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Sip>") {
		t.Fatalf("expected sip verb in xml: %s", xml)
	}
}

func TestRenderTwiMLForwardRequiresTarget(t *testing.T) {
	if _, err := RenderTwiML(TwiMLFlow{Action: TwiMLForward}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderTwiMLVoicemail(t *testing.T) {
	xml, err := RenderTwiML(TwiMLFlow{
		Action:               TwiMLVoicemail,
		Greeting:             "Оставьте сообщение после сигнала.",
		RecordingCallbackURL: "https://crm.example.com/webhooks/w1/twilio/voice",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Say>") || !strings.Contains(xml, "<Record") {
		t.Fatalf("expected say and record verbs in xml: %s", xml)
	}
}

func TestRenderTwiMLUnknownAction(t *testing.T) {
	if _, err := RenderTwiML(TwiMLFlow{Action: "conference"}); err == nil {
		t.Fatalf("expected error")
	}
}
