package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Minimal TwiML builder for the Twilio adapter. It intentionally avoids any
// provider SDK dependency; only the verbs needed at the adapter boundary exist.

type TwiMLFlow struct {
	Action TwiMLAction

	// Target is the dial destination for forward/transfer flows
	// (PSTN number or sip: URI).
	Target string

	// Greeting is spoken before recording in the voicemail flow.
	Greeting string

	// RecordingCallbackURL receives the recording for the voicemail flow.
	RecordingCallbackURL string
}

type TwiMLAction string

const (
	TwiMLForward   TwiMLAction = "forward"
	TwiMLVoicemail TwiMLAction = "voicemail"
	TwiMLHangup    TwiMLAction = "hangup"
	TwiMLReject    TwiMLAction = "reject"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlDial struct {
	XMLName xml.Name  `xml:"Dial"`
	Number  string    `xml:"Number,omitempty"`
	Sip     *twimlSip `xml:"Sip,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

type twimlRecord struct {
	XMLName   xml.Name `xml:"Record"`
	Action    string   `xml:"action,attr,omitempty"`
	MaxLength int      `xml:"maxLength,attr,omitempty"`
	PlayBeep  bool     `xml:"playBeep,attr"`
}

// RenderTwiML builds the instruction document for a call flow.
func RenderTwiML(flow TwiMLFlow) (string, error) {
	var r twimlResponse

	switch flow.Action {
	case TwiMLReject:
		r.Verbs = append(r.Verbs, twimlReject{Reason: "busy"})
	case TwiMLHangup:
		r.Verbs = append(r.Verbs, twimlHangup{})
	case TwiMLForward:
		if strings.TrimSpace(flow.Target) == "" {
			return "", errors.New("telephony: target required for forward flow")
		}
		d := twimlDial{}
		if strings.HasPrefix(strings.ToLower(flow.Target), "sip:") {
			d.Sip = &twimlSip{URI: flow.Target}
		} else {
			d.Number = flow.Target
		}
		r.Verbs = append(r.Verbs, d)
	case TwiMLVoicemail:
		if flow.Greeting != "" {
			r.Verbs = append(r.Verbs, twimlSay{Text: flow.Greeting})
		}
		r.Verbs = append(r.Verbs, twimlRecord{
			Action:    flow.RecordingCallbackURL,
			MaxLength: 120,
			PlayBeep:  true,
		})
	default:
		return "", errors.New("telephony: unknown twiml action")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
