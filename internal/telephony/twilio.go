package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// Twilio adapter. Basic auth (accountSid:authToken), form-encoded bodies,
// TwiML instruction documents for call flows.
type Twilio struct {
	base string
	rest *restClient
}

func NewTwilio() *Twilio {
	return &Twilio{base: twilioBaseURL, rest: newRESTClient()}
}

func (t *Twilio) Code() Code { return CodeTwilio }

// twilioStatusMap translates Twilio CallStatus values to canonical event types.
// Anything absent here is unmappable and dropped.
var twilioStatusMap = map[string]EventType{
	"queued":      EventRinging,
	"ringing":     EventRinging,
	"in-progress": EventAnswered,
	"completed":   EventEnded,
	"busy":        EventEnded,
	"failed":      EventFailed,
	"no-answer":   EventEnded,
	"canceled":    EventEnded,
}

func (t *Twilio) ValidateCredentials(ctx context.Context, creds Credentials) ValidationResult {
	sid, token := creds["accountSid"], creds["authToken"]
	if sid == "" {
		return ValidationResult{Valid: false, Error: "accountSid is required"}
	}
	if token == "" {
		return ValidationResult{Valid: false, Error: "authToken is required"}
	}

	status, body, err := t.rest.do(ctx, restRequest{
		method:    "GET",
		url:       t.base + "/Accounts/" + url.PathEscape(sid) + ".json",
		basicUser: sid,
		basicPass: token,
	})
	if err != nil {
		return ValidationResult{Valid: false, Error: "twilio unreachable: " + err.Error()}
	}
	if status == 401 {
		return ValidationResult{Valid: false, Error: "twilio rejected credentials"}
	}
	if !is2xx(status) {
		return ValidationResult{Valid: false, Error: vendorError("account fetch", status, body)}
	}

	var account struct {
		FriendlyName string `json:"friendly_name"`
		Status       string `json:"status"`
	}
	_ = json.Unmarshal(body, &account)
	return ValidationResult{
		Valid: true,
		AccountInfo: map[string]string{
			"friendlyName": account.FriendlyName,
			"status":       account.Status,
		},
	}
}

func (t *Twilio) ListNumbers(ctx context.Context, creds Credentials) ([]PhoneNumber, error) {
	sid, token := creds["accountSid"], creds["authToken"]
	if sid == "" || token == "" {
		return nil, fmt.Errorf("twilio: accountSid and authToken are required")
	}

	status, body, err := t.rest.do(ctx, restRequest{
		method:    "GET",
		url:       t.base + "/Accounts/" + url.PathEscape(sid) + "/IncomingPhoneNumbers.json",
		basicUser: sid,
		basicPass: token,
	})
	if err != nil {
		return nil, err
	}
	if !is2xx(status) {
		return nil, fmt.Errorf("twilio: %s", vendorError("number listing", status, body))
	}

	var page struct {
		IncomingPhoneNumbers []struct {
			Sid          string `json:"sid"`
			PhoneNumber  string `json:"phone_number"`
			FriendlyName string `json:"friendly_name"`
			Capabilities struct {
				Voice bool `json:"voice"`
				SMS   bool `json:"sms"`
				MMS   bool `json:"mms"`
				Fax   bool `json:"fax"`
			} `json:"capabilities"`
		} `json:"incoming_phone_numbers"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("twilio: decode number listing: %w", err)
	}

	numbers := make([]PhoneNumber, 0, len(page.IncomingPhoneNumbers))
	for _, n := range page.IncomingPhoneNumbers {
		phone := NormalizePhone(n.PhoneNumber)
		numbers = append(numbers, PhoneNumber{
			PhoneNumber:      phone,
			ProviderNumberID: n.Sid,
			FriendlyName:     n.FriendlyName,
			Type:             twilioNumberType(phone),
			Country:          "US",
			Capabilities: Capabilities{
				Voice: n.Capabilities.Voice,
				SMS:   n.Capabilities.SMS,
				MMS:   n.Capabilities.MMS,
				Fax:   n.Capabilities.Fax,
			},
		})
	}
	return numbers, nil
}

func (t *Twilio) MakeCall(ctx context.Context, creds Credentials, params MakeCallParams) MakeCallResult {
	sid, token := creds["accountSid"], creds["authToken"]
	if sid == "" || token == "" {
		return MakeCallResult{Success: false, Error: "accountSid and authToken are required"}
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

	form := url.Values{}
	form.Set("To", NormalizePhone(params.To))
	form.Set("From", from)
	if params.WebhookURL != "" {
		form.Set("Url", params.WebhookURL)
		form.Set("StatusCallback", params.WebhookURL)
		form.Set("StatusCallbackEvent", "initiated ringing answered completed")
	}
	if params.Record {
		form.Set("Record", "true")
	}

	status, body, err := t.rest.do(ctx, restRequest{
		method:    "POST",
		url:       t.base + "/Accounts/" + url.PathEscape(sid) + "/Calls.json",
		basicUser: sid,
		basicPass: token,
		form:      form,
	})
	if err != nil {
		return MakeCallResult{Success: false, Error: "twilio unreachable: " + err.Error()}
	}
	if !is2xx(status) {
		return MakeCallResult{Success: false, Error: vendorError("call creation", status, body)}
	}

	var call struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(body, &call); err != nil || call.Sid == "" {
		return MakeCallResult{Success: false, Error: "twilio returned no call sid"}
	}
	return MakeCallResult{Success: true, CallID: call.Sid, ProviderCallID: call.Sid}
}

func (t *Twilio) Hangup(ctx context.Context, creds Credentials, callID string) ControlResult {
	sid, token := creds["accountSid"], creds["authToken"]
	if sid == "" || token == "" {
		return ControlResult{Success: false, Error: "accountSid and authToken are required"}
	}
	if callID == "" {
		return ControlResult{Success: false, Error: "callId is required"}
	}

	form := url.Values{}
	form.Set("Status", "completed")

	status, body, err := t.rest.do(ctx, restRequest{
		method:    "POST",
		url:       t.base + "/Accounts/" + url.PathEscape(sid) + "/Calls/" + url.PathEscape(callID) + ".json",
		basicUser: sid,
		basicPass: token,
		form:      form,
	})
	if err != nil {
		return ControlResult{Success: false, Error: "twilio unreachable: " + err.Error()}
	}
	if !is2xx(status) {
		return ControlResult{Success: false, Error: vendorError("hangup", status, body)}
	}
	return ControlResult{Success: true}
}

// Transfer implements blind transfer by replacing the live call's instruction
// document with a forward flow. Warm transfer is an intentional capability gap
// for Twilio: it needs conference choreography this layer does not own.
func (t *Twilio) Transfer(ctx context.Context, creds Credentials, params TransferParams) ControlResult {
	if params.Type == TransferWarm {
		return ControlResult{Success: false, Error: "warm transfer is not supported for twilio"}
	}
	sid, token := creds["accountSid"], creds["authToken"]
	if sid == "" || token == "" {
		return ControlResult{Success: false, Error: "accountSid and authToken are required"}
	}
	if params.CallID == "" {
		return ControlResult{Success: false, Error: "callId is required"}
	}
	if params.To == "" {
		return ControlResult{Success: false, Error: "to is required"}
	}

	twiml, err := RenderTwiML(TwiMLFlow{Action: TwiMLForward, Target: NormalizePhone(params.To)})
	if err != nil {
		return ControlResult{Success: false, Error: err.Error()}
	}

	form := url.Values{}
	form.Set("Twiml", twiml)

	status, body, err := t.rest.do(ctx, restRequest{
		method:    "POST",
		url:       t.base + "/Accounts/" + url.PathEscape(sid) + "/Calls/" + url.PathEscape(params.CallID) + ".json",
		basicUser: sid,
		basicPass: token,
		form:      form,
	})
	if err != nil {
		return ControlResult{Success: false, Error: "twilio unreachable: " + err.Error()}
	}
	if !is2xx(status) {
		return ControlResult{Success: false, Error: vendorError("transfer", status, body)}
	}
	return ControlResult{Success: true}
}

// ParseWebhook maps a form-encoded Twilio status callback to a CallEvent.
func (t *Twilio) ParseWebhook(req WebhookRequest) *CallEvent {
	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return nil
	}

	callStatus := form.Get("CallStatus")
	eventType, ok := twilioStatusMap[callStatus]
	if !ok {
		return nil
	}

	callSid := form.Get("CallSid")
	if callSid == "" {
		return nil
	}

	direction := DirectionOutbound
	if form.Get("Direction") == "inbound" {
		direction = DirectionInbound
	}

	duration, _ := strconv.Atoi(form.Get("CallDuration"))

	var ts time.Time
	if raw := form.Get("Timestamp"); raw != "" {
		ts, _ = time.Parse(time.RFC1123Z, raw)
	}

	event := &CallEvent{
		Type:            eventType,
		CallID:          callSid,
		ProviderCallID:  callSid,
		From:            NormalizePhone(form.Get("From")),
		To:              NormalizePhone(form.Get("To")),
		Direction:       direction,
		Timestamp:       ts,
		DurationSeconds: duration,
		RecordingURL:    form.Get("RecordingUrl"),
		Raw:             string(req.Body),
	}
	if eventType == EventEnded || eventType == EventFailed {
		event.EndReason = callStatus
	}
	// A completed callback that carries a recording is the recording event.
	if event.RecordingURL != "" && form.Get("RecordingStatus") == "completed" {
		event.Type = EventRecordingReady
	}
	return event
}

// ValidateWebhook verifies the X-Twilio-Signature header: HMAC-SHA1 over the
// full URL concatenated with the sorted form parameters, base64-encoded,
// keyed by the account auth token.
func (t *Twilio) ValidateWebhook(req WebhookRequest, secret string) bool {
	signature := req.Header.Get("X-Twilio-Signature")
	if signature == "" || secret == "" {
		return false
	}

	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(req.URL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// US/CA toll-free prefixes; Twilio number records carry no explicit type.
var tollfreePrefixes = []string{"+1800", "+1888", "+1877", "+1866", "+1855", "+1844", "+1833"}

func twilioNumberType(phone string) NumberType {
	for _, p := range tollfreePrefixes {
		if strings.HasPrefix(phone, p) {
			return NumberTypeTollfree
		}
	}
	if phone == "" {
		return NumberTypeUnknown
	}
	return NumberTypeLocal
}
