package telephony

import "strings"

// NormalizePhone coerces a dial string into E.164: strip everything outside
// [0-9+], then ensure a single leading "+". Idempotent. Returns "" when the
// input carries no digits (e.g. Twilio's "anonymous").
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	return "+" + digits
}
