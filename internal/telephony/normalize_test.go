package telephony

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"79991234567", "+79991234567"},
		{"+79991234567", "+79991234567"},
		{"+1 (415) 555-0100", "+14155550100"},
		{"8 (999) 123-45-67", "+89991234567"},
		{"anonymous", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	for _, in := range []string{"79991234567", "+1 415 555 0100", "sip:+123@host", ""} {
		once := NormalizePhone(in)
		if twice := NormalizePhone(once); twice != once {
			t.Fatalf("normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
