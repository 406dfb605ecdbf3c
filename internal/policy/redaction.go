package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	// 12-digit individual number, optionally grouped 4-4-4.
	myNumberPattern = regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}\b`)
	// Grouped numbers such as 03-1234-5678 or +81 90 1234 5678, or an exact
	// 10 or 11 digit run starting with 0.
	phonePattern = regexp.MustCompile(`(?:\+81[ -]?\d{1,4}[ -]\d{1,4}[ -]\d{4}|\b0\d{1,4}[ -]\d{1,4}[ -]\d{4}|\b0[5789]0\d{8}|\b0\d{9})\b`)
)

type rule struct {
	pattern *regexp.Regexp
	marker  string
}

// Order matters: longer digit runs are masked before shorter ones claim them.
var rules = []rule{
	{emailPattern, "[REDACTED_EMAIL]"},
	{cardPattern, "[REDACTED_CARD]"},
	{myNumberPattern, "[REDACTED_MY_NUMBER]"},
	{phonePattern, "[REDACTED_PHONE]"},
}

// RedactPII masks contact details and identity numbers before text leaves the process.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range rules {
		next := r.pattern.ReplaceAllString(out, r.marker)
		changed = changed || next != out
		out = next
	}
	return out, changed
}
