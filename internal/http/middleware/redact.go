package middleware

import "regexp"

// Patient identifiers that must never reach access logs. DNI/NIE numbers are
// scrubbed before phone numbers so the looser phone pattern cannot split them.
var (
	dniRE   = regexp.MustCompile(`(?i)\b[XYZ]?\d{7,8}[A-HJ-NP-TV-Z]\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`(?:\+\d{1,3}[ .-]?)?\b(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// Redact replaces national ids, email addresses and phone numbers in s with
// typed placeholders.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = dniRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}
