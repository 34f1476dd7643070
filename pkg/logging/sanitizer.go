package logging

import (
	"regexp"
	"unicode/utf8"
)

const (
	// MaxErrorLength caps error text surfaced to API clients.
	MaxErrorLength = 300
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host in postgres:// and redis:// URLs
	connStringPattern = regexp.MustCompile(`://[^:/@\s]*:[^@\s]+@`)
)

// SanitizeConnectionString removes credentials from a Postgres or Redis
// connection string. Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
}

// SanitizeError returns err's text with credentials removed and length
// capped, suitable for diagnostic responses outside production.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return TruncateString(SanitizeConnectionString(err.Error()), MaxErrorLength)
}

// TruncateString truncates a string to at most maxLen bytes and adds ellipsis
// if needed. The cut never splits a UTF-8 sequence.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := max(maxLen, 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
