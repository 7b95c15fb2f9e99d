package logging

import (
	"net/url"
	"regexp"
	"unicode/utf8"
)

const (
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host in postgres:// and redis:// URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)

	// token=, api_key=, access_token= query parameters
	tokenPattern = regexp.MustCompile(`(?i)((?:access_)?token|api[_-]?key)=[^&\s:;]+`)
)

// SanitizeConnectionString removes credentials from a PostgreSQL or Redis
// connection string. Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError returns the error message with credentials removed. Driver
// errors from pgx and go-redis can echo the DSN they failed to use.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = tokenPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeURL drops user info and the query string from a source URL.
// Unparseable input is redacted whole.
func SanitizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return RedactedText
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// TruncateString truncates a string to at most maxLen bytes, never splitting
// a UTF-8 sequence, and adds an ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
