package tracing

import (
	"strings"
)

const (
	// DefaultMaxLength bounds generic string attributes.
	DefaultMaxLength = 200

	// MaxDocumentLength bounds resume/job text snippets on spans.
	MaxDocumentLength = 150

	// MaxRedisLength bounds Redis keys and values.
	MaxRedisLength = 100
)

// Attribute keys carrying personal data are masked, not truncated. Resume
// text routinely holds emails and phone numbers.
var maskPIILookup = map[string]bool{
	"email":    true,
	"phone":    true,
	"linkedin": true,
	"password": true,
	"address":  true,
	"name":     true,
}

// TruncateString caps s at maxLen, appending an ellipsis marker.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// SafeAttributeValue prepares a value for span attachment: PII keys get
// masked, everything else gets truncated.
func SafeAttributeValue(key, value string) string {
	if maskPIILookup[strings.ToLower(key)] {
		return maskValue(value)
	}
	return TruncateString(value, DefaultMaxLength)
}

// maskValue keeps just enough of the value to correlate log lines.
func maskValue(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}
