package util

import "strings"

// SanitizePostgresText strips null bytes and invalid UTF-8 from a value
// before it is written to a TEXT column. Extractor output occasionally
// carries both.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ReplaceAll(value, "\x00", "")
	return strings.ToValidUTF8(sanitized, "")
}
