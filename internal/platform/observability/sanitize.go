package observability

import (
	"strings"
	"unicode"
)

// Length caps for values that end up in log fields and span attributes.
const (
	routeLimit  = 180
	methodLimit = 10
	userIDLimit = 64
)

// sanitizeString strips control characters and caps the length so request
// data cannot inject newlines or oversized values into log output.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = userIDLimit
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)

	runes := []rune(cleaned)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute normalises a chi route pattern for logging. An empty pattern
// means the router never matched, which is reported as the root path.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, routeLimit)
}

// SanitizeMethod bounds the HTTP method field.
func SanitizeMethod(method string) string {
	return sanitizeString(method, methodLimit)
}

// SanitizeUserID caps user identifiers before they reach log fields.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return sanitizeString(uid, userIDLimit)
}
