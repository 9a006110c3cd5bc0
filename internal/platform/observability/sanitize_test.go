package observability

import (
	"strings"
	"testing"
)

func TestSanitizeRouteStripsControlCharacters(t *testing.T) {
	got := SanitizeRoute("/orders/{orderID}\x00\x1b[31m")
	if got != "/orders/{orderID}[31m" {
		t.Fatalf("unexpected route: %q", got)
	}

	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected unmatched route to log as root, got %q", got)
	}
}

func TestSanitizeRouteCapsLength(t *testing.T) {
	long := "/" + strings.Repeat("a", 400)
	got := SanitizeRoute(long)
	if len(got) != routeLimit {
		t.Fatalf("expected route capped at %d runes, got %d", routeLimit, len(got))
	}
}

func TestSanitizeUserIDCapsLength(t *testing.T) {
	if got := SanitizeUserID(""); got != "" {
		t.Fatalf("expected empty uid to stay empty, got %q", got)
	}

	got := SanitizeUserID(strings.Repeat("u", 100))
	if len(got) != userIDLimit {
		t.Fatalf("expected uid capped at %d runes, got %d", userIDLimit, len(got))
	}
}
