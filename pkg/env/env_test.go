package env

import "testing"

func TestGetPrefersFirstSetKey(t *testing.T) {
	t.Setenv("CODESHOP_LOG_FORMAT", "")
	t.Setenv("LOG_FORMAT", " console ")
	if got := Get("json", "CODESHOP_LOG_FORMAT", "LOG_FORMAT"); got != "console" {
		t.Fatalf("expected console, got %q", got)
	}
	t.Setenv("CODESHOP_LOG_FORMAT", "json")
	if got := Get("text", "CODESHOP_LOG_FORMAT", "LOG_FORMAT"); got != "json" {
		t.Fatalf("expected json, got %q", got)
	}
}

func TestBoolFallsBackOnGarbage(t *testing.T) {
	t.Setenv("NO_COLOR", "maybe")
	if !Bool("NO_COLOR", true) {
		t.Fatal("expected fallback for malformed value")
	}
	t.Setenv("NO_COLOR", "1")
	if !Bool("NO_COLOR", false) {
		t.Fatal("expected true")
	}
}
