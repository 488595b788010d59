package instance

import "testing"

func TestGetIDPrefersPrefixedVariable(t *testing.T) {
	t.Setenv("CODESHOP_WORKER_ID", "reconcile-1")
	t.Setenv("WORKER_ID", "legacy")
	if got := GetID(); got != "reconcile-1" {
		t.Fatalf("expected reconcile-1, got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("CODESHOP_WORKER_ID", "")
	t.Setenv("WORKER_ID", "legacy")
	if got := GetID(); got != "legacy" {
		t.Fatalf("expected legacy, got %q", got)
	}

	t.Setenv("WORKER_ID", " ")
	if got := GetID(); got == "" {
		t.Fatalf("expected hostname or default id")
	}
}
