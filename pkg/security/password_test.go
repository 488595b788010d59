package security_test

import (
	"strings"
	"testing"

	"github.com/codeshop/codeshop-backend/pkg/config"
	"github.com/codeshop/codeshop-backend/pkg/security"
)

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	hash, err := security.HashPassword("very-secure-password", cfg)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashPassword returned empty string")
	}

	ok, err := security.VerifyPassword("very-secure-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPassword failed for the correct password")
	}

	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for invalid password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	if _, err := security.VerifyPassword("irrelevant", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := security.ValidatePassword("short"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
	if err := security.ValidatePassword(" padded-password "); err == nil {
		t.Fatal("expected padded password to be rejected")
	}
	if err := security.ValidatePassword("long-enough-secret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGenerateTempPassword(t *testing.T) {
	pw, err := security.GenerateTempPassword(24)
	if err != nil {
		t.Fatalf("GenerateTempPassword returned error: %v", err)
	}
	if len(pw) != 24 {
		t.Fatalf("expected 24 characters, got %d", len(pw))
	}
	if strings.ContainsAny(pw, "$ .") {
		t.Fatalf("unexpected character in %q", pw)
	}
	if _, err := security.GenerateTempPassword(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestVerifyPasswordUsesStoredParams(t *testing.T) {
	cheap := config.PasswordConfig{ArgonMemoryKB: 8 * 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	hash, err := security.HashPassword("rotate-me-later-1", cheap)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected hash header %q", hash)
	}
	ok, err := security.VerifyPassword("rotate-me-later-1", hash)
	if err != nil || !ok {
		t.Fatalf("expected match with stored params, ok=%v err=%v", ok, err)
	}
}

func TestVerifyPasswordRejectsTamperedHeader(t *testing.T) {
	hash, err := security.HashPassword("tamper-check-pass", config.PasswordConfig{ArgonTime: 1, ArgonParallelism: 1})
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	for _, bad := range []string{
		strings.Replace(hash, "argon2id", "argon2i", 1),
		strings.Replace(hash, "v=19", "v=16", 1),
		strings.Replace(hash, "t=1", "t=x", 1),
	} {
		if _, err := security.VerifyPassword("tamper-check-pass", bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParamsFromConfigClamps(t *testing.T) {
	p := security.ParamsFromConfig(config.PasswordConfig{ArgonMemoryKB: 1, ArgonTime: 99, ArgonParallelism: 0, ArgonSaltLen: 2, ArgonKeyLen: 1000})
	if p.Memory != 8 || p.Time != 10 || p.Parallelism != 1 || p.SaltLen != 8 || p.KeyLen != 64 {
		t.Fatalf("unexpected params %+v", p)
	}
}
