package security

import (
	"strings"
	"testing"
)

func TestGenerateNumericCodeLengthAndCharset(t *testing.T) {
	code, err := GenerateNumericCode(6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit %q in code %q", r, code)
		}
	}
}

func TestGenerateNumericCodeRejectsNonPositiveLength(t *testing.T) {
	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatal("expected error for zero length")
	}
	if _, err := GenerateNumericCode(-3); err == nil {
		t.Fatal("expected error for negative length")
	}
}

func TestGenerateSecureTokenIsURLSafe(t *testing.T) {
	token, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("token %q is not URL safe", token)
	}
}

func TestHashTokenIsDeterministicAndDistinct(t *testing.T) {
	first := HashToken("refresh-token-value")
	second := HashToken("refresh-token-value")
	other := HashToken("different-value")

	if first != second {
		t.Fatal("hash of identical input differs")
	}
	if first == other {
		t.Fatal("hash collision for distinct inputs")
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("123456", "123456") {
		t.Fatal("expected equal secrets to match")
	}
	if ConstantTimeEqual("123456", "123457") {
		t.Fatal("expected different secrets to mismatch")
	}
	if ConstantTimeEqual("123456", "12345") {
		t.Fatal("expected different lengths to mismatch")
	}
}
