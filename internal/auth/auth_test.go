package auth

import (
	"net/http/httptest"
	"testing"
)

func TestNewToken(t *testing.T) {
	tok, digest, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if len(tok) != TokenBytes*2 {
		t.Errorf("token length = %d, want %d hex chars", len(tok), TokenBytes*2)
	}
	if HashToken(tok) != digest {
		t.Error("returned digest does not match HashToken")
	}

	tok2, digest2, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if tok == tok2 || digest == digest2 {
		t.Error("two tokens should not collide")
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	a := HashToken("secret")
	b := HashToken("secret")
	if a != b {
		t.Errorf("same input hashed differently: %s vs %s", a, b)
	}
	if a == HashToken("other") {
		t.Error("different inputs produced the same digest")
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64", len(a))
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/agent", nil)
	req.Header.Set("Authorization", "Bearer abc123")

	tok, err := BearerToken(req)
	if err != nil {
		t.Fatalf("BearerToken: %v", err)
	}
	if tok != "abc123" {
		t.Errorf("token = %q, want abc123", tok)
	}
}

func TestBearerToken_CaseInsensitiveScheme(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/agent", nil)
	req.Header.Set("Authorization", "bearer abc123")

	tok, err := BearerToken(req)
	if err != nil {
		t.Fatalf("BearerToken: %v", err)
	}
	if tok != "abc123" {
		t.Errorf("token = %q, want abc123", tok)
	}
}

func TestBearerToken_Malformed(t *testing.T) {
	cases := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic abc123",
		"no token":     "Bearer ",
		"bare word":    "abc123",
	}
	for name, header := range cases {
		req := httptest.NewRequest("GET", "/api/agent", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if _, err := BearerToken(req); err == nil {
			t.Errorf("%s: expected error for header %q", name, header)
		}
	}
}
