package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	iss := NewIssuer([]byte("super-secret"), time.Hour)
	for _, id := range []string{"user-123", "6f1c2a4e-0000-4000-8000-000000000001", "ユーザー"} {
		tok, err := iss.Issue(id)
		if err != nil {
			t.Fatalf("Issue(%q) error: %v", id, err)
		}
		got, err := iss.Decode(tok.Value)
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		if got != id {
			t.Fatalf("subject mismatch: got %q want %q", got, id)
		}
	}
}

func TestIssueSetsExpiry(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	iss := NewIssuer([]byte("k"), 30*time.Minute)
	iss.now = func() time.Time { return fixed }

	tok, err := iss.Issue("u1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if !tok.IssuedAt.Equal(fixed) {
		t.Fatalf("IssuedAt = %v, want %v", tok.IssuedAt, fixed)
	}
	if want := fixed.Add(30 * time.Minute); !tok.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", tok.ExpiresAt, want)
	}
}

func TestIssueIsUniquePerCall(t *testing.T) {
	t.Parallel()

	iss := NewIssuer([]byte("k"), time.Hour)
	a, err := iss.Issue("u1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	b, err := iss.Issue("u1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if a.Value == b.Value {
		t.Fatal("consecutive tokens for the same user must differ")
	}
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	t.Parallel()

	if _, err := NewIssuer([]byte("k"), time.Hour).Issue(""); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestDecodeExpired(t *testing.T) {
	t.Parallel()

	iss := NewIssuer([]byte("secret"), time.Minute)
	start := time.Now()
	iss.now = func() time.Time { return start }
	tok, err := iss.Issue("u1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	iss.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = iss.Decode(tok.Value)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("ErrExpired must also match ErrInvalid, got %v", err)
	}
}

func TestDecodeWrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewIssuer([]byte("right-secret"), time.Hour).Issue("u2")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	_, err = NewIssuer([]byte("wrong-secret"), time.Hour).Decode(tok.Value)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestDecodeTampered(t *testing.T) {
	t.Parallel()

	iss := NewIssuer([]byte("k"), time.Hour)
	tok, err := iss.Issue("u3")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	parts := strings.Split(tok.Value, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token layout: %q", tok.Value)
	}
	other, err := iss.Issue("someone-else")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	// 別トークンのペイロードを差し込む
	parts[1] = strings.Split(other.Value, ".")[1]
	if _, err := iss.Decode(strings.Join(parts, ".")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for tampered payload, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	iss := NewIssuer([]byte("k"), time.Hour)
	for _, v := range []string{"", "not.a.jwt", "abc"} {
		if _, err := iss.Decode(v); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Decode(%q): expected ErrInvalid, got %v", v, err)
		}
	}
}
