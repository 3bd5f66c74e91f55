package user

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type countingHasher struct {
	calls int
	err   error
}

func (h *countingHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	h.calls++
	if h.err != nil {
		return "", h.err
	}
	return "hashed:" + strings.Repeat("*", len(plaintext)), nil
}

func TestPrepareForWriteHashesDirtyPassword(t *testing.T) {
	h := &countingHasher{}
	u := &User{Email: "a@x.com"}
	u.SetPassword("abcdef")

	if !u.PasswordChanged() {
		t.Fatal("PasswordChanged() = false after SetPassword")
	}
	if err := u.PrepareForWrite(context.Background(), h); err != nil {
		t.Fatalf("PrepareForWrite returned error: %v", err)
	}
	if h.calls != 1 {
		t.Fatalf("hasher called %d times, want 1", h.calls)
	}
	if u.Password == "abcdef" || u.Password == "" {
		t.Fatalf("unexpected stored password %q", u.Password)
	}
	if u.PasswordChanged() {
		t.Fatal("PasswordChanged() = true after PrepareForWrite")
	}
	if u.plainPassword != "" {
		t.Fatal("plaintext must be cleared after PrepareForWrite")
	}
}

func TestPrepareForWriteSkipsCleanRecord(t *testing.T) {
	h := &countingHasher{}
	u := &User{Email: "a@x.com", Password: "existing-hash", Name: "old"}
	u.Name = "new"

	if err := u.PrepareForWrite(context.Background(), h); err != nil {
		t.Fatalf("PrepareForWrite returned error: %v", err)
	}
	if h.calls != 0 {
		t.Fatalf("hasher called %d times for unrelated update", h.calls)
	}
	if u.Password != "existing-hash" {
		t.Fatalf("password changed to %q", u.Password)
	}
}

func TestPrepareForWritePropagatesHashError(t *testing.T) {
	wantErr := errors.New("rng failure")
	u := &User{Email: "a@x.com"}
	u.SetPassword("abcdef")

	err := u.PrepareForWrite(context.Background(), &countingHasher{err: wantErr})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected hasher error, got %v", err)
	}
	if !u.PasswordChanged() {
		t.Fatal("password must stay dirty when hashing fails")
	}
}

func TestValidate(t *testing.T) {
	long := strings.Repeat("あ", MaxNameLength+1)

	tests := []struct {
		name  string
		build func() *User
		ok    bool
	}{
		{"valid", func() *User {
			u := &User{Email: "a@x.com", Name: strings.Repeat("あ", MaxNameLength)}
			u.SetPassword("abcde")
			return u
		}, true},
		{"missing email", func() *User {
			u := &User{}
			u.SetPassword("abcdef")
			return u
		}, false},
		{"short password", func() *User {
			u := &User{Email: "a@x.com"}
			u.SetPassword("abcd")
			return u
		}, false},
		{"no password at all", func() *User { return &User{Email: "a@x.com"} }, false},
		{"long name", func() *User {
			u := &User{Email: "a@x.com", Name: long}
			u.SetPassword("abcdef")
			return u
		}, false},
		{"long lastname", func() *User {
			u := &User{Email: "a@x.com", LastName: long}
			u.SetPassword("abcdef")
			return u
		}, false},
		{"stored hash only", func() *User { return &User{Email: "a@x.com", Password: "hash"} }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build().Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  A@x.com \t"); got != "A@x.com" {
		t.Fatalf("NormalizeEmail = %q, want %q", got, "A@x.com")
	}
}

func TestIsAdmin(t *testing.T) {
	if (&User{}).IsAdmin() {
		t.Fatal("role 0 must not be admin")
	}
	if !(&User{Role: 2}).IsAdmin() {
		t.Fatal("non-zero role must be admin")
	}
}
