package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/userauth/internal/auth"
	"github.com/yourusername/userauth/internal/config"
	"github.com/yourusername/userauth/internal/credential"
	"github.com/yourusername/userauth/internal/metrics"
	"github.com/yourusername/userauth/internal/token"
	"github.com/yourusername/userauth/internal/user"
)

type recordingScheduler struct {
	calls int
}

func (s *recordingScheduler) ScheduleExpiry(ctx context.Context, userID, token string, at time.Time) error {
	s.calls++
	return nil
}

func TestSetupRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := metrics.NewRegistry()
	m := metrics.New(registry)
	manager, err := auth.NewManager(auth.Options{
		Store:   user.NewMemoryStore(),
		Hasher:  credential.NewBcryptHasher(bcrypt.MinCost, 1),
		Issuer:  token.NewIssuer([]byte("k"), time.Hour),
		Metrics: m,
		Logger:  slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	router := gin.New()
	setupRoutes(router, manager, auth.CookieOptions{}, metrics.Handler(registry))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/users/register", strings.NewReader(`{"email":"a@x.com","password":"abcdef"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("register: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `userauth_registrations_total{outcome="success"} 1`) {
		t.Fatalf("metrics missing registration counter:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/auth", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("auth without cookie: status=%d", rec.Code)
	}
}

func TestSetupStoreMemory(t *testing.T) {
	store, err := setupStore(context.Background(), &config.Config{StoreDriver: config.StoreMemory})
	if err != nil {
		t.Fatalf("setupStore returned error: %v", err)
	}
	if _, ok := store.(*user.MemoryStore); !ok {
		t.Fatalf("unexpected store type %T", store)
	}
	if _, err := setupStore(context.Background(), &config.Config{StoreDriver: "bogus"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestSetupJobsDisabledWithoutQueue(t *testing.T) {
	mgr, err := setupJobs(&config.Config{}, nil, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	if err != nil || mgr != nil {
		t.Fatalf("setupJobs = (%v, %v), want (nil, nil)", mgr, err)
	}
}

func TestLazyScheduler(t *testing.T) {
	s := &lazyScheduler{}
	if err := s.ScheduleExpiry(context.Background(), "u1", "tok", time.Now()); err != nil {
		t.Fatalf("unset scheduler returned error: %v", err)
	}

	rec := &recordingScheduler{}
	s.set(rec)
	if err := s.ScheduleExpiry(context.Background(), "u1", "tok", time.Now()); err != nil {
		t.Fatalf("ScheduleExpiry returned error: %v", err)
	}
	if rec.calls != 1 {
		t.Fatalf("delegate called %d times, want 1", rec.calls)
	}
}
