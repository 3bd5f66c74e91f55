package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
)

type stubExpirer struct {
	userID string
	token  string
	err    error
	calls  int
}

func (s *stubExpirer) ExpireSession(ctx context.Context, userID, token string) error {
	s.calls++
	s.userID = userID
	s.token = token
	return s.err
}

func newTestManager(exp Expirer) *Manager {
	return &Manager{
		expirer: exp,
		logger:  slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	}
}

func TestNewExpireTask(t *testing.T) {
	at := time.Now().Add(time.Hour)
	task, opts, err := newExpireTask("u1", "tok", at)
	if err != nil {
		t.Fatalf("newExpireTask returned error: %v", err)
	}
	if task.Type() != TaskTypeSessionExpire {
		t.Fatalf("task type = %q", task.Type())
	}
	var payload ExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload.UserID != "u1" || payload.Token != "tok" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if len(opts) != 4 {
		t.Fatalf("expected 4 options, got %d", len(opts))
	}

	if _, _, err := newExpireTask("", "tok", at); err == nil {
		t.Fatal("expected error for empty userID")
	}
	if _, _, err := newExpireTask("u1", "", at); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestTaskIDIsStableAndOpaque(t *testing.T) {
	a := taskID("header.payload.signature")
	b := taskID("header.payload.signature")
	if a != b {
		t.Fatalf("task id not stable: %q vs %q", a, b)
	}
	if a == taskID("other") {
		t.Fatal("different tokens produced the same task id")
	}
	if strings.Contains(a, "payload") {
		t.Fatalf("task id contains token material: %q", a)
	}
}

func TestHandleExpireCallsExpirer(t *testing.T) {
	exp := &stubExpirer{}
	m := newTestManager(exp)

	body, _ := json.Marshal(ExpirePayload{UserID: "u1", Token: "tok"})
	if err := m.handleExpire(context.Background(), asynq.NewTask(TaskTypeSessionExpire, body)); err != nil {
		t.Fatalf("handleExpire returned error: %v", err)
	}
	if exp.calls != 1 || exp.userID != "u1" || exp.token != "tok" {
		t.Fatalf("unexpected expirer call: %+v", exp)
	}
}

func TestHandleExpireBadPayloadSkipsRetry(t *testing.T) {
	m := newTestManager(&stubExpirer{})

	err := m.handleExpire(context.Background(), asynq.NewTask(TaskTypeSessionExpire, []byte("not-json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	body, _ := json.Marshal(ExpirePayload{UserID: "u1"})
	err = m.handleExpire(context.Background(), asynq.NewTask(TaskTypeSessionExpire, body))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for missing token, got %v", err)
	}
}

func TestHandleExpirePropagatesStoreError(t *testing.T) {
	wantErr := errors.New("store down")
	m := newTestManager(&stubExpirer{err: wantErr})

	body, _ := json.Marshal(ExpirePayload{UserID: "u1", Token: "tok"})
	if err := m.handleExpire(context.Background(), asynq.NewTask(TaskTypeSessionExpire, body)); !errors.Is(err, wantErr) {
		t.Fatalf("expected store error for retry, got %v", err)
	}
}

func TestNewManagerValidatesInput(t *testing.T) {
	if _, err := NewManager("redis://127.0.0.1:6379/0", nil, nil); err == nil {
		t.Fatal("expected error for nil expirer")
	}
	if _, err := NewManager("://bad", &stubExpirer{}, nil); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestNoopScheduler(t *testing.T) {
	if err := (NoopScheduler{}).ScheduleExpiry(context.Background(), "u1", "tok", time.Now()); err != nil {
		t.Fatalf("NoopScheduler returned error: %v", err)
	}
}
