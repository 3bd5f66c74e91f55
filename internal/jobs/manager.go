package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
)

// Manager はジョブの投入とワーカーを管理します。
type Manager struct {
	client  *asynq.Client
	server  *asynq.Server
	mux     *asynq.ServeMux
	expirer Expirer
	logger  *slog.Logger
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, expirer Expirer, logger *slog.Logger) (*Manager, error) {
	if expirer == nil {
		return nil, errors.New("expirer is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueName: 1,
			},
			Logger: asynqLogger{logger},
		},
	)

	manager := &Manager{
		client:  asynq.NewClient(opt),
		server:  server,
		mux:     asynq.NewServeMux(),
		expirer: expirer,
		logger:  logger,
	}
	manager.mux.HandleFunc(TaskTypeSessionExpire, manager.handleExpire)
	return manager, nil
}

// StartWorkers は asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error("asynq server stopped with error", "error", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	return m.client.Close()
}

// ScheduleExpiry は at の時点で token を消去するタスクを予約します。
// 同じトークンに対する予約は一度だけ登録されます。
func (m *Manager) ScheduleExpiry(ctx context.Context, userID, token string, at time.Time) error {
	task, opts, err := newExpireTask(userID, token, at)
	if err != nil {
		return err
	}
	if _, err := m.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	}
	return nil
}

func newExpireTask(userID, token string, at time.Time) (*asynq.Task, []asynq.Option, error) {
	if userID == "" || token == "" {
		return nil, nil, fmt.Errorf("userID and token are required")
	}
	body, err := json.Marshal(ExpirePayload{UserID: userID, Token: token})
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(queueName),
		asynq.ProcessAt(at),
		asynq.TaskID(taskID(token)),
		asynq.MaxRetry(3),
	}
	return asynq.NewTask(TaskTypeSessionExpire, body), opts, nil
}

func (m *Manager) handleExpire(ctx context.Context, task *asynq.Task) error {
	var payload ExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.UserID == "" || payload.Token == "" {
		return fmt.Errorf("missing userId or token in payload: %w", asynq.SkipRetry)
	}
	return m.expirer.ExpireSession(ctx, payload.UserID, payload.Token)
}

// asynqLogger は asynq のログを slog に流します。
type asynqLogger struct {
	l *slog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...), "component", "asynq") }
func (a asynqLogger) Fatal(args ...any) {
	a.l.Error(fmt.Sprint(args...), "component", "asynq")
	os.Exit(1)
}
