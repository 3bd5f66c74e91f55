// Package jobs はセッション失効などの非同期ジョブを asynq で扱います。
package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	// TaskTypeSessionExpire はトークン失効時刻に保存済みトークンを消去するタスクです。
	TaskTypeSessionExpire = "session:expire"

	queueName = "session"
)

// ExpirePayload は session:expire タスクのペイロードです。
type ExpirePayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// Expirer は保存済みトークンが一致する場合のみ消去します。
type Expirer interface {
	ExpireSession(ctx context.Context, userID, token string) error
}

// NoopScheduler はキューが無効な場合に使う何もしないスケジューラーです。
// トークンは exp クレームにより失効します。
type NoopScheduler struct{}

func (NoopScheduler) ScheduleExpiry(ctx context.Context, userID, token string, at time.Time) error {
	return nil
}

// taskID は同じトークンに対する予約を重複させないための ID です。トークン本体は含めません。
func taskID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "session-expire:" + hex.EncodeToString(sum[:16])
}
