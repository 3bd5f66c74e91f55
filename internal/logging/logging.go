// Package logging は構造化ロガーと HTTP リクエストログのミドルウェアを提供します。
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

// RequestIDHeader はリクエストIDを受け渡すヘッダー名です。
const RequestIDHeader = "X-Request-ID"

// ContextRequestIDKey は gin.Context にリクエストIDを保存するキーです。
const ContextRequestIDKey = "request.id"

// New は標準出力に JSON を書き出すロガーを作成します。
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter は w に JSON を書き出すロガーを作成します。
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// ParseLevel はログレベル文字列を slog.Level に変換します。不明な値は info です。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RequestLogger はリクエストIDを付与し、リクエストごとに1行のログを出力するミドルウェアです。
// Cookie や Authorization ヘッダーは出力しません。
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" || len(reqID) > 64 {
			reqID = ulid.Make().String()
		}
		c.Set(ContextRequestIDKey, reqID)
		c.Header(RequestIDHeader, reqID)

		c.Next()

		attrs := []any{
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("http.request", attrs...)
		case status >= 400:
			log.Warn("http.request", attrs...)
		default:
			log.Info("http.request", attrs...)
		}
	}
}

// RequestID は gin.Context に保存されたリクエストIDを返します。
func RequestID(c *gin.Context) string {
	return c.GetString(ContextRequestIDKey)
}
