package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/userauth/internal/user"
)

const (
	// TokenCookieName はトークンを運ぶクッキー名です。
	TokenCookieName = "x_auth"

	// ContextUserKey は、ハンドラー間で認証済みユーザーを共有するためのキーです。
	ContextUserKey = "auth.user"
	// ContextTokenKey は認証に使われたトークンのキーです。
	ContextTokenKey = "auth.token"
)

// RequireAuth はトークンを検証するミドルウェアを返します。
// 拒否した場合は後続のハンドラーを実行しません。ユーザーの状態は変更しません。
func (m *Manager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		value := TokenFromRequest(c.Request)
		u, err := m.Authenticate(c.Request.Context(), value)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"isAuth":  false,
					"error":   true,
					"code":    "UNAUTHORIZED",
					"message": "ログインが必要です",
				})
				return
			}
			m.logger.ErrorContext(c.Request.Context(), "auth gate lookup failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"isAuth":  false,
				"error":   true,
				"code":    "INTERNAL_ERROR",
				"message": "認証情報の確認に失敗しました",
			})
			return
		}

		c.Set(ContextUserKey, u)
		c.Set(ContextTokenKey, value)
		c.Next()
	}
}

// TokenFromRequest はクッキー x_auth、なければ Authorization: Bearer からトークンを取り出します。
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if scheme, value, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(value)
	}
	return ""
}

// CurrentUser は RequireAuth が保存したユーザーを返します。
func CurrentUser(c *gin.Context) (*user.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*user.User)
	return u, ok && u != nil
}
