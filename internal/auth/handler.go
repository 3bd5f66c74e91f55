package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/userauth/internal/user"
)

// CookieOptions はトークンクッキーの属性です。
type CookieOptions struct {
	Secure bool
	MaxAge time.Duration
}

// Handler は /api/users 配下の HTTP ハンドラーです。
type Handler struct {
	manager *Manager
	cookie  CookieOptions
}

// NewHandler はハンドラーを作成します。
func NewHandler(m *Manager, cookie CookieOptions) *Handler {
	return &Handler{manager: m, cookie: cookie}
}

// Routes は rg に /register, /login, /auth, /logout, /profile を登録します。
func (h *Handler) Routes(rg *gin.RouterGroup) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.Login)

	protected := rg.Group("")
	protected.Use(h.manager.RequireAuth())
	{
		protected.GET("/auth", h.Auth)
		protected.GET("/logout", h.Logout)
		protected.PATCH("/profile", h.UpdateProfile)
	}
}

type registerRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
	Name     string `json:"name" form:"name"`
	LastName string `json:"lastname" form:"lastname"`
	Image    string `json:"image" form:"image"`
}

// Register は /api/users/register のハンドラーです。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"err": gin.H{
				"code":    "INVALID_INPUT",
				"message": "email と password を送ってください",
			},
		})
		return
	}

	_, err := h.manager.Register(c.Request.Context(), RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		LastName: req.LastName,
		Image:    req.Image,
	})
	if err != nil {
		status, code, message := registerFailure(err)
		if status >= http.StatusInternalServerError {
			h.manager.logger.ErrorContext(c.Request.Context(), "registration failed", "error", err)
		}
		c.JSON(status, gin.H{
			"success": false,
			"err": gin.H{
				"code":    code,
				"message": message,
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func registerFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT", err.Error()
	case errors.Is(err, ErrDuplicateIdentity):
		return http.StatusConflict, "DUPLICATE_EMAIL", "このメールアドレスは既に登録されています"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "登録処理に失敗しました"
	}
}

type loginRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// Login は /api/users/login のハンドラーです。
// メール未登録・パスワード不一致は 200 + loginSuccess:false で返します。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"loginSuccess": false,
			"message":      "email と password を送ってください",
		})
		return
	}

	result, err := h.manager.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, ErrNoSuchIdentity):
		c.JSON(http.StatusOK, gin.H{
			"loginSuccess": false,
			"message":      "指定されたメールアドレスのユーザーが見つかりません",
		})
		return
	case errors.Is(err, ErrBadCredential):
		c.JSON(http.StatusOK, gin.H{
			"loginSuccess": false,
			"message":      "パスワードが正しくありません",
		})
		return
	case err != nil:
		h.manager.logger.ErrorContext(c.Request.Context(), "login failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"loginSuccess": false,
			"message":      "ログイン処理に失敗しました",
		})
		return
	}

	h.setTokenCookie(c, result.Token.Value, h.maxAgeSeconds(result.Token.ExpiresAt))
	c.JSON(http.StatusOK, gin.H{
		"loginSuccess": true,
		"userId":       result.UserID,
	})
}

// Auth は /api/users/auth のハンドラーです。ゲートを通過したユーザーの公開情報を返します。
func (h *Handler) Auth(c *gin.Context) {
	u, ok := CurrentUser(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.JSON(http.StatusOK, publicUser(u))
}

// Logout は /api/users/logout のハンドラーです。
func (h *Handler) Logout(c *gin.Context) {
	u, ok := CurrentUser(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	if err := h.manager.Logout(c.Request.Context(), u.ID); err != nil {
		h.manager.logger.ErrorContext(c.Request.Context(), "logout failed", "user_id", u.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}

	h.setTokenCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type profileRequest struct {
	Name     *string `json:"name"`
	LastName *string `json:"lastname"`
	Image    *string `json:"image"`
	Password *string `json:"password"`
}

// UpdateProfile は /api/users/profile のハンドラーです。
// パスワードを変更した場合はセッションが無効になり、クッキーも削除します。
func (h *Handler) UpdateProfile(c *gin.Context) {
	u, ok := CurrentUser(c)
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"err":     gin.H{"code": "INVALID_INPUT", "message": "JSON で送ってください"},
		})
		return
	}

	updated, err := h.manager.UpdateProfile(c.Request.Context(), u.ID, ProfileInput{
		Name:     req.Name,
		LastName: req.LastName,
		Image:    req.Image,
		Password: req.Password,
	})
	if err != nil {
		status, code, message := http.StatusInternalServerError, "INTERNAL_ERROR", "プロフィールの更新に失敗しました"
		switch {
		case errors.Is(err, ErrInvalidInput):
			status, code, message = http.StatusBadRequest, "INVALID_INPUT", err.Error()
		case errors.Is(err, ErrNoSuchIdentity):
			status, code, message = http.StatusNotFound, "USER_NOT_FOUND", "ユーザーが見つかりません"
		default:
			h.manager.logger.ErrorContext(c.Request.Context(), "profile update failed", "user_id", u.ID, "error", err)
		}
		c.JSON(status, gin.H{
			"success": false,
			"err":     gin.H{"code": code, "message": message},
		})
		return
	}

	if req.Password != nil {
		h.setTokenCookie(c, "", -1)
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    publicUser(updated),
	})
}

func (h *Handler) setTokenCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(TokenCookieName, value, maxAge, "/", "", h.cookie.Secure, true)
}

func (h *Handler) maxAgeSeconds(expiresAt time.Time) int {
	if h.cookie.MaxAge > 0 {
		return int(h.cookie.MaxAge.Seconds())
	}
	if secs := int(time.Until(expiresAt).Seconds()); secs > 0 {
		return secs
	}
	return 0
}

// publicUser はレスポンス用の公開フィールドのみを返します。パスワードとトークンは含めません。
func publicUser(u *user.User) gin.H {
	return gin.H{
		"_id":      u.ID,
		"isAdmin":  u.IsAdmin(),
		"isAuth":   true,
		"email":    u.Email,
		"name":     u.Name,
		"lastname": u.LastName,
		"role":     u.Role,
		"image":    u.Image,
	}
}
