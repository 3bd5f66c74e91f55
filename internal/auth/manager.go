// Package auth は認証・認可機能を提供します。
//
// 登録・ログイン・ログアウトの各フローと、保護ルートに掛ける認証ゲート（ミドルウェア）を扱います。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/userauth/internal/credential"
	"github.com/yourusername/userauth/internal/metrics"
	"github.com/yourusername/userauth/internal/token"
	"github.com/yourusername/userauth/internal/user"
)

// Issuer はトークンの発行と検証を行います。
type Issuer interface {
	Issue(userID string) (token.Token, error)
	Decode(value string) (string, error)
	TTL() time.Duration
}

// Scheduler はトークン失効時刻に保存済みトークンを消去するジョブを予約します。
type Scheduler interface {
	ScheduleExpiry(ctx context.Context, userID, token string, at time.Time) error
}

// Options は Manager の依存関係です。
type Options struct {
	Store     user.Store
	Hasher    credential.Hasher
	Issuer    Issuer
	Scheduler Scheduler
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Manager は認証処理をまとめた構造体です。状態は Store 側にのみ持ちます。
type Manager struct {
	store     user.Store
	hasher    credential.Hasher
	issuer    Issuer
	scheduler Scheduler
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewManager は認証マネージャーを作成します。
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("store is nil")
	}
	if opts.Hasher == nil {
		return nil, errors.New("hasher is nil")
	}
	if opts.Issuer == nil {
		return nil, errors.New("issuer is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     opts.Store,
		hasher:    opts.Hasher,
		issuer:    opts.Issuer,
		scheduler: opts.Scheduler,
		metrics:   opts.Metrics,
		logger:    logger,
	}, nil
}

// RegisterInput は登録時の入力です。role はクライアントから指定できません。
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	LastName string
	Image    string
}

// Register は新しいユーザーを登録します。
func (m *Manager) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	u := &user.User{
		ID:       uuid.NewString(),
		Email:    user.NormalizeEmail(in.Email),
		Name:     in.Name,
		LastName: in.LastName,
		Image:    in.Image,
	}
	u.SetPassword(in.Password)

	if err := u.Validate(); err != nil {
		m.metrics.Registration(metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if err := u.PrepareForWrite(ctx, m.hasher); err != nil {
		if errors.Is(err, credential.ErrPasswordTooLong) {
			m.metrics.Registration(metrics.OutcomeInvalid)
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		m.metrics.Registration(metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %w", ErrHashing, err)
	}

	if err := m.store.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			m.metrics.Registration(metrics.OutcomeDuplicate)
			return nil, ErrDuplicateIdentity
		}
		m.metrics.Registration(metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	m.metrics.Registration(metrics.OutcomeSuccess)
	m.logger.InfoContext(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// LoginResult はログイン成功時の結果です。
type LoginResult struct {
	UserID string
	Token  token.Token
}

// Login は email とパスワードを検証し、新しいトークンを発行して保存します。
// 保存に失敗した場合、トークンは返しません。
func (m *Manager) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := m.store.FindByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			m.metrics.Login(metrics.OutcomeNoSuchUser)
			return nil, ErrNoSuchIdentity
		}
		m.metrics.Login(metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	ok, err := m.hasher.Verify(ctx, password, u.Password)
	if err != nil {
		m.metrics.Login(metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %w", ErrHashing, err)
	}
	if !ok {
		m.metrics.Login(metrics.OutcomeBadPassword)
		return nil, ErrBadCredential
	}

	tok, err := m.issuer.Issue(u.ID)
	if err != nil {
		m.metrics.Login(metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %w", ErrTokenIssue, err)
	}

	if err := m.store.SetToken(ctx, u.ID, tok.Value, tok.ExpiresAt.Unix()); err != nil {
		m.metrics.Login(metrics.OutcomeError)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if m.scheduler != nil {
		// 予約に失敗してもトークン自体の exp で失効するためログインは成功扱い
		if err := m.scheduler.ScheduleExpiry(ctx, u.ID, tok.Value, tok.ExpiresAt); err != nil {
			m.logger.WarnContext(ctx, "failed to schedule session expiry", "user_id", u.ID, "error", err)
		}
	}

	m.metrics.Login(metrics.OutcomeSuccess)
	m.logger.InfoContext(ctx, "user logged in", "user_id", u.ID)
	return &LoginResult{UserID: u.ID, Token: tok}, nil
}

// Authenticate は提示されたトークンをユーザーに解決します。
// 署名が正しくても保存済みトークンと一致しなければ ErrUnauthenticated を返します。
func (m *Manager) Authenticate(ctx context.Context, value string) (*user.User, error) {
	if value == "" {
		m.metrics.GateRejection(metrics.ReasonMissingToken)
		return nil, fmt.Errorf("%w: no token", ErrUnauthenticated)
	}

	userID, err := m.issuer.Decode(value)
	if err != nil {
		m.metrics.GateRejection(metrics.ReasonInvalidToken)
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	u, err := m.store.FindByToken(ctx, userID, value)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			m.metrics.GateRejection(metrics.ReasonTokenMismatch)
			return nil, fmt.Errorf("%w: token not current", ErrUnauthenticated)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return u, nil
}

// Logout は保存済みトークンを消去します。何度呼んでも同じ状態になります。
func (m *Manager) Logout(ctx context.Context, userID string) error {
	if err := m.store.ClearToken(ctx, userID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	m.logger.InfoContext(ctx, "user logged out", "user_id", userID)
	return nil
}

// ProfileInput はプロフィール更新の入力です。nil のフィールドは変更しません。
type ProfileInput struct {
	Name     *string
	LastName *string
	Image    *string
	Password *string
}

// UpdateProfile はプロフィールを更新します。
// パスワードが指定された場合のみ再ハッシュし、現在のトークンも無効化します。
func (m *Manager) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*user.User, error) {
	u, err := m.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrNoSuchIdentity
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.Image != nil {
		u.Image = *in.Image
	}
	if in.Password != nil {
		u.SetPassword(*in.Password)
	}

	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	passwordChanged := u.PasswordChanged()
	if err := u.PrepareForWrite(ctx, m.hasher); err != nil {
		if errors.Is(err, credential.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrHashing, err)
	}

	p := user.ProfileOf(u)
	if !passwordChanged {
		p.Password = ""
	}
	if err := m.store.UpdateProfile(ctx, userID, p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if passwordChanged {
		if err := m.store.ClearToken(ctx, userID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		u.Token = ""
		u.TokenExp = 0
		m.logger.InfoContext(ctx, "password changed, session cleared", "user_id", userID)
	}
	return u, nil
}

// ExpireSession は token がまだ保存済みトークンである場合のみ消去します（失効ジョブ用）。
func (m *Manager) ExpireSession(ctx context.Context, userID, value string) error {
	cleared, err := m.store.ClearTokenIfMatch(ctx, userID, value)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if cleared {
		m.logger.InfoContext(ctx, "session expired", "user_id", userID)
	}
	return nil
}
