// Package user はユーザー（Identity Record）のモデルと永続化を提供します。
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxNameLength は name / lastname の最大文字数です。
	MaxNameLength = 50
	// MinPasswordLength はパスワード平文の最小文字数です。
	MinPasswordLength = 5
)

// ErrInvalid は入力値の検証エラーを示します。
var ErrInvalid = errors.New("user: invalid input")

// Hasher はパスワード平文を保存用の形式に変換します。
type Hasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
}

// User は登録済みユーザーを表します。
// Password にはハッシュのみを保持し、平文は PrepareForWrite まで plainPassword に置きます。
type User struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	Password  string    `bson:"password"`
	Name      string    `bson:"name"`
	LastName  string    `bson:"lastname"`
	Role      int       `bson:"role"`
	Image     string    `bson:"image"`
	Token     string    `bson:"token"`
	TokenExp  int64     `bson:"tokenExp"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`

	plainPassword string
	passwordDirty bool
}

// IsAdmin は role が 0 以外かどうかを返します（表示用途のみ）。
func (u *User) IsAdmin() bool {
	return u.Role != 0
}

// HasSession は有効なトークンが保存されているかどうかを返します。
func (u *User) HasSession() bool {
	return u.Token != ""
}

// SetPassword はパスワード平文を設定し、次回の保存時にハッシュ化されるよう印を付けます。
func (u *User) SetPassword(plaintext string) {
	u.plainPassword = plaintext
	u.passwordDirty = true
}

// PasswordChanged は未ハッシュのパスワード変更が保留中かどうかを返します。
func (u *User) PasswordChanged() bool {
	return u.passwordDirty
}

// Validate は保存前の入力値を検証します。
func (u *User) Validate() error {
	if u.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalid)
	}
	if utf8.RuneCountInString(u.Name) > MaxNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalid, MaxNameLength)
	}
	if utf8.RuneCountInString(u.LastName) > MaxNameLength {
		return fmt.Errorf("%w: lastname must be at most %d characters", ErrInvalid, MaxNameLength)
	}
	if u.passwordDirty && utf8.RuneCountInString(u.plainPassword) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, MinPasswordLength)
	}
	if !u.passwordDirty && u.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalid)
	}
	return nil
}

// PrepareForWrite は保存直前に呼び出します。
// パスワードが変更された場合のみハッシュ化し、それ以外の更新では Password に触れません。
func (u *User) PrepareForWrite(ctx context.Context, h Hasher) error {
	if !u.passwordDirty {
		return nil
	}
	hashed, err := h.Hash(ctx, u.plainPassword)
	if err != nil {
		return err
	}
	u.Password = hashed
	u.plainPassword = ""
	u.passwordDirty = false
	return nil
}

// NormalizeEmail は前後の空白を取り除きます。大文字小文字は区別したまま完全一致で扱います。
func NormalizeEmail(s string) string {
	return strings.TrimSpace(s)
}
