package user

import (
	"context"
	"errors"
)

var (
	// ErrNotFound は条件に一致するユーザーが存在しないことを示します。
	ErrNotFound = errors.New("user: not found")
	// ErrDuplicateEmail は email の一意制約違反を示します。
	ErrDuplicateEmail = errors.New("user: email already registered")
)

// Profile は UpdateProfile で書き換え可能なフィールドです。
// Password は保存用ハッシュで、空文字の場合は変更しません。
type Profile struct {
	Name     string
	LastName string
	Image    string
	Role     int
	Password string
}

// ProfileOf は u の現在値から Profile を作ります。
func ProfileOf(u *User) Profile {
	return Profile{
		Name:     u.Name,
		LastName: u.LastName,
		Image:    u.Image,
		Role:     u.Role,
		Password: u.Password,
	}
}

// Store はユーザーの永続化先です。
// email の一意性と単一ドキュメント更新の原子性は実装側が保証します。
type Store interface {
	// Create は新しいユーザーを保存します。email が重複する場合は ErrDuplicateEmail を返します。
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByToken は id とトークンの両方が一致するユーザーを返します。
	FindByToken(ctx context.Context, id, token string) (*User, error)
	UpdateProfile(ctx context.Context, id string, p Profile) error
	// SetToken は現在のトークンを上書きします（以前のトークンは無効になります）。
	SetToken(ctx context.Context, id, token string, exp int64) error
	ClearToken(ctx context.Context, id string) error
	// ClearTokenIfMatch は保存済みトークンが token と一致する場合のみ消去し、消去したかを返します。
	ClearTokenIfMatch(ctx context.Context, id, token string) (bool, error)
	Close(ctx context.Context) error
}
