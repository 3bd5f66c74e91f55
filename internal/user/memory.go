package user

import (
	"context"
	"sync"
	"time"
)

// MemoryStore はプロセス内メモリに保存する Store 実装です（開発・テスト用）。
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

// NewMemoryStore は空の MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[u.Email]; exists {
		return ErrDuplicateEmail
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	s.byID[u.ID] = snapshot(u)
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(u), nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return snapshot(s.byID[id]), nil
}

func (s *MemoryStore) FindByToken(ctx context.Context, id, token string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok || token == "" || u.Token != token {
		return nil, ErrNotFound
	}
	return snapshot(u), nil
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, id string, p Profile) error {
	return s.mutate(id, func(u *User) {
		u.Name = p.Name
		u.LastName = p.LastName
		u.Image = p.Image
		u.Role = p.Role
		if p.Password != "" {
			u.Password = p.Password
		}
	})
}

func (s *MemoryStore) SetToken(ctx context.Context, id, token string, exp int64) error {
	return s.mutate(id, func(u *User) {
		u.Token = token
		u.TokenExp = exp
	})
}

func (s *MemoryStore) ClearToken(ctx context.Context, id string) error {
	return s.SetToken(ctx, id, "", 0)
}

func (s *MemoryStore) ClearTokenIfMatch(ctx context.Context, id, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if token == "" || u.Token != token {
		return false, nil
	}
	u.Token = ""
	u.TokenExp = 0
	u.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) mutate(id string, fn func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// snapshot は保存・返却用のコピーを作ります。平文パスワードは持ち越しません。
func snapshot(u *User) *User {
	c := *u
	c.plainPassword = ""
	c.passwordDirty = false
	return &c
}
