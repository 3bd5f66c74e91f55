package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix  = "user:"
	emailKeyPrefix = "user:email:"

	maxTxRetries = 10
)

// RedisStore はユーザーを Redis に JSON ドキュメントとして保存します。
// email の一意性は user:email:<email> キーで担保します。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

type document struct {
	ID        string    `json:"_id"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	Name      string    `json:"name"`
	LastName  string    `json:"lastname"`
	Role      int       `json:"role"`
	Image     string    `json:"image"`
	Token     string    `json:"token,omitempty"`
	TokenExp  int64     `json:"tokenExp,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toDocument(u *User) document {
	return document{
		ID:        u.ID,
		Email:     u.Email,
		Password:  u.Password,
		Name:      u.Name,
		LastName:  u.LastName,
		Role:      u.Role,
		Image:     u.Image,
		Token:     u.Token,
		TokenExp:  u.TokenExp,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (d document) user() *User {
	return &User{
		ID:        d.ID,
		Email:     d.Email,
		Password:  d.Password,
		Name:      d.Name,
		LastName:  d.LastName,
		Role:      d.Role,
		Image:     d.Image,
		Token:     d.Token,
		TokenExp:  d.TokenExp,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// Create はユーザーを保存します。email キーを WATCH して重複登録を防ぎます。
func (s *RedisStore) Create(ctx context.Context, u *User) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	payload, err := json.Marshal(toDocument(u))
	if err != nil {
		return err
	}

	ek := emailKey(u.Email)
	return s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, ek).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateEmail
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, ek, u.ID, 0)
			pipe.Set(ctx, userKey(u.ID), payload, 0)
			return nil
		})
		return err
	}, ek)
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.get(ctx, s.rdb, id)
}

func (s *RedisStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	id, err := s.rdb.Get(ctx, emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.get(ctx, s.rdb, id)
}

func (s *RedisStore) FindByToken(ctx context.Context, id, token string) (*User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	u, err := s.get(ctx, s.rdb, id)
	if err != nil {
		return nil, err
	}
	if u.Token != token {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *RedisStore) UpdateProfile(ctx context.Context, id string, p Profile) error {
	_, err := s.updatePartial(ctx, id, func(u *User) bool {
		u.Name = p.Name
		u.LastName = p.LastName
		u.Image = p.Image
		u.Role = p.Role
		if p.Password != "" {
			u.Password = p.Password
		}
		return true
	})
	return err
}

func (s *RedisStore) SetToken(ctx context.Context, id, token string, exp int64) error {
	_, err := s.updatePartial(ctx, id, func(u *User) bool {
		u.Token = token
		u.TokenExp = exp
		return true
	})
	return err
}

func (s *RedisStore) ClearToken(ctx context.Context, id string) error {
	return s.SetToken(ctx, id, "", 0)
}

func (s *RedisStore) ClearTokenIfMatch(ctx context.Context, id, token string) (bool, error) {
	return s.updatePartial(ctx, id, func(u *User) bool {
		if token == "" || u.Token != token {
			return false
		}
		u.Token = ""
		u.TokenExp = 0
		return true
	})
}

// Close は Redis クライアントを閉じます。
func (s *RedisStore) Close(ctx context.Context) error {
	return s.rdb.Close()
}

// updatePartial は WATCH/MULTI でドキュメントを読み書きします。mutate が false を返した場合は書き込みません。
func (s *RedisStore) updatePartial(ctx context.Context, id string, mutate func(*User) bool) (bool, error) {
	key := userKey(id)
	var written bool
	err := s.watch(ctx, func(tx *redis.Tx) error {
		written = false
		u, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if !mutate(u) {
			return nil
		}
		u.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(toDocument(u))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}, key)
	return written, err
}

func (s *RedisStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction retries exhausted for %v", keys)
}

func (s *RedisStore) get(ctx context.Context, c getter, id string) (*User, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := c.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.user(), nil
}

// getter は *redis.Client と *redis.Tx の共通部分です。
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func userKey(id string) string {
	return userKeyPrefix + id
}

func emailKey(email string) string {
	return emailKeyPrefix + email
}
