// Package token はユーザーIDに紐づく署名付きベアラートークンの発行と検証を提供します。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalid は署名不一致・形式不正など、トークンが検証できないことを示します。
	ErrInvalid = errors.New("token: invalid")
	// ErrExpired は有効期限切れを示します。errors.Is(err, ErrInvalid) も true になります。
	ErrExpired = fmt.Errorf("%w: expired", ErrInvalid)
)

// Token は発行済みトークンとその有効期間です。
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer は HS256 でトークンを署名・検証します。
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer は Issuer を作成します。
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL はトークンの有効期間を返します。
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue は userID を subject とするトークンを発行します。
// jti を含めるため、同じユーザーでも発行ごとに異なる値になります。
func (i *Issuer) Issue(userID string) (Token, error) {
	if userID == "" {
		return Token{}, errors.New("token: empty subject")
	}

	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}

	return Token{
		Value:     signed,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Decode は署名と有効期限を検証し、subject（userID）を返します。
// 失効リストや保存済みトークンとの照合はここでは行いません。
func (i *Issuer) Decode(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalid
	}
	return claims.Subject, nil
}
