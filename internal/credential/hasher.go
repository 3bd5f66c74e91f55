// Package credential はパスワードの一方向ハッシュ化と検証を提供します。
package credential

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost は bcrypt のワークファクターの既定値です。
const DefaultCost = 10

// maxPasswordBytes は bcrypt が扱える平文の最大バイト数です。
const maxPasswordBytes = 72

var (
	// ErrHashing はハッシュ計算そのものが失敗したことを示します（インフラ障害扱い）。
	ErrHashing = errors.New("credential: hashing failed")
	// ErrPasswordTooLong は bcrypt の上限を超える平文が渡されたことを示します。
	ErrPasswordTooLong = errors.New("credential: password exceeds 72 bytes")
	// ErrMalformedHash は保存済みハッシュが bcrypt 形式ではないことを示します。
	ErrMalformedHash = errors.New("credential: malformed stored hash")
)

// Hasher はパスワードのハッシュ化と検証を行います。
type Hasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, stored string) (bool, error)
}

// BcryptHasher は bcrypt による Hasher 実装です。
// 同時に走る計算数をセマフォで制限し、リクエスト受付を詰まらせないようにします。
type BcryptHasher struct {
	cost int
	sem  *semaphore.Weighted
	// observe はハッシュ計算の所要時間を受け取ります（nil 可）。
	observe func(seconds float64)
}

// NewBcryptHasher は BcryptHasher を作成します。
// concurrency が 0 以下の場合は GOMAXPROCS を上限にします。
func NewBcryptHasher(cost, concurrency int) *BcryptHasher {
	if cost == 0 {
		cost = DefaultCost
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &BcryptHasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(concurrency)),
	}
}

// WithObserver は計算時間の観測関数を設定した Hasher を返します。
func (h *BcryptHasher) WithObserver(observe func(seconds float64)) *BcryptHasher {
	h.observe = observe
	return h
}

// Hash は平文をソルト付きでハッシュ化します。同じ平文でも呼び出しごとに異なる値になります。
func (h *BcryptHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	var hashed []byte
	err := h.run(ctx, func() error {
		var err error
		hashed, err = bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}
	return string(hashed), nil
}

// Verify は平文が保存済みハッシュと一致するかを返します。
// 不一致は (false, nil)、保存値が壊れている場合のみエラーになります。
func (h *BcryptHasher) Verify(ctx context.Context, plaintext, stored string) (bool, error) {
	var cmpErr error
	if err := h.run(ctx, func() error {
		cmpErr = bcrypt.CompareHashAndPassword([]byte(stored), []byte(plaintext))
		return nil
	}); err != nil {
		return false, err
	}

	switch {
	case cmpErr == nil:
		return true, nil
	case errors.Is(cmpErr, bcrypt.ErrMismatchedHashAndPassword), errors.Is(cmpErr, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, cmpErr)
	}
}

// Cost は保存済みハッシュに埋め込まれたワークファクターを返します。
func Cost(stored string) (int, error) {
	cost, err := bcrypt.Cost([]byte(stored))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return cost, nil
}

func (h *BcryptHasher) run(ctx context.Context, fn func() error) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.sem.Release(1)

	if h.observe == nil {
		return fn()
	}
	start := time.Now()
	err := fn()
	h.observe(time.Since(start).Seconds())
	return err
}
