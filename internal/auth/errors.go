package auth

import "errors"

// ドメインエラー（呼び出し側でレスポンスに変換する）
var (
	ErrInvalidInput      = errors.New("auth: invalid input")
	ErrDuplicateIdentity = errors.New("auth: email already registered")
	ErrNoSuchIdentity    = errors.New("auth: no user for email")
	ErrBadCredential     = errors.New("auth: wrong password")
	ErrUnauthenticated   = errors.New("auth: unauthenticated")
)

// インフラエラー（5xx 扱い）
var (
	ErrHashing     = errors.New("auth: credential hashing failed")
	ErrTokenIssue  = errors.New("auth: token issuance failed")
	ErrPersistence = errors.New("auth: persistence failed")
)
