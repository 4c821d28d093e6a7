package errors

import (
	stderrors "errors"
	"fmt"
)

// token 相关错误
var (
	ErrTokenGeneratorNotInitialized = stderrors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = stderrors.New("unexpected signing method")
	ErrInvalidToken                 = stderrors.New("invalid token")
	ErrInvalidTokenClaims           = stderrors.New("invalid token claims")
	ErrAccountIDNotFound            = stderrors.New("account id not found in token")
)

// 存储相关错误
var (
	ErrDatabaseConnectionNil = stderrors.New("database connection is nil")
)

// SkipMessageError 表示消息无需重试，消费者直接 ack
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return fmt.Sprintf("skip message: %s", e.Reason)
}

func IsSkipMessageError(err error) bool {
	var skip *SkipMessageError
	return stderrors.As(err, &skip)
}

// AsDefinition 从错误链中取出业务错误定义
func AsDefinition(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	var ptr *Definition
	if stderrors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return Definition{}, false
}
