package token

import (
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/hertz-contrib/jwt"

	"DailyPrompt/config"
	"DailyPrompt/pkg/errors"
)

// 账户体系由上游服务签发 JWT，本服务只校验，token 的 uid 即 account id

const (
	IdentityKey = "uid"
)

var (
	// 这个实例会被 middleware 和 token 包共同使用
	sharedGenerator *jwt.HertzJWTMiddleware
)

func Init() error {
	return InitWithSecret(config.Cfg.JWTSecret)
}

func InitWithSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("failed to initialize token generator: empty secret")
	}

	var err error
	sharedGenerator, err = jwt.New(&jwt.HertzJWTMiddleware{
		Realm:            config.Cfg.ServiceName,
		Key:              []byte(secret),
		Timeout:          time.Hour,
		IdentityKey:      IdentityKey,
		TimeFunc:         time.Now,
		SigningAlgorithm: "HS256",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token generator: %w", err)
	}

	return nil
}

// GetGenerator 获取共享的 token 生成器（供 middleware 使用）
func GetGenerator() *jwt.HertzJWTMiddleware {
	return sharedGenerator
}

// Issue 签发 access token，用于本地调试和测试
func Issue(accountID string, ttl time.Duration) (string, error) {
	if sharedGenerator == nil {
		return "", errors.ErrTokenGeneratorNotInitialized
	}

	now := time.Now()
	claims := jwtv5.MapClaims{
		IdentityKey: accountID,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
		"orig_iat":  now.Unix(),
	}

	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(sharedGenerator.Key)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return signed, nil
}

// Parse 校验 token 并返回 account id
func Parse(tokenString string) (string, error) {
	if sharedGenerator == nil {
		return "", errors.ErrTokenGeneratorNotInitialized
	}

	parsed, err := jwtv5.ParseWithClaims(tokenString, jwtv5.MapClaims{}, func(t *jwtv5.Token) (interface{}, error) {
		if t.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: %v, expected HS256", errors.ErrUnexpectedSigningMethod, t.Header["alg"])
		}
		return sharedGenerator.Key, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return "", errors.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwtv5.MapClaims)
	if !ok {
		return "", errors.ErrInvalidTokenClaims
	}

	return AccountIDFromClaims(claims)
}

// AccountIDFromClaims 兼容字符串和数字两种 uid
func AccountIDFromClaims(claims map[string]interface{}) (string, error) {
	switch v := claims[IdentityKey].(type) {
	case string:
		if v == "" {
			return "", errors.ErrAccountIDNotFound
		}
		return v, nil
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	default:
		return "", errors.ErrAccountIDNotFound
	}
}
