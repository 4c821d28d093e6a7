package utils

import (
	"crypto/sha256"
	"encoding/hex"

	"DailyPrompt/config"
)

// 绑定码只存哈希，盐 + ":" + code，避免数据库泄露后直接拿到可用的绑定码

func HashCode(code string) string {
	return HashCodeWithSalt(config.Cfg.CodeHashSalt, code)
}

func HashCodeWithSalt(salt, code string) string {
	sum := sha256.Sum256([]byte(salt + ":" + code))

	return hex.EncodeToString(sum[:])
}
