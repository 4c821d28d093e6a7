package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"DailyPrompt/config"
)

// 第三方凭据（Notion integration token）落库前加密，格式为 base64(nonce || ciphertext)

var errInvalidCipherText = errors.New("invalid ciphertext payload")

func EncryptSecret(plain string) (string, error) {
	return encryptWithKey([]byte(config.Cfg.EncryptionKey), plain)
}

func DecryptSecret(encoded string) (string, error) {
	return decryptWithKey([]byte(config.Cfg.EncryptionKey), encoded)
}

func encryptWithKey(key []byte, plain string) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plain), nil)
	raw := append(nonce, ciphertext...)

	return base64.StdEncoding.EncodeToString(raw), nil
}

func decryptWithKey(key []byte, encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errInvalidCipherText
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", errInvalidCipherText
	}

	plain, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", err
	}

	return string(plain), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
