package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	m, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, m)

	m, err = ParseClock("00:00")
	require.NoError(t, err)
	assert.Equal(t, 0, m)

	m, err = ParseClock("23:59")
	require.NoError(t, err)
	assert.Equal(t, 1439, m)

	for _, bad := range []string{"24:00", "9:30", "09:60", "", "09:30:00"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestLocalDate(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-10-15", LocalDate(now, loc))
	assert.Equal(t, "2026-10-14", LocalDate(now, time.UTC))
}

func TestIsLinkCode(t *testing.T) {
	assert.True(t, IsLinkCode("123456"))
	assert.True(t, IsLinkCode(" 000001 "))
	assert.False(t, IsLinkCode("12345"))
	assert.False(t, IsLinkCode("1234567"))
	assert.False(t, IsLinkCode("12a456"))
}

func TestValidateTimezone(t *testing.T) {
	assert.True(t, ValidateTimezone("UTC"))
	assert.True(t, ValidateTimezone("America/New_York"))
	assert.False(t, ValidateTimezone(""))
	assert.False(t, ValidateTimezone("Mars/Olympus"))
}

func TestHashCodeWithSalt(t *testing.T) {
	a := HashCodeWithSalt("salt", "123456")
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashCodeWithSalt("salt", "123456"))
	assert.NotEqual(t, a, HashCodeWithSalt("pepper", "123456"))
}

func TestEncryptRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	sealed, err := encryptWithKey(key, "secret_notion_token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "secret_notion_token")

	plain, err := decryptWithKey(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret_notion_token", plain)

	_, err = decryptWithKey([]byte("ffffffffffffffffffffffffffffffff"), sealed)
	assert.Error(t, err)
}
