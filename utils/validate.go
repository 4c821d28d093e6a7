package utils

import (
	"regexp"
	"strings"
	"time"
)

var (
	linkCodePattern = regexp.MustCompile(`^\d{6}$`)
	clockPattern    = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// IsLinkCode 判断文本是否是 6 位数字绑定码
func IsLinkCode(text string) bool {
	return linkCodePattern.MatchString(strings.TrimSpace(text))
}

// ValidateClock 校验 HH:MM 格式
func ValidateClock(clock string) bool {
	return clockPattern.MatchString(clock)
}

// ValidateTimezone 校验 IANA 时区名
func ValidateTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}
