package utils

import (
	"fmt"
	"time"
	_ "time/tzdata" // 容器镜像里不一定有系统时区库
)

const DateLayout = "2006-01-02"

// ParseClock 解析 HH:MM，返回当天的分钟数（0~1439）
func ParseClock(clock string) (int, error) {
	if !ValidateClock(clock) {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", clock)
	}

	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, err
	}

	return parsed.Hour()*60 + parsed.Minute(), nil
}

// LocalDate 返回 t 在 loc 时区下的日历日期
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
