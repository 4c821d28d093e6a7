package schedule

import (
	"fmt"
	"time"

	"DailyPrompt/config"
	"DailyPrompt/internal/model"
	"DailyPrompt/utils"
)

const (
	minutesPerDay  = 24 * 60
	halfDayMinutes = minutesPerDay / 2
)

// Occurrence 距离当前时刻最近的一次时间槽
type Occurrence struct {
	Date        string // 接收者本地日期
	DiffMinutes int    // 当前时刻减去计划时刻，落在 (-720, 720]
	Due         bool
}

// Evaluator 判断接收者的时间槽是否落在本次调度的窗口内
type Evaluator struct {
	Tolerance time.Duration
}

func NewEvaluator(tolerance time.Duration) *Evaluator {
	return &Evaluator{Tolerance: tolerance}
}

// DefaultEvaluator 容差为轮询周期的一半
func DefaultEvaluator() *Evaluator {
	return NewEvaluator(config.Cfg.ScheduleTolerance())
}

// Occurrence 在 1440 分钟的环上比较，午夜前后的时刻归属于离它最近的那一天
func (e *Evaluator) Occurrence(scheduledLocalTime, timezone string, nowUTC time.Time) (Occurrence, error) {
	scheduled, err := utils.ParseClock(scheduledLocalTime)
	if err != nil {
		return Occurrence{}, err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		return Occurrence{}, fmt.Errorf("invalid timezone %q", timezone)
	}

	local := nowUTC.In(loc)
	nowMinute := local.Hour()*60 + local.Minute()

	diff := ringDiff(nowMinute, scheduled)
	occurrence := local.Add(-time.Duration(diff) * time.Minute)

	return Occurrence{
		Date:        occurrence.Format(utils.DateLayout),
		DiffMinutes: diff,
		Due:         abs(diff) <= int(e.Tolerance/time.Minute),
	}, nil
}

// IsDue 无副作用；配置无效时视为未到期
func (e *Evaluator) IsDue(scheduledLocalTime, timezone string, _ model.Slot, nowUTC time.Time) bool {
	occ, err := e.Occurrence(scheduledLocalTime, timezone, nowUTC)
	return err == nil && occ.Due
}

// IsDue 使用默认容差
func IsDue(scheduledLocalTime, timezone string, slot model.Slot, nowUTC time.Time) bool {
	return DefaultEvaluator().IsDue(scheduledLocalTime, timezone, slot, nowUTC)
}

func ringDiff(now, scheduled int) int {
	d := ((now-scheduled)%minutesPerDay + minutesPerDay) % minutesPerDay
	if d > halfDayMinutes {
		d -= minutesPerDay
	}
	return d
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
