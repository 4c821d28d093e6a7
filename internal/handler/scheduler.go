package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"DailyPrompt/internal/model"
	"DailyPrompt/internal/service"
	"DailyPrompt/pkg/errors"
	"DailyPrompt/pkg/response"
)

// 外部调度器自己的超时通常更短，这里只兜底
const tickTimeout = 5 * time.Minute

// SchedulerTick 评估一次到期的接收者并投递，slot 为空时两个时间槽都评估
// POST /internal/scheduler/tick?slot=morning|evening
func SchedulerTick(ctx context.Context, c *app.RequestContext) {
	var slots []model.Slot
	if raw := c.Query("slot"); raw != "" {
		slot, ok := model.ParseSlot(raw)
		if !ok {
			response.Error(ctx, c, fmt.Errorf("%w", errors.SlotInvalid))
			return
		}
		slots = []model.Slot{slot}
	}

	tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
	defer cancel()

	report, err := service.Ticker().Tick(tickCtx, slots, time.Now().UTC())
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, report)
}
