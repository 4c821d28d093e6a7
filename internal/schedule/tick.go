package schedule

// 一次调度 tick：对所有启用的接收者评估时间槽，到期的并发投递

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"DailyPrompt/internal/model"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/pkg/metrics"
)

// Deliverer 对单个 (recipient, slot) 做幂等投递
type Deliverer interface {
	Deliver(ctx context.Context, r *model.Recipient, slot model.Slot, nowUTC time.Time) (model.DeliveryResult, error)
}

type RecipientLister interface {
	ListActive(ctx context.Context) ([]model.Recipient, error)
}

// TickReport 一次 tick 的汇总，由 HTTP 调度端点原样返回
type TickReport struct {
	Skipped   map[model.SkipReason]int `json:"skipped"`
	StartedAt time.Time                `json:"started_at"`
	Slots     []model.Slot             `json:"slots"`
	Duration  time.Duration            `json:"duration_ns"`
	Evaluated int                      `json:"evaluated"`
	Due       int                      `json:"due"`
	Sent      int                      `json:"sent"`
	Failed    int                      `json:"failed"`
	Invalid   int                      `json:"invalid"`
}

type TickRunner struct {
	recipients  RecipientLister
	deliverer   Deliverer
	evaluator   *Evaluator
	logger      *zap.Logger
	concurrency int
}

func NewTickRunner(recipients RecipientLister, deliverer Deliverer, evaluator *Evaluator, concurrency int) *TickRunner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &TickRunner{
		recipients:  recipients,
		deliverer:   deliverer,
		evaluator:   evaluator,
		logger:      logger.Named("scheduler"),
		concurrency: concurrency,
	}
}

type dueJob struct {
	recipient *model.Recipient
	slot      model.Slot
}

// Tick 单个接收者的失败只计数，不影响其他接收者
func (t *TickRunner) Tick(ctx context.Context, slots []model.Slot, nowUTC time.Time) (*TickReport, error) {
	if len(slots) == 0 {
		slots = model.Slots
	}

	begin := time.Now()
	report := &TickReport{
		Slots:     slots,
		StartedAt: nowUTC,
		Skipped:   make(map[model.SkipReason]int),
	}

	recipients, err := t.recipients.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var jobs []dueJob
	for i := range recipients {
		r := &recipients[i]
		for _, slot := range slots {
			report.Evaluated++

			occ, err := t.evaluator.Occurrence(r.ScheduledAt(slot), r.Timezone, nowUTC)
			if err != nil {
				report.Invalid++
				t.logger.Warn("Invalid schedule, skipping recipient",
					zap.Int64("recipient_id", r.ID),
					zap.String("slot", string(slot)),
					zap.Error(err),
				)
				continue
			}
			if occ.Due {
				jobs = append(jobs, dueJob{recipient: r, slot: slot})
			}
		}
	}
	report.Due = len(jobs)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(t.concurrency)

	for _, job := range jobs {
		g.Go(func() error {
			start := time.Now()
			result, err := t.deliverer.Deliver(ctx, job.recipient, job.slot, nowUTC)

			outcome := "sent"
			mu.Lock()
			switch {
			case err != nil:
				report.Failed++
				outcome = "failed"
			case result.Sent:
				report.Sent++
			default:
				report.Skipped[result.SkippedReason]++
				outcome = string(result.SkippedReason)
			}
			mu.Unlock()

			metrics.RecordDelivery(ctx, string(job.slot), outcome, time.Since(start).Seconds())

			if err != nil {
				t.logger.Error("Delivery failed",
					zap.Int64("recipient_id", job.recipient.ID),
					zap.String("slot", string(job.slot)),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(begin)
	for _, slot := range slots {
		metrics.RecordTick(ctx, string(slot), report.Due, report.Duration.Seconds())
	}

	t.logger.Info("Tick completed",
		zap.Int("evaluated", report.Evaluated),
		zap.Int("due", report.Due),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Any("skipped", report.Skipped),
	)
	return report, nil
}
