package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"DailyPrompt/internal/model"
	"DailyPrompt/internal/repository"
	pkgerrors "DailyPrompt/pkg/errors"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/pkg/snowflake"
	"DailyPrompt/storage/database"
	"DailyPrompt/utils"
)

// Generator 计量工作本身，例如调用模型生成当天的 prompt
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (theme string, prompts []string, err error)
}

type GenerateRequest struct {
	Date  string     `json:"date"`
	Slot  model.Slot `json:"slot"`
	Theme string     `json:"theme"`
	Seed  int64      `json:"-"`
}

type GenerationResult struct {
	Item    *model.ContentItem `json:"item"`
	Balance int                `json:"balance"`
}

// GenerationService 先扣额度再生成，额度不足时不做任何工作
type GenerationService struct {
	recipients *repository.RecipientRepository
	content    *repository.ContentRepository
	quota      *QuotaService
	generator  Generator
	logger     *zap.Logger
	nextID     func() (int64, error)
}

var (
	generationService *GenerationService
	generationOnce    sync.Once
)

func Generation() *GenerationService {
	generationOnce.Do(func() {
		generationService = NewGenerationService(database.DB(), Quota(), PromptBank{})
	})
	return generationService
}

func NewGenerationService(db *gorm.DB, quota *QuotaService, generator Generator) *GenerationService {
	return &GenerationService{
		recipients: repository.NewRecipientRepository(db),
		content:    repository.NewContentRepository(db),
		quota:      quota,
		generator:  generator,
		logger:     logger.Named("generation"),
		nextID:     snowflake.NextID,
	}
}

// Generate 扣减成功后生成失败不会自动退款，由 Credit 显式处理
func (s *GenerationService) Generate(ctx context.Context, accountID string, req GenerateRequest) (*GenerationResult, error) {
	if _, err := time.Parse(utils.DateLayout, req.Date); err != nil {
		return nil, fmt.Errorf("%w", pkgerrors.ContentDateInvalid)
	}
	if _, ok := model.ParseSlot(string(req.Slot)); !ok {
		return nil, fmt.Errorf("%w", pkgerrors.SlotInvalid)
	}

	r, err := s.recipients.GetByAccountID(ctx, accountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w", pkgerrors.RecipientNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recipient: %w", err)
	}

	// 已投递的槽位不收费
	existing, err := s.content.GetBySlot(ctx, r.ID, req.Date, req.Slot)
	if err != nil {
		return nil, fmt.Errorf("failed to load content: %w", err)
	}
	if existing != nil && existing.Status == model.ContentStatusSent {
		return nil, fmt.Errorf("%w", pkgerrors.ContentAlreadySent)
	}

	dec, err := s.quota.DecrementIfAvailable(ctx, accountID, model.QuotaReasonGeneration)
	if err != nil {
		return nil, err
	}
	if !dec.OK {
		return &GenerationResult{Balance: dec.Balance}, fmt.Errorf("%w", pkgerrors.QuotaInsufficient)
	}

	req.Seed = r.ID
	theme, prompts, err := s.generator.Generate(ctx, req)
	if err != nil {
		s.logger.Error("Generation failed after charge",
			zap.String("account_id", accountID),
			zap.Int("balance", dec.Balance),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	publicID, err := s.nextID()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate content id: %w", err)
	}

	item := &model.ContentItem{
		PublicID:    publicID,
		RecipientID: r.ID,
		SlotDate:    req.Date,
		Slot:        req.Slot,
		Theme:       theme,
		Prompts:     prompts,
	}
	if err := s.content.UpsertScheduled(ctx, item); err != nil {
		if errors.Is(err, repository.ErrContentLocked) {
			// 预检之后被投递
			return nil, fmt.Errorf("%w", pkgerrors.ContentAlreadySent)
		}
		return nil, fmt.Errorf("failed to store content: %w", err)
	}

	stored, err := s.content.GetBySlot(ctx, r.ID, req.Date, req.Slot)
	if err != nil || stored == nil {
		return nil, fmt.Errorf("failed to reload content: %w", err)
	}

	s.logger.Info("Content generated",
		zap.String("account_id", accountID),
		zap.String("slot_date", req.Date),
		zap.String("slot", string(req.Slot)),
		zap.Int("balance", dec.Balance),
	)
	return &GenerationResult{Item: stored, Balance: dec.Balance}, nil
}

// PromptBank 内置题库，按日期和接收者稳定地挑选
type PromptBank struct{}

var promptThemes = map[model.Slot][]struct {
	theme   string
	prompts []string
}{
	model.SlotMorning: {
		{"Intention", []string{
			"What is the one thing that would make today feel worthwhile?",
			"Who could you help today, and how?",
			"What are you looking forward to?",
		}},
		{"Energy", []string{
			"How did you sleep, and how does your body feel right now?",
			"What would give you energy today?",
			"What can you let go of before noon?",
		}},
		{"Gratitude", []string{
			"Name three things you are grateful for this morning.",
			"Who made your life easier recently?",
			"What small comfort are you enjoying right now?",
		}},
	},
	model.SlotEvening: {
		{"Reflection", []string{
			"What went well today?",
			"What would you do differently?",
			"What did you learn about yourself?",
		}},
		{"Wins", []string{
			"What is one win from today, however small?",
			"Who or what helped you get there?",
			"How will you celebrate it?",
		}},
		{"Unwind", []string{
			"What is still on your mind?",
			"What can wait until tomorrow?",
			"Describe one moment today you want to remember.",
		}},
	},
}

func (PromptBank) Generate(_ context.Context, req GenerateRequest) (string, []string, error) {
	sets := promptThemes[req.Slot]
	if len(sets) == 0 {
		return "", nil, fmt.Errorf("no prompts for slot %q", req.Slot)
	}

	if req.Theme != "" {
		for _, set := range sets {
			if strings.EqualFold(set.theme, req.Theme) {
				return set.theme, append([]string(nil), set.prompts...), nil
			}
		}
	}

	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%d:%s:%s", req.Seed, req.Date, req.Slot)
	set := sets[int(h.Sum32()%uint32(len(sets)))]
	return set.theme, append([]string(nil), set.prompts...), nil
}
