package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"DailyPrompt/config"
	"DailyPrompt/internal/cache"
	"DailyPrompt/internal/model"
	"DailyPrompt/internal/model/dto"
	"DailyPrompt/internal/repository"
	pkgerrors "DailyPrompt/pkg/errors"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/storage/database"
	"DailyPrompt/utils"
)

// 新建接收者的默认设置
const (
	defaultTimezone  = "UTC"
	defaultMorningAt = "08:00"
	defaultEveningAt = "21:00"
)

type RecipientService struct {
	db             *gorm.DB
	recipients     *repository.RecipientRepository
	ledger         *repository.LedgerRepository
	quota          *QuotaService
	cache          *cache.ProtectedCache // nil 时不缓存
	logger         *zap.Logger
	encrypt        func(string) (string, error)
	defaultCredits int
}

var (
	recipientService *RecipientService
	recipientOnce    sync.Once
)

func Recipient() *RecipientService {
	recipientOnce.Do(func() {
		recipientService = NewRecipientService(database.DB(), Quota(), cache.RecipientSettingsCache, config.Cfg.DefaultCredits)
	})
	return recipientService
}

func NewRecipientService(db *gorm.DB, quota *QuotaService, settingsCache *cache.ProtectedCache, defaultCredits int) *RecipientService {
	return &RecipientService{
		db:             db,
		recipients:     repository.NewRecipientRepository(db),
		ledger:         repository.NewLedgerRepository(db),
		quota:          quota,
		cache:          settingsCache,
		logger:         logger.Named("recipient"),
		encrypt:        utils.EncryptSecret,
		defaultCredits: defaultCredits,
	}
}

func invalidateSettingsCache(ctx context.Context, accountID string) {
	if err := cache.RecipientSettingsCache.Delete(ctx, accountID); err != nil {
		logger.Logger.Warn("Failed to invalidate settings cache", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (s *RecipientService) settings(ctx context.Context, accountID string) (*dto.DeliverySettings, error) {
	if s.cache != nil {
		var cached dto.DeliverySettings
		hit, empty, err := s.cache.Get(ctx, accountID, &cached)
		if err != nil {
			s.logger.Warn("Settings cache read failed", zap.Error(err))
		} else if hit {
			if empty {
				return nil, fmt.Errorf("%w", pkgerrors.RecipientNotFound)
			}
			return &cached, nil
		}
	}

	r, err := s.recipients.GetByAccountID(ctx, accountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.fillCache(ctx, accountID, nil)
		return nil, fmt.Errorf("%w", pkgerrors.RecipientNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recipient: %w", err)
	}

	settings := dto.NewDeliverySettings(r)
	s.fillCache(ctx, accountID, &settings)
	return &settings, nil
}

func (s *RecipientService) fillCache(ctx context.Context, accountID string, value *dto.DeliverySettings) {
	if s.cache == nil {
		return
	}
	var v interface{}
	if value != nil {
		v = value
	}
	if err := s.cache.Set(ctx, accountID, v); err != nil {
		s.logger.Warn("Settings cache write failed", zap.Error(err))
	}
}

func (s *RecipientService) dropCache(ctx context.Context, accountID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, accountID); err != nil {
		s.logger.Warn("Settings cache delete failed", zap.Error(err))
	}
}

// GetSettings 设置、最近一次投递和额度
func (s *RecipientService) GetSettings(ctx context.Context, accountID string) (*dto.DeliveryOverview, error) {
	settings, err := s.settings(ctx, accountID)
	if err != nil {
		return nil, err
	}

	overview := &dto.DeliveryOverview{Settings: *settings}

	r, err := s.recipients.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipient: %w", err)
	}
	entry, err := s.ledger.Get(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	overview.LastDelivery = dto.NewLastDelivery(entry)

	if overview.Credits, err = s.quota.Balance(ctx, accountID); err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	return overview, nil
}

// PutSettings 首次写入时创建接收者并在同一事务发放初始额度
func (s *RecipientService) PutSettings(ctx context.Context, accountID string, req *dto.PutDeliverySettingsRequest) (*dto.DeliverySettings, error) {
	existing, err := s.recipients.GetByAccountID(ctx, accountID)
	creating := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !creating {
		return nil, fmt.Errorf("failed to load recipient: %w", err)
	}

	r := existing
	if creating {
		r = &model.Recipient{
			AccountID: accountID,
			Timezone:  defaultTimezone,
			MorningAt: defaultMorningAt,
			EveningAt: defaultEveningAt,
			Source:    model.ContentSourceStore,
			Active:    true,
		}
	}

	if err := s.apply(r, req); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.recipients.WithTx(tx)
		if !creating {
			return repo.UpdateSettings(ctx, r)
		}
		if err := repo.Create(ctx, r); err != nil {
			return fmt.Errorf("failed to create recipient: %w", err)
		}
		if s.defaultCredits > 0 {
			return s.quota.creditInTx(ctx, tx, accountID, s.defaultCredits, model.QuotaReasonSignup)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.dropCache(ctx, accountID)

	saved, err := s.recipients.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload recipient: %w", err)
	}

	s.logger.Info("Delivery settings saved",
		zap.String("account_id", accountID),
		zap.Bool("created", creating),
		zap.String("source", string(saved.Source)),
		zap.Bool("active", saved.Active),
	)
	settings := dto.NewDeliverySettings(saved)
	return &settings, nil
}

// apply 合并请求并校验：时刻 HH:MM、IANA 时区、来源合法，启用的 Notion 来源必须带凭据
func (s *RecipientService) apply(r *model.Recipient, req *dto.PutDeliverySettingsRequest) error {
	if req.Timezone != nil {
		if !utils.ValidateTimezone(*req.Timezone) {
			return fmt.Errorf("%w", pkgerrors.RecipientInvalidZone)
		}
		r.Timezone = *req.Timezone
	}
	if req.MorningAt != nil {
		if !utils.ValidateClock(*req.MorningAt) {
			return fmt.Errorf("%w", pkgerrors.RecipientInvalidClock)
		}
		r.MorningAt = *req.MorningAt
	}
	if req.EveningAt != nil {
		if !utils.ValidateClock(*req.EveningAt) {
			return fmt.Errorf("%w", pkgerrors.RecipientInvalidClock)
		}
		r.EveningAt = *req.EveningAt
	}
	if req.Source != nil {
		src := model.ContentSource(*req.Source)
		if !src.Valid() {
			return fmt.Errorf("%w", pkgerrors.RecipientInvalidSource)
		}
		r.Source = src
	}
	if req.Active != nil {
		r.Active = *req.Active
	}
	if req.NotionDatabaseID != nil {
		if *req.NotionDatabaseID == "" {
			r.NotionDatabaseID = nil
		} else {
			id := *req.NotionDatabaseID
			r.NotionDatabaseID = &id
		}
	}
	if req.NotionToken != nil {
		if *req.NotionToken == "" {
			r.NotionToken = nil
		} else {
			enc, err := s.encrypt(*req.NotionToken)
			if err != nil {
				return fmt.Errorf("failed to encrypt notion token: %w", err)
			}
			r.NotionToken = &enc
		}
	}

	if r.Active && !r.HasSourceCredentials() {
		return fmt.Errorf("%w", pkgerrors.RecipientMissingSecrets)
	}
	return nil
}
