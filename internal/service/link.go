package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"DailyPrompt/config"
	"DailyPrompt/internal/cache"
	"DailyPrompt/internal/model"
	"DailyPrompt/internal/repository"
	pkgerrors "DailyPrompt/pkg/errors"
	"DailyPrompt/pkg/logger"
	"DailyPrompt/pkg/metrics"
	"DailyPrompt/storage/database"
	"DailyPrompt/utils"
)

type LinkStatus string

const (
	LinkLinked      LinkStatus = "linked"
	LinkInvalidCode LinkStatus = "invalid-code"
	LinkRateLimited LinkStatus = "rate-limited"
)

// 失败原因细分，只用于日志和机器人回执
const (
	LinkReasonUnknown           = "unknown"
	LinkReasonConsumedOrExpired = "consumed-or-expired"
)

const (
	linkCodeDigits     = 6
	linkIssueRetries   = 5
	startCommandPrefix = "/start"
)

type IssuedCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type LinkResult struct {
	Status            LinkStatus    `json:"status"`
	Reason            string        `json:"reason,omitempty"`
	AccountID         string        `json:"account_id,omitempty"`
	RetryAfter        time.Duration `json:"retry_after,omitempty"`
	AttemptsRemaining int           `json:"attempts_remaining"`
}

// LinkOptions 绑定码参数，零值使用配置
type LinkOptions struct {
	Passphrase     string
	TTL            time.Duration
	Window         time.Duration
	MaxAttempts    int
	IssuePerMinute int
}

func linkOptionsFromConfig() LinkOptions {
	return LinkOptions{
		Passphrase:     config.Cfg.LinkPassphrase,
		TTL:            config.Cfg.LinkCodeTTL,
		Window:         config.Cfg.LinkAttemptWindow,
		MaxAttempts:    config.Cfg.LinkMaxAttempts,
		IssuePerMinute: config.Cfg.LinkIssuePerMinute,
	}
}

// LinkService 网关身份与账户的绑定
type LinkService struct {
	db         *gorm.DB
	links      *repository.LinkRepository
	recipients *repository.RecipientRepository
	logger     *zap.Logger
	now        func() time.Time
	hash       func(string) string
	newCode    func() (string, error)
	issueCount func(ctx context.Context, accountID string, now time.Time) (int, error)
	invalidate func(ctx context.Context, accountID string)
	opts       LinkOptions
}

var (
	linkService *LinkService
	linkOnce    sync.Once
)

func Link() *LinkService {
	linkOnce.Do(func() {
		linkService = NewLinkService(database.DB(), linkOptionsFromConfig())
	})
	return linkService
}

func NewLinkService(db *gorm.DB, opts LinkOptions) *LinkService {
	return &LinkService{
		db:         db,
		links:      repository.NewLinkRepository(db),
		recipients: repository.NewRecipientRepository(db),
		logger:     logger.Named("link"),
		now:        func() time.Time { return time.Now().UTC() },
		hash:       utils.HashCode,
		newCode:    randomCode,
		issueCount: cache.IncrLinkIssueCount,
		invalidate: invalidateSettingsCache,
		opts:       opts,
	}
}

func randomCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", linkCodeDigits, n.Int64()), nil
}

// IssueCode 签发新码并作废账户下所有旧码，数据库只保存哈希
func (s *LinkService) IssueCode(ctx context.Context, accountID string) (*IssuedCode, error) {
	now := s.now()

	if _, err := s.recipients.GetByAccountID(ctx, accountID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w", pkgerrors.RecipientNotFound)
		}
		return nil, fmt.Errorf("failed to load recipient: %w", err)
	}

	if s.issueCount != nil && s.opts.IssuePerMinute > 0 {
		count, err := s.issueCount(ctx, accountID, now)
		if err != nil {
			// 签发限流依赖 Redis，不可用时放行，绑定尝试仍受数据库计数器保护
			s.logger.Warn("Link issue counter unavailable", zap.Error(err))
		} else if count > s.opts.IssuePerMinute {
			return nil, fmt.Errorf("%w", pkgerrors.LinkCodeIssueLimited)
		}
	}

	var issued *IssuedCode
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		links := s.links.WithTx(tx)
		if err := links.InvalidateActive(ctx, accountID, now); err != nil {
			return fmt.Errorf("failed to invalidate previous codes: %w", err)
		}

		for attempt := 0; attempt < linkIssueRetries; attempt++ {
			code, err := s.newCode()
			if err != nil {
				return fmt.Errorf("failed to generate code: %w", err)
			}
			codeHash := s.hash(code)

			exists, err := links.LiveCodeExists(ctx, codeHash, now)
			if err != nil {
				return err
			}
			if exists {
				continue
			}

			link := &model.VerificationLink{
				AccountID: accountID,
				CodeHash:  codeHash,
				IssuedAt:  now,
				ExpiresAt: now.Add(s.opts.TTL),
			}
			if err := links.Create(ctx, link); err != nil {
				return fmt.Errorf("failed to store code: %w", err)
			}
			issued = &IssuedCode{Code: code, ExpiresAt: link.ExpiresAt}
			return nil
		}
		return errors.New("could not allocate a unique link code")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Link code issued", zap.String("account_id", accountID), zap.Time("expires_at", issued.ExpiresAt))
	return issued, nil
}

// AttemptLink 锁定期间不计数；失败计数达到阈值后锁定一个窗口
func (s *LinkService) AttemptLink(ctx context.Context, identity, text string) (LinkResult, error) {
	now := s.now()

	counter, err := s.links.GetCounter(ctx, identity)
	if err != nil {
		return LinkResult{}, fmt.Errorf("failed to load attempt counter: %w", err)
	}
	if counter != nil && counter.LockoutUntil != nil && now.Before(*counter.LockoutUntil) {
		metrics.RecordLinkAttempt(ctx, string(LinkRateLimited))
		return LinkResult{Status: LinkRateLimited, RetryAfter: counter.LockoutUntil.Sub(now)}, nil
	}

	candidate, reason, err := s.match(ctx, text, now)
	if err != nil {
		return LinkResult{}, err
	}

	if candidate != nil {
		linked, err := s.consume(ctx, candidate, identity, now)
		if err != nil {
			return LinkResult{}, err
		}
		if linked {
			if s.invalidate != nil {
				s.invalidate(ctx, candidate.AccountID)
			}
			metrics.RecordLinkAttempt(ctx, string(LinkLinked))
			s.logger.Info("Gateway identity linked",
				zap.String("account_id", candidate.AccountID),
				zap.String("identity", identity),
			)
			return LinkResult{Status: LinkLinked, AccountID: candidate.AccountID, AttemptsRemaining: s.opts.MaxAttempts}, nil
		}
		// 并发消费中落败
		reason = LinkReasonConsumedOrExpired
	}

	counter, err = s.links.RecordFailure(ctx, identity, now, s.opts.Window, s.opts.MaxAttempts)
	if err != nil {
		return LinkResult{}, fmt.Errorf("failed to record link failure: %w", err)
	}

	remaining := s.opts.MaxAttempts - counter.AttemptCount
	if remaining < 0 || counter.LockoutUntil != nil {
		remaining = 0
	}
	metrics.RecordLinkAttempt(ctx, string(LinkInvalidCode))
	s.logger.Info("Link attempt rejected",
		zap.String("identity", identity),
		zap.String("reason", reason),
		zap.Int("attempts", counter.AttemptCount),
	)
	return LinkResult{Status: LinkInvalidCode, Reason: reason, AttemptsRemaining: remaining}, nil
}

// match 返回可以尝试消费的绑定码
func (s *LinkService) match(ctx context.Context, text string, now time.Time) (*model.VerificationLink, string, error) {
	candidate := NormalizeLinkText(text)

	if utils.IsLinkCode(candidate) {
		link, err := s.links.FindLatestByHash(ctx, s.hash(candidate))
		if err != nil {
			return nil, "", fmt.Errorf("failed to look up code: %w", err)
		}
		if link == nil {
			return nil, LinkReasonUnknown, nil
		}
		if !link.Live(now) {
			return nil, LinkReasonConsumedOrExpired, nil
		}
		return link, "", nil
	}

	if s.IsPassphrase(candidate) {
		link, err := s.links.FindMostRecentLive(ctx, now)
		if err != nil {
			return nil, "", fmt.Errorf("failed to look up code: %w", err)
		}
		if link == nil {
			return nil, LinkReasonConsumedOrExpired, nil
		}
		return link, "", nil
	}

	return nil, LinkReasonUnknown, nil
}

// consume 消费、绑定、清空计数在同一个事务内
func (s *LinkService) consume(ctx context.Context, link *model.VerificationLink, identity string, now time.Time) (bool, error) {
	consumed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.links.WithTx(tx).Consume(ctx, link.ID, identity, now)
		if err != nil {
			return fmt.Errorf("failed to consume code: %w", err)
		}
		if !ok {
			return nil
		}

		rows, err := s.recipients.WithTx(tx).BindIdentity(ctx, link.AccountID, identity)
		if err != nil {
			return fmt.Errorf("failed to bind identity: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: account %s", pkgerrors.RecipientNotFound, link.AccountID)
		}

		if err := s.links.WithTx(tx).ResetCounter(ctx, identity); err != nil {
			return fmt.Errorf("failed to reset attempt counter: %w", err)
		}
		consumed = true
		return nil
	})
	return consumed, err
}

// IsPassphrase 未配置口令时始终为 false
func (s *LinkService) IsPassphrase(text string) bool {
	if s.opts.Passphrase == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(text), []byte(s.opts.Passphrase)) == 1
}

// NormalizeLinkText 去掉首尾空白和 /start 前缀（deep link 会带上参数）
func NormalizeLinkText(text string) string {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, startCommandPrefix); ok {
		text = strings.TrimSpace(rest)
	}
	return text
}
