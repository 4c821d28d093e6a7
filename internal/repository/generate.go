package repository

import (
	"fmt"
	"os"

	"gorm.io/gen"

	"DailyPrompt/config"
	"DailyPrompt/internal/model"
	"DailyPrompt/pkg/errors"
	"DailyPrompt/storage/database"
)

// ========== Recipient 相关查询接口 ==========

// RecipientQuerier 投递配置查询接口
type RecipientQuerier interface {
	// GetByAccountID 根据账户 ID 查询投递配置
	//
	// SELECT * FROM @@table WHERE account_id = @accountID LIMIT 1
	GetByAccountID(accountID string) (*gen.T, error)

	// GetByGatewayIdentity 根据网关身份查询（入站回调使用）
	//
	// SELECT * FROM @@table WHERE gateway_identity = @identity LIMIT 1
	GetByGatewayIdentity(identity string) (*gen.T, error)

	// ListActiveLinked 查询已绑定且启用的接收者（调度使用，游标分页）
	//
	// SELECT * FROM @@table
	// WHERE active = true
	//   AND gateway_identity IS NOT NULL
	//   {{if afterID > 0}}
	//   AND id > @afterID
	//   {{end}}
	// ORDER BY id ASC
	// LIMIT @limit
	ListActiveLinked(afterID int64, limit int) ([]*gen.T, error)

	// CountBySource 按内容源统计启用的接收者
	//
	// SELECT source, COUNT(*) as count
	// FROM @@table
	// WHERE active = true
	// GROUP BY source
	CountBySource() ([]gen.M, error)
}

// ========== DeliveryLedgerEntry 相关查询接口 ==========

// DeliveryLedgerQuerier 投递台账查询接口
type DeliveryLedgerQuerier interface {
	// GetByRecipientID 每个接收者至多一行
	//
	// SELECT * FROM @@table WHERE recipient_id = @recipientID LIMIT 1
	GetByRecipientID(recipientID int64) (*gen.T, error)

	// ListDeliveredOn 某个本地日期某个时间槽已投递的记录（运营排查使用）
	//
	// SELECT * FROM @@table
	// WHERE slot_date = @slotDate
	//   {{if slot != ""}}
	//   AND slot = @slot
	//   {{end}}
	// ORDER BY delivered_at DESC
	ListDeliveredOn(slotDate string, slot string) ([]*gen.T, error)
}

// ========== DeliveryClaim 相关查询接口 ==========

// DeliveryClaimQuerier 投递认领查询接口
type DeliveryClaimQuerier interface {
	// GetBySlot 按唯一键查询认领
	//
	// SELECT * FROM @@table
	// WHERE recipient_id = @recipientID AND slot_date = @slotDate AND slot = @slot
	// LIMIT 1
	GetBySlot(recipientID int64, slotDate string, slot string) (*gen.T, error)

	// ListFailed 查询失败的认领（用于排查漏发）
	//
	// SELECT * FROM @@table
	// WHERE status = 'failed'
	//   {{if slotDate != ""}}
	//   AND slot_date = @slotDate
	//   {{end}}
	// ORDER BY updated_at DESC
	// LIMIT @limit
	ListFailed(slotDate string, limit int) ([]*gen.T, error)

	// CountByStatus 按状态统计某天的认领
	//
	// SELECT status, COUNT(*) as count
	// FROM @@table
	// WHERE slot_date = @slotDate
	// GROUP BY status
	CountByStatus(slotDate string) ([]gen.M, error)
}

// ========== ContentItem 相关查询接口 ==========

// ContentItemQuerier 内容查询接口
type ContentItemQuerier interface {
	// GetBySlot 按 (recipient, date, slot) 唯一键查询
	//
	// SELECT * FROM @@table
	// WHERE recipient_id = @recipientID AND slot_date = @slotDate AND slot = @slot
	// LIMIT 1
	GetBySlot(recipientID int64, slotDate string, slot string) (*gen.T, error)

	// GetByPublicID 根据对外 ID 查询
	//
	// SELECT * FROM @@table WHERE public_id = @publicID LIMIT 1
	GetByPublicID(publicID int64) (*gen.T, error)

	// ListByRecipientAndDateRange 按接收者和日期范围查询（分页）
	//
	// SELECT * FROM @@table
	// WHERE recipient_id = @recipientID
	//   AND slot_date >= @fromDate
	//   AND slot_date <= @toDate
	//   {{if status != ""}}
	//   AND status = @status
	//   {{end}}
	// ORDER BY slot_date DESC, slot ASC
	// LIMIT @limit OFFSET @offset
	ListByRecipientAndDateRange(recipientID int64, fromDate, toDate string, status string, limit, offset int) ([]*gen.T, error)
}

// ========== VerificationLink 相关查询接口 ==========

// VerificationLinkQuerier 绑定码查询接口
type VerificationLinkQuerier interface {
	// ListLiveByAccountID 账户未使用且未过期的绑定码
	//
	// SELECT * FROM @@table
	// WHERE account_id = @accountID
	//   AND consumed_at IS NULL
	//   AND invalidated_at IS NULL
	//   AND expires_at > NOW()
	// ORDER BY issued_at DESC
	ListLiveByAccountID(accountID string) ([]*gen.T, error)

	// GetLatestByAccountID 账户最近签发的绑定码
	//
	// SELECT * FROM @@table
	// WHERE account_id = @accountID
	// ORDER BY issued_at DESC
	// LIMIT 1
	GetLatestByAccountID(accountID string) (*gen.T, error)
}

// ========== LinkAttemptCounter 相关查询接口 ==========

// LinkAttemptCounterQuerier 绑定尝试计数查询接口
type LinkAttemptCounterQuerier interface {
	// GetByIdentity 根据网关身份查询计数
	//
	// SELECT * FROM @@table WHERE gateway_identity = @identity LIMIT 1
	GetByIdentity(identity string) (*gen.T, error)

	// ListLockedOut 当前处于锁定期的身份
	//
	// SELECT * FROM @@table
	// WHERE lockout_until IS NOT NULL
	//   AND lockout_until > NOW()
	// ORDER BY lockout_until DESC
	ListLockedOut() ([]*gen.T, error)
}

// ========== ConsumptionBalance / QuotaTransaction 相关查询接口 ==========

// ConsumptionBalanceQuerier 额度余额查询接口
type ConsumptionBalanceQuerier interface {
	// GetByAccountID 根据账户 ID 查询余额
	//
	// SELECT * FROM @@table WHERE account_id = @accountID LIMIT 1
	GetByAccountID(accountID string) (*gen.T, error)
}

// QuotaTransactionQuerier 额度流水查询接口
type QuotaTransactionQuerier interface {
	// ListByAccountID 根据账户查询流水（游标分页）
	//
	// SELECT * FROM @@table
	// WHERE account_id = @accountID
	//   {{if cursorID > 0}}
	//   AND id < @cursorID
	//   {{end}}
	// ORDER BY id DESC
	// LIMIT @limit
	ListByAccountID(accountID string, cursorID int64, limit int) ([]*gen.T, error)

	// SumByAccountIDAndType 按交易类型汇总（对账使用，应与余额一致）
	//
	// SELECT transaction_type, COALESCE(SUM(amount), 0) as total
	// FROM @@table
	// WHERE account_id = @accountID
	// GROUP BY transaction_type
	SumByAccountIDAndType(accountID string) ([]gen.M, error)
}

func Generate() error {
	// gen 依赖 postgres 方言的 SQL 模板
	config.Cfg.DatabaseDriver = "postgres"

	if err := database.Init(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	db := database.DB()
	if db == nil {
		return errors.ErrDatabaseConnectionNil
	}

	g := gen.NewGenerator(gen.Config{
		OutPath:           "./internal/repository/query", // 生成代码的输出路径
		ModelPkgPath:      "DailyPrompt/internal/model",
		Mode:              gen.WithDefaultQuery | gen.WithQueryInterface | gen.WithoutContext,
		FieldNullable:     true,
		FieldCoverable:    false,
		FieldSignable:     false,
		FieldWithIndexTag: false,
		FieldWithTypeTag:  true,
	})

	g.UseDB(db)

	g.ApplyBasic(
		&model.Recipient{},
		&model.DeliveryLedgerEntry{},
		&model.DeliveryClaim{},
		&model.ContentItem{},
		&model.VerificationLink{},
		&model.LinkAttemptCounter{},
		&model.ConsumptionBalance{},
		&model.QuotaTransaction{},
	)

	g.ApplyInterface(func(RecipientQuerier) {}, &model.Recipient{})
	g.ApplyInterface(func(DeliveryLedgerQuerier) {}, &model.DeliveryLedgerEntry{})
	g.ApplyInterface(func(DeliveryClaimQuerier) {}, &model.DeliveryClaim{})
	g.ApplyInterface(func(ContentItemQuerier) {}, &model.ContentItem{})
	g.ApplyInterface(func(VerificationLinkQuerier) {}, &model.VerificationLink{})
	g.ApplyInterface(func(LinkAttemptCounterQuerier) {}, &model.LinkAttemptCounter{})
	g.ApplyInterface(func(ConsumptionBalanceQuerier) {}, &model.ConsumptionBalance{})
	g.ApplyInterface(func(QuotaTransactionQuerier) {}, &model.QuotaTransaction{})

	g.Execute()

	return nil
}

func RunGenerate() {
	if err := Generate(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate code: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Code generation completed successfully!")
}
