package errors

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 通用错误。
var (
	InvalidRequest  = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	Unauthorized    = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	InternalError   = Definition{Code: "INTERNAL_ERROR", Message: "Internal error"}
)

// 投递配置错误。
var (
	RecipientNotFound       = Definition{Code: "RECIPIENT_NOT_FOUND", Message: "Delivery settings not configured"}
	RecipientInvalidClock   = Definition{Code: "RECIPIENT_INVALID_CLOCK", Message: "Slot time must be HH:MM"}
	RecipientInvalidZone    = Definition{Code: "RECIPIENT_INVALID_TIMEZONE", Message: "Unknown timezone"}
	RecipientInvalidSource  = Definition{Code: "RECIPIENT_INVALID_SOURCE", Message: "Unknown content source"}
	RecipientMissingSecrets = Definition{Code: "RECIPIENT_SOURCE_CREDENTIALS_MISSING", Message: "Content source credentials required when active"}
	SlotInvalid             = Definition{Code: "SLOT_INVALID", Message: "Slot must be morning or evening"}
)

// 绑定码错误。
var (
	LinkCodeIssueLimited = Definition{Code: "LINK_CODE_ISSUE_LIMITED", Message: "Link codes requested too often"}
	LinkCodeInvalid      = Definition{Code: "LINK_CODE_INVALID", Message: "Link code invalid"}
	LinkRateLimited      = Definition{Code: "LINK_RATE_LIMITED", Message: "Too many link attempts"}
)

// 内容错误。
var (
	ContentAlreadySent = Definition{Code: "CONTENT_ALREADY_SENT", Message: "Content for this slot was already delivered"}
	ContentDateInvalid = Definition{Code: "CONTENT_DATE_INVALID", Message: "Date must be YYYY-MM-DD"}
)

// 额度模块错误。
var (
	QuotaInsufficient  = Definition{Code: "QUOTA_INSUFFICIENT", Message: "Quota insufficient"}
	QuotaAmountInvalid = Definition{Code: "QUOTA_AMOUNT_INVALID", Message: "Credit amount must be positive"}
)

// 调度入口错误。
var (
	SchedulerUnauthorized = Definition{Code: "SCHEDULER_UNAUTHORIZED", Message: "Scheduler trigger not authenticated"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidRequest.Code:          InvalidRequest,
	Unauthorized.Code:            Unauthorized,
	TooManyRequests.Code:         TooManyRequests,
	InternalError.Code:           InternalError,
	RecipientNotFound.Code:       RecipientNotFound,
	RecipientInvalidClock.Code:   RecipientInvalidClock,
	RecipientInvalidZone.Code:    RecipientInvalidZone,
	RecipientInvalidSource.Code:  RecipientInvalidSource,
	RecipientMissingSecrets.Code: RecipientMissingSecrets,
	SlotInvalid.Code:             SlotInvalid,
	LinkCodeIssueLimited.Code:    LinkCodeIssueLimited,
	LinkCodeInvalid.Code:         LinkCodeInvalid,
	LinkRateLimited.Code:         LinkRateLimited,
	ContentAlreadySent.Code:      ContentAlreadySent,
	ContentDateInvalid.Code:      ContentDateInvalid,
	QuotaInsufficient.Code:       QuotaInsufficient,
	QuotaAmountInvalid.Code:      QuotaAmountInvalid,
	SchedulerUnauthorized.Code:   SchedulerUnauthorized,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}
