package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"DailyPrompt/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

func errorToHTTPStatus(err error) int {
	def, ok := errors.AsDefinition(err)
	if !ok {
		return http.StatusInternalServerError
	}

	// 根据错误码映射 HTTP 状态码
	switch def.Code {
	case errors.TooManyRequests.Code, errors.LinkCodeIssueLimited.Code, errors.LinkRateLimited.Code:
		return http.StatusTooManyRequests // 429
	case errors.Unauthorized.Code, errors.SchedulerUnauthorized.Code:
		return http.StatusUnauthorized // 401
	case errors.QuotaInsufficient.Code:
		return http.StatusPaymentRequired // 402
	case errors.RecipientNotFound.Code:
		return http.StatusNotFound // 404
	case errors.ContentAlreadySent.Code:
		return http.StatusConflict // 409
	case errors.InvalidRequest.Code,
		errors.RecipientInvalidClock.Code, errors.RecipientInvalidZone.Code,
		errors.RecipientInvalidSource.Code, errors.RecipientMissingSecrets.Code,
		errors.SlotInvalid.Code, errors.LinkCodeInvalid.Code,
		errors.ContentDateInvalid.Code, errors.QuotaAmountInvalid.Code:
		return http.StatusBadRequest // 400
	default:
		return http.StatusInternalServerError // 500
	}
}

func describe(err error) (code, message string) {
	if def, ok := errors.AsDefinition(err); ok {
		return def.Code, def.Message
	}
	return errors.InternalError.Code, err.Error()
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	code, message := describe(err)

	c.JSON(errorToHTTPStatus(err), ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func Created(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{
		Data: data,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}
