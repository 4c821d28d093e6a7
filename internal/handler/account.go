package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"DailyPrompt/internal/middleware"
	"DailyPrompt/internal/model"
	"DailyPrompt/internal/model/dto"
	"DailyPrompt/internal/service"
	pkgerrors "DailyPrompt/pkg/errors"
	"DailyPrompt/pkg/response"
)

func accountID(ctx context.Context, c *app.RequestContext) (string, bool) {
	id, ok := middleware.GetAccountID(ctx, c)
	if !ok {
		response.Error(ctx, c, fmt.Errorf("%w", pkgerrors.Unauthorized))
		return "", false
	}
	return id, true
}

// IssueLinkCode 签发网关绑定码，明文只在这里返回一次
// POST /v1/link-codes
func IssueLinkCode(ctx context.Context, c *app.RequestContext) {
	id, ok := accountID(ctx, c)
	if !ok {
		return
	}

	issued, err := service.Link().IssueCode(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, dto.LinkCodeData{
		Code:      issued.Code,
		ExpiresAt: issued.ExpiresAt,
		ExpiresIn: int(time.Until(issued.ExpiresAt).Round(time.Second).Seconds()),
	})
}

// GetDelivery 投递设置、最近一次投递和额度
// GET /v1/me/delivery
func GetDelivery(ctx context.Context, c *app.RequestContext) {
	id, ok := accountID(ctx, c)
	if !ok {
		return
	}

	overview, err := service.Recipient().GetSettings(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, overview)
}

// PutDelivery 写入投递设置，首次写入创建接收者
// PUT /v1/me/delivery
func PutDelivery(ctx context.Context, c *app.RequestContext) {
	id, ok := accountID(ctx, c)
	if !ok {
		return
	}

	var req dto.PutDeliverySettingsRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	settings, err := service.Recipient().PutSettings(ctx, id, &req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, settings)
}

// GetCredits 余额和最近的流水
// GET /v1/me/credits?limit=20
func GetCredits(ctx context.Context, c *app.RequestContext) {
	id, ok := accountID(ctx, c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	quota := service.Quota()
	balance, err := quota.Balance(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	txns, err := quota.Transactions(ctx, id, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, dto.CreditsData{Balance: balance, Transactions: txns})
}

// CreateGeneration 扣减一次额度并生成指定槽位的内容
// POST /v1/generations
func CreateGeneration(ctx context.Context, c *app.RequestContext) {
	id, ok := accountID(ctx, c)
	if !ok {
		return
	}

	var req dto.GenerateRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	result, err := service.Generation().Generate(ctx, id, service.GenerateRequest{
		Date:  req.Date,
		Slot:  model.Slot(req.Slot),
		Theme: req.Theme,
	})
	if err != nil {
		if errors.Is(err, pkgerrors.QuotaInsufficient) && result != nil {
			response.ErrorWithDetails(ctx, c, err, map[string]interface{}{"balance": result.Balance})
			return
		}
		response.Error(ctx, c, err)
		return
	}

	response.Created(ctx, c, dto.GenerationData{Item: result.Item, Balance: result.Balance})
}
