package controller

import (
	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/service"
	"debate_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SubscriptionController struct {
	SubscriptionService *service.SubscriptionService
	QuotaService        *service.QuotaService
}

func NewSubscriptionController(subscriptionService *service.SubscriptionService, quotaService *service.QuotaService) *SubscriptionController {
	return &SubscriptionController{
		SubscriptionService: subscriptionService,
		QuotaService:        quotaService,
	}
}

// Info 当前用户的订阅视图：套餐、限额、本周期用量
func (c *SubscriptionController) Info(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	info, err := c.SubscriptionService.GetInfo(claims.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, info)
}

// CheckLimit 前端在动作前预检配额，给出升级提示
func (c *SubscriptionController) CheckLimit(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	limitType := model.LimitType(ctx.Query("type"))
	switch limitType {
	case model.LimitDiscussion, model.LimitActiveDiscussions, model.LimitParticipants:
	default:
		util.BadRequest(ctx, "type must be one of: discussion, activeDiscussions, participants")
		return
	}

	result, err := c.QuotaService.CheckLimit(claims.UserID, limitType, ctx.Query("sessionId"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
