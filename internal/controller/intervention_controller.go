package controller

import (
	"debate_edu_backend/internal/service"
	"debate_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type InterventionController struct {
	InterventionService *service.InterventionService
	PinService          *service.PinService
}

func NewInterventionController(interventionService *service.InterventionService, pinService *service.PinService) *InterventionController {
	return &InterventionController{
		InterventionService: interventionService,
		PinService:          pinService,
	}
}

// Intervene godoc
// @Summary 讲师介入
// @Description message 在学生对话线里可见发言；guidance 对学生隐藏、
// @Description 只影响后续 AI 回复；broadcast 面向全场公告
// @Tags 介入
// @Router /api/discussions/{id}/intervention [post]
func (c *InterventionController) Intervene(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var input service.InterventionInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	msg, err := c.InterventionService.Intervene(claims.UserID, ctx.Param("id"), input)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, msg)
}

type pinRequest struct {
	MessageID   string `json:"messageId" binding:"required"`
	DisplayName string `json:"displayName"`
}

// Pin 摘录学生发言到展示板
func (c *InterventionController) Pin(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var req pinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	pin, err := c.PinService.Pin(claims.UserID, ctx.Param("id"), req.MessageID, req.DisplayName)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, pin)
}

func (c *InterventionController) Unpin(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	if err := c.PinService.Unpin(claims.UserID, ctx.Param("id"), ctx.Param("pinId")); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

func (c *InterventionController) ListPins(ctx *gin.Context) {
	pins, err := c.PinService.List(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, pins)
}
