package controller

import (
	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/service"
	"debate_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	SessionService *service.SessionService
	ExportService  *service.ExportService
}

func NewSessionController(sessionService *service.SessionService, exportService *service.ExportService) *SessionController {
	return &SessionController{
		SessionService: sessionService,
		ExportService:  exportService,
	}
}

// Create godoc
// @Summary 创建讨论
// @Tags 讨论
// @Accept json
// @Produce json
// @Param body body service.CreateSessionInput true "讨论配置"
// @Success 201 {object} util.Response{data=model.DiscussionSession}
// @Failure 403 {object} util.Response "超出套餐配额"
// @Router /api/discussions [post]
func (c *SessionController) Create(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var input service.CreateSessionInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.SessionService.Create(claims.UserID, input)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, session)
}

// List 当前讲师的讨论列表
func (c *SessionController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	sessions, err := c.SessionService.ListByInstructor(claims.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, sessions)
}

func (c *SessionController) Get(ctx *gin.Context) {
	session, err := c.SessionService.Get(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// Join godoc
// @Summary 凭加入码进入讨论
// @Tags 讨论
// @Router /api/discussions/join [post]
func (c *SessionController) Join(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var input service.JoinSessionInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, participant, err := c.SessionService.Join(claims.UserID, input)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"session":     session,
		"participant": participant,
	})
}

func (c *SessionController) Activate(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	session, err := c.SessionService.Activate(claims.UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

func (c *SessionController) Close(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	session, err := c.SessionService.Close(claims.UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

func (c *SessionController) UpdateSettings(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var settings model.DiscussionSettings
	if err := ctx.ShouldBindJSON(&settings); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.SessionService.UpdateSettings(claims.UserID, ctx.Param("id"), settings)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// ExportReport 生成讨论报告并上传到对象存储（付费功能）
func (c *SessionController) ExportReport(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	result, err := c.ExportService.ExportReport(ctx.Request.Context(), claims.UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
