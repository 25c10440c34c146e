package controller

import (
	"debate_edu_backend/internal/service"
	"debate_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ParticipantController struct {
	ParticipantService *service.ParticipantService
	NoteService        *service.NoteService
}

func NewParticipantController(participantService *service.ParticipantService, noteService *service.NoteService) *ParticipantController {
	return &ParticipantController{
		ParticipantService: participantService,
		NoteService:        noteService,
	}
}

// List godoc
// @Summary 会话参与者名单
// @Description 匿名讨论里学生视角只能看到展示名
// @Tags 参与者
// @Router /api/discussions/{id}/participants [get]
func (c *ParticipantController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	list, err := c.ParticipantService.List(ctx.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// Update 参与者资料与立场的部分更新
func (c *ParticipantController) Update(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var patch service.ParticipantPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	participant, err := c.ParticipantService.Update(ctx.Param("participantId"), claims.UserID, claims.Role, patch)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, participant)
}

// StanceDistribution 立场分布，讲师概览用
func (c *ParticipantController) StanceDistribution(ctx *gin.Context) {
	dist, err := c.ParticipantService.StanceDistribution(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, dist)
}

type noteRequest struct {
	Note string `json:"note"`
}

// SaveNote 讲师对参与者的私密备注，后写覆盖
func (c *ParticipantController) SaveNote(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var req noteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	note, err := c.NoteService.Save(claims.UserID, ctx.Param("participantId"), req.Note)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, note)
}

// ListNotes 会话内全部备注
func (c *ParticipantController) ListNotes(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	notes, err := c.NoteService.ListBySession(claims.UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, notes)
}
