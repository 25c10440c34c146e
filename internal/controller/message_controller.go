package controller

import (
	"strconv"
	"time"

	"debate_edu_backend/internal/service"
	"debate_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type MessageController struct {
	TurnService       *service.TurnService
	TranscriptService *service.TranscriptService
}

func NewMessageController(turnService *service.TurnService, transcriptService *service.TranscriptService) *MessageController {
	return &MessageController{
		TurnService:       turnService,
		TranscriptService: transcriptService,
	}
}

type submitRequest struct {
	Content string `json:"content" binding:"required"`
}

// Submit godoc
// @Summary 学生发言并获取 AI 回复
// @Description 默认以 SSE 流式返回增量片段，以恰好一个 done 或 error 事件结束；
// @Description 带 sync=true 时等待生成完成后一次性返回完整回复
// @Tags 消息
// @Param id path string true "讨论 ID"
// @Param sync query bool false "同步模式"
// @Router /api/discussions/{id}/messages [post]
func (c *MessageController) Submit(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	sessionID := ctx.Param("id")

	var req submitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if ctx.Query("sync") == "true" {
		msg, capReached, err := c.TurnService.SubmitSync(claims.UserID, sessionID, req.Content)
		if err != nil {
			respondError(ctx, err)
			return
		}
		util.Success(ctx, gin.H{
			"message":    msg,
			"capReached": capReached,
		})
		return
	}

	events, err := c.TurnService.Submit(claims.UserID, sessionID, req.Content)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Header("X-Accel-Buffering", "no")

	// 客户端断开后继续读空事件流：生成和持久化不受连接状态影响，
	// 结果由变更通知或轮询补达
	clientGone := ctx.Request.Context().Done()
	gone := false

	for ev := range events {
		if !gone {
			select {
			case <-clientGone:
				gone = true
			default:
			}
		}
		if gone {
			continue
		}

		switch {
		case ev.Err != nil:
			ctx.SSEvent("error", gin.H{"error": ev.Err.Error()})
		case ev.Done:
			// 缓冲写不下的增量余量在 done 前并成一个片段补发，
			// 片段拼接结果与落库回复保持一致
			if ev.Tail != "" {
				ctx.SSEvent("chunk", gin.H{"chunk": ev.Tail})
			}
			ctx.SSEvent("done", gin.H{
				"done":       true,
				"message":    ev.Message,
				"capReached": ev.CapReached,
			})
		default:
			ctx.SSEvent("chunk", gin.H{"chunk": ev.Chunk})
		}
		ctx.Writer.Flush()
	}
}

// Thread 参与者本人的对话线；学生视角过滤隐藏消息
func (c *MessageController) Thread(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	msgs, err := c.TranscriptService.ParticipantThread(ctx.Param("participantId"), claims.UserID, claims.Role)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, msgs)
}

// Transcript 讲师视角的全场消息。since 参数（RFC3339）用于推送
// 断连后的增量对账，客户端按消息 ID 去重合并；
// limit 参数只取最近 N 条，两者互斥时 limit 优先。
func (c *MessageController) Transcript(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	if raw := ctx.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			util.BadRequest(ctx, "invalid limit parameter, expected a positive integer")
			return
		}
		msgs, err := c.TranscriptService.SessionTranscriptWindow(ctx.Param("id"), claims.UserID, claims.Role, limit)
		if err != nil {
			respondError(ctx, err)
			return
		}
		util.Success(ctx, msgs)
		return
	}

	var since time.Time
	if raw := ctx.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			util.BadRequest(ctx, "invalid since parameter, expected RFC3339")
			return
		}
		since = parsed
	}

	msgs, err := c.TranscriptService.SessionTranscript(ctx.Param("id"), claims.UserID, claims.Role, since)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, msgs)
}

// Wait 长轮询降级：等待 after 之后的第一条 AI 回复，
// 约 20 秒内没有结果时返回 204，客户端自行决定重试
func (c *MessageController) Wait(ctx *gin.Context) {
	after := time.Now()
	if raw := ctx.Query("after"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			util.BadRequest(ctx, "invalid after parameter, expected RFC3339")
			return
		}
		after = parsed
	}

	msg, err := c.TurnService.WaitForReply(ctx.Request.Context(), ctx.Param("participantId"), after)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if msg == nil {
		ctx.Status(204)
		return
	}
	util.Success(ctx, msg)
}
