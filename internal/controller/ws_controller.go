package controller

import (
	"errors"
	"net/http"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/service"
	"debate_edu_backend/internal/util"
	"debate_edu_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 跨域检查由 CORS 中间件统一处理
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSController struct {
	Hub                *service.SessionHub
	SessionService     *service.SessionService
	ParticipantService *service.ParticipantService
	TranscriptService  *service.TranscriptService
}

func NewWSController(hub *service.SessionHub, sessionService *service.SessionService, participantService *service.ParticipantService, transcriptService *service.TranscriptService) *WSController {
	return &WSController{
		Hub:                hub,
		SessionService:     sessionService,
		ParticipantService: participantService,
		TranscriptService:  transcriptService,
	}
}

// 对账周期。事件流可能因慢订阅踢除或 Redis 抖动漏投，
// 周期性用数据库快照补齐差量
const reconcileInterval = 15 * time.Second

// Subscribe 订阅会话变更事件流。
// 建连后先推一份参与者与消息快照，之后按事件增量推送，
// 服务端同时周期对账补发漏掉的消息；
// 客户端用消息 ID 去重，把快照和事件合并为一致视图。
func (c *WSController) Subscribe(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	sessionID := ctx.Param("id")

	session, err := c.SessionService.Get(sessionID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	role := claims.Role
	participantID := ""
	isInstructor := session.InstructorID == claims.UserID || claims.Role == model.Admin
	if !isInstructor {
		// 学生必须先加入讨论才能订阅
		participants, err := c.ParticipantService.List(sessionID, claims.UserID, claims.Role)
		if err != nil {
			respondError(ctx, err)
			return
		}
		for _, p := range participants {
			if p.StudentID == claims.UserID {
				participantID = p.ID
				break
			}
		}
		if participantID == "" {
			util.Forbidden(ctx)
			return
		}
		role = model.Student
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	sub := c.Hub.Subscribe(conn, sessionID, role, participantID)

	if participantID != "" {
		c.ParticipantService.SetOnline(participantID, true)
	}

	feed := service.NewTranscriptFeed()
	c.sendSnapshot(sub, feed, sessionID, claims, isInstructor, participantID)
	go c.reconcileLoop(sub, feed, claims, isInstructor, participantID)
	go c.readLoop(conn, sub, participantID)
}

func (c *WSController) sendSnapshot(sub *service.Subscriber, feed *service.TranscriptFeed, sessionID string, claims *util.Claims, isInstructor bool, participantID string) {
	participants, err := c.ParticipantService.List(sessionID, claims.UserID, claims.Role)
	if err == nil {
		sub.SendSnapshot("discussion_participants", participants)
	}

	msgs, err := c.fetchTranscript(sessionID, claims, isInstructor, participantID)
	if err == nil {
		sub.SendSnapshot("discussion_messages", feed.Merge(msgs))
	}
}

func (c *WSController) fetchTranscript(sessionID string, claims *util.Claims, isInstructor bool, participantID string) ([]model.DiscussionMessage, error) {
	if isInstructor {
		return c.TranscriptService.SessionTranscript(sessionID, claims.UserID, claims.Role, time.Time{})
	}
	return c.TranscriptService.ParticipantThread(participantID, claims.UserID, claims.Role)
}

// reconcileLoop 周期性重拉消息快照，经 feed 去重后只发快照尚未覆盖的消息。
// 与事件流推送的重叠由客户端按消息 ID 丢弃
func (c *WSController) reconcileLoop(sub *service.Subscriber, feed *service.TranscriptFeed, claims *util.Claims, isInstructor bool, participantID string) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.Done():
			return
		case <-ticker.C:
			msgs, err := c.fetchTranscript(sub.SessionID, claims, isInstructor, participantID)
			if err != nil {
				logger.Log.Warn("Transcript reconciliation failed",
					zap.String("session_id", sub.SessionID), zap.Error(err))
				continue
			}
			if fresh := feed.Merge(msgs); len(fresh) > 0 {
				sub.SendSnapshot("discussion_messages", fresh)
			}
		}
	}
}

// readLoop 处理心跳并感知连接关闭
func (c *WSController) readLoop(conn *websocket.Conn, sub *service.Subscriber, participantID string) {
	defer func() {
		c.Hub.Unsubscribe(sub)
		if participantID != "" {
			c.ParticipantService.SetOnline(participantID, false)
		}
	}()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				logger.Log.Debug("Subscriber connection closed", zap.Error(err))
			}
			return
		}
	}
}
