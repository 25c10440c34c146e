package service

import (
	"strings"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/util"
)

// 介入类型
const (
	InterventionMessage   = "message"   // 以讲师身份在学生对话线里发言
	InterventionGuidance  = "guidance"  // 对学生隐藏的 AI 引导指令
	InterventionBroadcast = "broadcast" // 面向全场的系统公告
)

type InterventionInput struct {
	// broadcast 时为空
	ParticipantID string `json:"participantId"`
	Type          string `json:"type" binding:"required"`
	// 可选的细分标签（如 nudge、hint），默认与 Type 相同
	MessageType string `json:"messageType"`
	Content     string `json:"content" binding:"required"`
}

// InterventionService 把讲师的介入路由到对应的消息形态：
// 可见发言进入学生对话线；隐藏引导只进 AI 上下文；公告广播全场。
type InterventionService struct {
	sessionRepo     *repository.SessionRepository
	participantRepo *repository.ParticipantRepository
	msgRepo         *repository.MessageRepository
	hub             *SessionHub
}

func NewInterventionService(sessionRepo *repository.SessionRepository, participantRepo *repository.ParticipantRepository, msgRepo *repository.MessageRepository, hub *SessionHub) *InterventionService {
	return &InterventionService{
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		msgRepo:         msgRepo,
		hub:             hub,
	}
}

func (s *InterventionService) Intervene(instructorID, sessionID string, input InterventionInput) (*model.DiscussionMessage, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, util.ErrSubmitRequiresInput
	}

	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.InstructorID != instructorID {
		return nil, util.ErrPermissionDenied
	}
	if session.Status == model.SessionClosed {
		return nil, util.ErrSessionNotActive
	}

	msgType := input.MessageType
	if msgType == "" {
		msgType = input.Type
	}
	msg := &model.DiscussionMessage{
		SessionID:   sessionID,
		Content:     content,
		MessageType: msgType,
	}

	switch input.Type {
	case InterventionMessage, InterventionGuidance:
		participant, err := s.participantRepo.GetByID(input.ParticipantID)
		if err != nil {
			return nil, err
		}
		if participant.SessionID != sessionID {
			return nil, util.ErrNotFound
		}
		pid := participant.ID
		msg.ParticipantID = &pid
		msg.Role = model.RoleInstructor
		msg.IsVisibleToStudent = input.Type == InterventionMessage
	case InterventionBroadcast:
		msg.Role = model.RoleSystem
		msg.IsVisibleToStudent = true
	default:
		return nil, util.ErrNotFound
	}

	if err := s.msgRepo.Create(msg); err != nil {
		return nil, err
	}

	s.hub.Publish(ChangeEvent{
		Table:            "discussion_messages",
		Op:               "insert",
		SessionID:        sessionID,
		ParticipantID:    msg.ParticipantID,
		VisibleToStudent: msg.IsVisibleToStudent,
		Row:              messageRow(msg),
	})
	return msg, nil
}
