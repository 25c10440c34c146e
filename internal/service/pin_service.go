package service

import (
	"errors"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/util"
)

// PinService 讲师把学生发言摘录到展示板。
// 摘录只保存对原消息的回引和内容快照，不影响消息本身。
type PinService struct {
	sessionRepo *repository.SessionRepository
	msgRepo     *repository.MessageRepository
	pinRepo     *repository.PinRepository
	hub         *SessionHub
}

func NewPinService(sessionRepo *repository.SessionRepository, msgRepo *repository.MessageRepository, pinRepo *repository.PinRepository, hub *SessionHub) *PinService {
	return &PinService{
		sessionRepo: sessionRepo,
		msgRepo:     msgRepo,
		pinRepo:     pinRepo,
		hub:         hub,
	}
}

// Pin 同一条消息重复摘录时返回已有记录
func (s *PinService) Pin(instructorID, sessionID, messageID, displayName string) (*model.PinnedQuote, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.InstructorID != instructorID {
		return nil, util.ErrPermissionDenied
	}

	if existing, err := s.pinRepo.GetBySessionAndMessage(sessionID, messageID); err == nil {
		return existing, nil
	} else if !errors.Is(err, util.ErrNotFound) {
		return nil, err
	}

	msg, err := s.msgRepo.GetByID(messageID)
	if err != nil {
		return nil, err
	}
	if msg.SessionID != sessionID {
		return nil, util.ErrNotFound
	}

	pin := &model.PinnedQuote{
		SessionID:     sessionID,
		MessageID:     messageID,
		ParticipantID: msg.ParticipantID,
		Content:       msg.Content,
		DisplayName:   displayName,
	}
	if err := s.pinRepo.Create(pin); err != nil {
		return nil, err
	}

	s.publishPin("insert", pin)
	return pin, nil
}

func (s *PinService) Unpin(instructorID, sessionID, pinID string) error {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return err
	}
	if session.InstructorID != instructorID {
		return util.ErrPermissionDenied
	}

	pin, err := s.pinRepo.GetByID(pinID)
	if err != nil {
		return err
	}
	if pin.SessionID != sessionID {
		return util.ErrNotFound
	}

	if err := s.pinRepo.Delete(pinID); err != nil {
		return err
	}

	s.publishPin("delete", pin)
	return nil
}

func (s *PinService) List(sessionID string) ([]model.PinnedQuote, error) {
	return s.pinRepo.ListBySession(sessionID)
}

func (s *PinService) publishPin(op string, pin *model.PinnedQuote) {
	s.hub.Publish(ChangeEvent{
		Table:            "pinned_quotes",
		Op:               op,
		SessionID:        pin.SessionID,
		ParticipantID:    pin.ParticipantID,
		VisibleToStudent: true,
		Row: util.NormalizeRecord(map[string]interface{}{
			"id":           pin.ID,
			"session_id":   pin.SessionID,
			"message_id":   pin.MessageID,
			"content":      pin.Content,
			"display_name": pin.DisplayName,
			"sort_order":   pin.SortOrder,
		}),
	})
}
