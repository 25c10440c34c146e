package service

import (
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/util"
)

// TranscriptService 消息读路径：学生读自己的对话线（过滤隐藏消息），
// 讲师读全场完整记录。since 参数供推送断连后的轮询对账使用。
type TranscriptService struct {
	sessionRepo     *repository.SessionRepository
	participantRepo *repository.ParticipantRepository
	msgRepo         *repository.MessageRepository
}

func NewTranscriptService(sessionRepo *repository.SessionRepository, participantRepo *repository.ParticipantRepository, msgRepo *repository.MessageRepository) *TranscriptService {
	return &TranscriptService{
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		msgRepo:         msgRepo,
	}
}

// ParticipantThread 学生本人的对话线。
// 对学生隐藏的讲师引导消息不出现在结果里，但仍参与 AI 上下文。
func (s *TranscriptService) ParticipantThread(participantID, viewerID string, viewerRole model.UserRole) ([]model.DiscussionMessage, error) {
	participant, err := s.participantRepo.GetByID(participantID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.GetByID(participant.SessionID)
	if err != nil {
		return nil, err
	}

	isOwner := participant.StudentID == viewerID
	isInstructor := session.InstructorID == viewerID || viewerRole == model.Admin
	if !isOwner && !isInstructor {
		return nil, util.ErrPermissionDenied
	}

	msgs, err := s.msgRepo.ListByParticipant(participantID, !isInstructor)
	if err != nil {
		return nil, err
	}
	s.attachRefs(session, msgs, map[string]*model.DiscussionParticipant{participant.ID: participant}, isInstructor)
	return msgs, nil
}

// SessionTranscript 讲师视角的全场消息，包含隐藏消息；
// since 非零时只返回该时刻之后的增量
func (s *TranscriptService) SessionTranscript(sessionID, viewerID string, viewerRole model.UserRole, since time.Time) ([]model.DiscussionMessage, error) {
	session, err := s.instructorSession(sessionID, viewerID, viewerRole)
	if err != nil {
		return nil, err
	}

	var msgs []model.DiscussionMessage
	if since.IsZero() {
		msgs, err = s.msgRepo.ListBySession(sessionID)
	} else {
		msgs, err = s.msgRepo.ListRecentBySession(sessionID, since)
	}
	if err != nil {
		return nil, err
	}
	return s.withRefs(session, msgs)
}

// SessionTranscriptWindow 讲师视角的全场最近 limit 条消息，时间正序
func (s *TranscriptService) SessionTranscriptWindow(sessionID, viewerID string, viewerRole model.UserRole, limit int) ([]model.DiscussionMessage, error) {
	session, err := s.instructorSession(sessionID, viewerID, viewerRole)
	if err != nil {
		return nil, err
	}
	msgs, err := s.msgRepo.ListRecentWindow(sessionID, limit)
	if err != nil {
		return nil, err
	}
	return s.withRefs(session, msgs)
}

func (s *TranscriptService) instructorSession(sessionID, viewerID string, viewerRole model.UserRole) (*model.DiscussionSession, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.InstructorID != viewerID && viewerRole != model.Admin {
		return nil, util.ErrPermissionDenied
	}
	return session, nil
}

func (s *TranscriptService) withRefs(session *model.DiscussionSession, msgs []model.DiscussionMessage) ([]model.DiscussionMessage, error) {
	participants, err := s.participantIndex(session.ID)
	if err != nil {
		return nil, err
	}
	s.attachRefs(session, msgs, participants, true)
	return msgs, nil
}

func (s *TranscriptService) participantIndex(sessionID string) (map[string]*model.DiscussionParticipant, error) {
	list, err := s.participantRepo.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}
	index := make(map[string]*model.DiscussionParticipant, len(list))
	for i := range list {
		index[list[i].ID] = &list[i]
	}
	return index, nil
}

// attachRefs 给消息附上参与者摘要；匿名讨论的非讲师视角只带展示名
func (s *TranscriptService) attachRefs(session *model.DiscussionSession, msgs []model.DiscussionMessage, participants map[string]*model.DiscussionParticipant, instructorView bool) {
	for i := range msgs {
		if msgs[i].ParticipantID == nil {
			continue
		}
		p, ok := participants[*msgs[i].ParticipantID]
		if !ok {
			continue
		}
		name := p.DisplayName
		if instructorView && !session.Settings.Anonymous && p.RealName != "" {
			name = p.RealName
		}
		msgs[i].Participant = &model.ParticipantRef{
			ID:          p.ID,
			DisplayName: name,
			Stance:      p.Stance,
		}
	}
}
