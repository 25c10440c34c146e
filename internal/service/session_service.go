package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/util"
	"debate_edu_backend/pkg/logger"

	"go.uber.org/zap"
)

// 加入码字符集，去掉易混淆的 0/O/1/I
const joinCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
const joinCodeLength = 6

type CreateSessionInput struct {
	Title       string                   `json:"title" binding:"required"`
	Description string                   `json:"description"`
	Settings    model.DiscussionSettings `json:"settings"`
}

type JoinSessionInput struct {
	JoinCode      string `json:"joinCode" binding:"required"`
	DisplayName   string `json:"displayName"`
	RealName      string `json:"realName"`
	StudentNumber string `json:"studentNumber"`
	School        string `json:"school"`
}

type SessionService struct {
	sessionRepo     *repository.SessionRepository
	participantRepo *repository.ParticipantRepository
	hub             *SessionHub
	quota           *QuotaService
}

func NewSessionService(sessionRepo *repository.SessionRepository, participantRepo *repository.ParticipantRepository, hub *SessionHub, quota *QuotaService) *SessionService {
	return &SessionService{
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		hub:             hub,
		quota:           quota,
	}
}

// Create 创建讨论（draft 状态）。先过本月创建数配额，通过后落库并计入用量。
func (s *SessionService) Create(instructorID string, input CreateSessionInput) (*model.DiscussionSession, error) {
	if err := s.quota.Enforce(instructorID, model.LimitDiscussion, ""); err != nil {
		return nil, err
	}

	input.Settings.StanceOptions = normalizeStanceOptions(input.Settings.StanceOptions)
	if input.Settings.AIMode == "" {
		input.Settings.AIMode = model.AIModeBalanced
	}

	code, err := s.generateJoinCode()
	if err != nil {
		return nil, err
	}

	session := &model.DiscussionSession{
		InstructorID: instructorID,
		Title:        input.Title,
		Description:  input.Description,
		Status:       model.SessionDraft,
		JoinCode:     code,
		Settings:     input.Settings,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}

	if err := s.quota.Increment(instructorID, model.UsageDiscussionsCreated, 1); err != nil {
		logger.Log.Error("Failed to record discussion usage",
			zap.String("session_id", session.ID), zap.Error(err))
	}

	return session, nil
}

// Activate 将讨论置为 active，开始接受学生加入。受同时进行数配额约束。
func (s *SessionService) Activate(instructorID, sessionID string) (*model.DiscussionSession, error) {
	session, err := s.ownedSession(instructorID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionActive {
		return session, nil
	}
	if session.Status == model.SessionClosed {
		return nil, util.ErrSessionNotActive
	}

	if err := s.quota.Enforce(instructorID, model.LimitActiveDiscussions, ""); err != nil {
		return nil, err
	}

	session.Status = model.SessionActive
	if err := s.sessionRepo.Update(session); err != nil {
		return nil, err
	}

	if err := s.quota.Increment(instructorID, model.UsageActiveDiscussions, 1); err != nil {
		logger.Log.Error("Failed to record active discussion usage",
			zap.String("session_id", session.ID), zap.Error(err))
	}

	s.publishSession("update", session)
	return session, nil
}

// Close 关闭讨论并回收 active 名额。关闭是终态，参与者与消息全部保留。
func (s *SessionService) Close(instructorID, sessionID string) (*model.DiscussionSession, error) {
	session, err := s.ownedSession(instructorID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionClosed {
		return session, nil
	}

	wasActive := session.Status == model.SessionActive
	now := time.Now()
	if err := s.sessionRepo.Close(sessionID, now); err != nil {
		return nil, err
	}
	session.Status = model.SessionClosed
	session.ClosedAt = &now

	if wasActive {
		if err := s.quota.Decrement(instructorID, model.UsageActiveDiscussions); err != nil {
			logger.Log.Error("Failed to release active discussion slot",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	s.publishSession("update", session)
	return session, nil
}

func (s *SessionService) Get(sessionID string) (*model.DiscussionSession, error) {
	return s.sessionRepo.GetByID(sessionID)
}

func (s *SessionService) ListByInstructor(instructorID string) ([]model.DiscussionSession, error) {
	return s.sessionRepo.ListByInstructor(instructorID)
}

// UpdateSettings 讲师调整话题配置（立场选项、AI 模式、轮次上限等）
func (s *SessionService) UpdateSettings(instructorID, sessionID string, settings model.DiscussionSettings) (*model.DiscussionSession, error) {
	session, err := s.ownedSession(instructorID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.SessionClosed {
		return nil, util.ErrSessionNotActive
	}

	settings.StanceOptions = normalizeStanceOptions(settings.StanceOptions)
	session.Settings = settings
	if err := s.sessionRepo.UpdateSettings(sessionID, settings); err != nil {
		return nil, err
	}

	s.publishSession("update", session)
	return session, nil
}

// Join 学生凭加入码进入讨论。(会话, 学生) 幂等：重复加入返回已有参与者。
func (s *SessionService) Join(studentID string, input JoinSessionInput) (*model.DiscussionSession, *model.DiscussionParticipant, error) {
	session, err := s.sessionRepo.GetByJoinCode(input.JoinCode)
	if err != nil {
		if err == util.ErrNotFound {
			return nil, nil, util.ErrInvalidJoinCode
		}
		return nil, nil, err
	}
	if session.Status != model.SessionActive {
		return nil, nil, util.ErrSessionNotActive
	}

	if existing, err := s.participantRepo.GetBySessionAndStudent(session.ID, studentID); err == nil {
		// 重复加入刷新资料与在线状态
		existing.IsOnline = true
		existing.LastActiveAt = time.Now()
		if input.DisplayName != "" {
			existing.DisplayName = input.DisplayName
		}
		if err := s.participantRepo.Update(existing); err != nil {
			return nil, nil, err
		}
		s.publishParticipant("update", session, existing)
		return session, existing, nil
	} else if err != util.ErrNotFound {
		return nil, nil, err
	}

	// 人数配额以讲师（所属订阅）为准
	if err := s.quota.Enforce(session.InstructorID, model.LimitParticipants, session.ID); err != nil {
		return nil, nil, err
	}

	participant := &model.DiscussionParticipant{
		SessionID:     session.ID,
		StudentID:     studentID,
		DisplayName:   input.DisplayName,
		RealName:      input.RealName,
		StudentNumber: input.StudentNumber,
		School:        input.School,
		IsOnline:      true,
		LastActiveAt:  time.Now(),
	}
	if err := s.participantRepo.Create(participant); err != nil {
		// 并发加入触发唯一索引时读回已有行
		if existing, gerr := s.participantRepo.GetBySessionAndStudent(session.ID, studentID); gerr == nil {
			return session, existing, nil
		}
		return nil, nil, err
	}

	if err := s.quota.Increment(session.InstructorID, model.UsageTotalParticipants, 1); err != nil {
		logger.Log.Error("Failed to record participant usage",
			zap.String("session_id", session.ID), zap.Error(err))
	}

	s.publishParticipant("insert", session, participant)
	return session, participant, nil
}

// normalizeStanceOptions 立场选项始终包含 pro 与 con，空列表回退默认三项。
// 讲师自定义的选项保持原有顺序，缺失的必选项补在末尾。
func normalizeStanceOptions(options []string) []string {
	if len(options) == 0 {
		return []string{model.StancePro, model.StanceCon, model.StanceNeutral}
	}
	has := make(map[string]bool, len(options))
	for _, opt := range options {
		has[opt] = true
	}
	for _, required := range []string{model.StancePro, model.StanceCon} {
		if !has[required] {
			options = append(options, required)
		}
	}
	return options
}

func (s *SessionService) ownedSession(instructorID, sessionID string) (*model.DiscussionSession, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.InstructorID != instructorID {
		return nil, util.ErrPermissionDenied
	}
	return session, nil
}

func (s *SessionService) generateJoinCode() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := randomJoinCode()
		if err != nil {
			return "", err
		}
		inUse, err := s.sessionRepo.JoinCodeInUse(code)
		if err != nil {
			return "", err
		}
		if !inUse {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to allocate unique join code")
}

func randomJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func (s *SessionService) publishSession(op string, session *model.DiscussionSession) {
	s.hub.Publish(ChangeEvent{
		Table:            "discussion_sessions",
		Op:               op,
		SessionID:        session.ID,
		VisibleToStudent: true,
		Row: util.NormalizeRecord(map[string]interface{}{
			"id":        session.ID,
			"title":     session.Title,
			"status":    string(session.Status),
			"settings":  session.Settings,
			"closed_at": session.ClosedAt,
		}),
	})
}

func (s *SessionService) publishParticipant(op string, session *model.DiscussionSession, p *model.DiscussionParticipant) {
	s.hub.Publish(ChangeEvent{
		Table:            "discussion_participants",
		Op:               op,
		SessionID:        session.ID,
		ParticipantID:    &p.ID,
		VisibleToStudent: true,
		Row:              participantRow(p, session.Settings.Anonymous),
	})
}

// participantRow 匿名讨论的事件流里不携带真实身份字段，
// 讲师端的完整名单走 REST 接口获取
func participantRow(p *model.DiscussionParticipant, anonymous bool) map[string]interface{} {
	row := map[string]interface{}{
		"id":             p.ID,
		"session_id":     p.SessionID,
		"display_name":   p.DisplayName,
		"stance":         p.Stance,
		"is_submitted":   p.IsSubmitted,
		"is_online":      p.IsOnline,
		"needs_help":     p.NeedsHelp,
		"message_count":  p.MessageCount,
		"last_active_at": p.LastActiveAt,
	}
	if !anonymous {
		row["real_name"] = p.RealName
		row["student_number"] = p.StudentNumber
		row["school"] = p.School
	}
	return util.NormalizeRecord(row)
}
