package service

import (
	"strings"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/util"
)

// ParticipantPatch 部分更新，nil 字段不修改
type ParticipantPatch struct {
	DisplayName     *string   `json:"displayName"`
	Stance          *string   `json:"stance"`
	StanceStatement *string   `json:"stanceStatement"`
	Evidence        *[]string `json:"evidence"`
	IsSubmitted     *bool     `json:"isSubmitted"`
	NeedsHelp       *bool     `json:"needsHelp"`
	IsOnline        *bool     `json:"isOnline"`
}

type ParticipantService struct {
	sessionRepo     *repository.SessionRepository
	participantRepo *repository.ParticipantRepository
	hub             *SessionHub
}

func NewParticipantService(sessionRepo *repository.SessionRepository, participantRepo *repository.ParticipantRepository, hub *SessionHub) *ParticipantService {
	return &ParticipantService{
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		hub:             hub,
	}
}

// List 返回会话参与者名单。匿名讨论里学生视角只能看到展示名，
// 讲师始终能看到完整身份信息。
func (s *ParticipantService) List(sessionID, viewerID string, viewerRole model.UserRole) ([]model.DiscussionParticipant, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}

	list, err := s.participantRepo.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}

	isInstructor := session.InstructorID == viewerID || viewerRole == model.Admin
	if isInstructor || !session.Settings.Anonymous {
		return list, nil
	}

	// 学生视角抹掉他人真实身份，保留自己的
	for i := range list {
		if list[i].StudentID == viewerID {
			continue
		}
		list[i].RealName = ""
		list[i].StudentNumber = ""
		list[i].School = ""
	}
	return list, nil
}

// Update 参与者资料与立场更新。
// 只有参与者本人或会话讲师可以修改；isSubmitted 置位要求立场
// 和至少一条非空论据；needsHelp 首次置位时记录求助时间，之后不变。
func (s *ParticipantService) Update(participantID, actorID string, actorRole model.UserRole, patch ParticipantPatch) (*model.DiscussionParticipant, error) {
	p, err := s.participantRepo.GetByID(participantID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.GetByID(p.SessionID)
	if err != nil {
		return nil, err
	}

	isOwner := p.StudentID == actorID
	isInstructor := session.InstructorID == actorID || actorRole == model.Admin
	if !isOwner && !isInstructor {
		return nil, util.ErrPermissionDenied
	}
	if session.Status == model.SessionClosed {
		return nil, util.ErrSessionNotActive
	}

	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.Stance != nil && *patch.Stance != p.Stance {
		if p.IsSubmitted && !session.Settings.AllowStanceChange && !isInstructor {
			return nil, util.ErrPermissionDenied
		}
		p.Stance = *patch.Stance
	}
	if patch.StanceStatement != nil {
		p.StanceStatement = *patch.StanceStatement
	}
	if patch.Evidence != nil {
		p.Evidence = *patch.Evidence
	}

	if patch.IsSubmitted != nil && *patch.IsSubmitted && !p.IsSubmitted {
		if p.Stance == "" || !hasNonEmpty(p.Evidence) {
			return nil, util.ErrSubmitRequiresInput
		}
		p.IsSubmitted = true
	}

	if patch.NeedsHelp != nil {
		p.NeedsHelp = *patch.NeedsHelp
		if *patch.NeedsHelp && p.HelpRequestedAt == nil {
			now := time.Now()
			p.HelpRequestedAt = &now
		}
	}

	if patch.IsOnline != nil {
		p.IsOnline = *patch.IsOnline
	}
	p.LastActiveAt = time.Now()

	if err := s.participantRepo.Update(p); err != nil {
		return nil, err
	}

	s.hub.Publish(ChangeEvent{
		Table:            "discussion_participants",
		Op:               "update",
		SessionID:        p.SessionID,
		ParticipantID:    &p.ID,
		VisibleToStudent: true,
		Row:              participantRow(p, session.Settings.Anonymous),
	})
	return p, nil
}

// SetOnline 订阅连接建立与断开时的在线状态翻转
func (s *ParticipantService) SetOnline(participantID string, online bool) {
	p, err := s.participantRepo.GetByID(participantID)
	if err != nil {
		return
	}
	if err := s.participantRepo.SetOnline(participantID, online, time.Now()); err != nil {
		return
	}
	p.IsOnline = online

	session, err := s.sessionRepo.GetByID(p.SessionID)
	if err != nil {
		return
	}
	s.hub.Publish(ChangeEvent{
		Table:            "discussion_participants",
		Op:               "update",
		SessionID:        p.SessionID,
		ParticipantID:    &p.ID,
		VisibleToStudent: true,
		Row:              participantRow(p, session.Settings.Anonymous),
	})
}

// StanceDistribution 立场分布统计，讲师概览用
func (s *ParticipantService) StanceDistribution(sessionID string) (*model.StanceDistribution, error) {
	list, err := s.participantRepo.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}

	var dist model.StanceDistribution
	for _, p := range list {
		if !p.IsSubmitted {
			dist.Unsubmitted++
			continue
		}
		switch p.Stance {
		case model.StancePro:
			dist.Pro++
		case model.StanceCon:
			dist.Con++
		default:
			dist.Neutral++
		}
	}
	return &dist, nil
}

func hasNonEmpty(items []string) bool {
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			return true
		}
	}
	return false
}
