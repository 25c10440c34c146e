package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/util"
)

// ExportService 生成讨论报告并上传到对象存储。
// 报告导出是付费功能，按套餐 Features.Reports 开关。
type ExportService struct {
	sessionRepo     *repository.SessionRepository
	participantRepo *repository.ParticipantRepository
	msgRepo         *repository.MessageRepository
	pinRepo         *repository.PinRepository
	subService      *SubscriptionService
	storage         *StorageService
}

func NewExportService(
	sessionRepo *repository.SessionRepository,
	participantRepo *repository.ParticipantRepository,
	msgRepo *repository.MessageRepository,
	pinRepo *repository.PinRepository,
	subService *SubscriptionService,
	storage *StorageService,
) *ExportService {
	return &ExportService{
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		msgRepo:         msgRepo,
		pinRepo:         pinRepo,
		subService:      subService,
		storage:         storage,
	}
}

type ExportResult struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	GeneratedAt string `json:"generatedAt"`
}

// ExportReport 生成 Markdown 报告并上传，返回访问地址
func (s *ExportService) ExportReport(ctx context.Context, instructorID, sessionID string) (*ExportResult, error) {
	enabled, err := s.subService.HasFeature(instructorID, func(f model.PlanFeatures) bool { return f.Reports })
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, util.ErrFeatureNotAvailable
	}

	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.InstructorID != instructorID {
		return nil, util.ErrPermissionDenied
	}

	participants, err := s.participantRepo.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.msgRepo.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}
	pins, err := s.pinRepo.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}

	report := renderReport(session, participants, msgs, pins)
	now := time.Now()
	filename := fmt.Sprintf("reports/%s/%s.md", sessionID, now.Format("20060102-150405"))

	url, err := s.storage.Upload(ctx, filename, bytes.NewReader(report), int64(len(report)), "text/markdown; charset=utf-8")
	if err != nil {
		return nil, err
	}

	return &ExportResult{
		URL:         url,
		Filename:    filename,
		GeneratedAt: now.Format(time.RFC3339),
	}, nil
}

func renderReport(session *model.DiscussionSession, participants []model.DiscussionParticipant, msgs []model.DiscussionMessage, pins []model.PinnedQuote) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# 讨论报告：%s\n\n", session.Title)
	if session.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", session.Description)
	}
	fmt.Fprintf(&b, "- 状态：%s\n", session.Status)
	fmt.Fprintf(&b, "- 参与人数：%d\n", len(participants))
	fmt.Fprintf(&b, "- 消息总数：%d\n\n", len(msgs))

	names := make(map[string]string, len(participants))
	b.WriteString("## 参与者立场\n\n")
	for _, p := range participants {
		name := p.DisplayName
		if !session.Settings.Anonymous && p.RealName != "" {
			name = p.RealName
		}
		names[p.ID] = name
		if !p.IsSubmitted {
			fmt.Fprintf(&b, "- %s（未提交立场）\n", name)
			continue
		}
		fmt.Fprintf(&b, "- %s：%s", name, p.Stance)
		if p.StanceStatement != "" {
			fmt.Fprintf(&b, " — %s", p.StanceStatement)
		}
		b.WriteString("\n")
	}

	if len(pins) > 0 {
		b.WriteString("\n## 精选发言\n\n")
		for _, pin := range pins {
			fmt.Fprintf(&b, "> %s\n>\n> —— %s\n\n", pin.Content, pin.DisplayName)
		}
	}

	b.WriteString("\n## 完整记录\n\n")
	for _, msg := range msgs {
		speaker := string(msg.Role)
		if msg.ParticipantID != nil {
			if name, ok := names[*msg.ParticipantID]; ok && msg.Role == model.RoleUser {
				speaker = name
			}
		}
		visibility := ""
		if !msg.IsVisibleToStudent {
			visibility = "（学生不可见）"
		}
		fmt.Fprintf(&b, "**%s**%s %s\n%s\n\n",
			speaker, visibility, msg.CreatedAt.Format("15:04:05"), msg.Content)
	}

	return []byte(b.String())
}
