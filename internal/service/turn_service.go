package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/util"
	"debate_edu_backend/pkg/logger"
	"debate_edu_backend/pkg/monitoring"

	"go.uber.org/zap"
)

const (
	// 送入 AI 的历史上下文条数上限
	contextWindow = 40

	// 长轮询降级：每 500ms 查一次，最多 40 次（约 20 秒）
	waitPollInterval = 500 * time.Millisecond
	waitPollAttempts = 40

	// 事件缓冲大小。缓冲只剩最后一个槽位时停止转发增量片段，
	// 保证终止事件永远写得进去，生成侧绝不因消费方阻塞。
	turnStreamBuffer = 256
)

// TurnEvent 回复生成流中的一个事件。
// Chunk 非空为增量片段；Done 或 Err 为终止事件，每条流恰好一个。
// 已下发片段加 Tail 的拼接等于完整生成内容。
type TurnEvent struct {
	Chunk   string
	Done    bool
	Err     error
	Message *model.DiscussionMessage
	// 缓冲满时未能单独下发的增量余量，随 Done 一起补发
	Tail string
	// 达到话题轮次上限时的提示，不阻止提交
	CapReached bool
}

// TurnService 管理每个参与者的回复生成回合。
// 同一参与者同一时刻至多一次生成；学生消息先落库再开始生成；
// 生成失败时不持久化任何 AI 消息。
type TurnService struct {
	sessionRepo     *repository.SessionRepository
	participantRepo *repository.ParticipantRepository
	msgRepo         *repository.MessageRepository
	hub             *SessionHub
	quota           *QuotaService
	generator       ReplyGenerator

	mu       sync.Mutex
	inFlight map[string]struct{}

	pollInterval time.Duration
	pollAttempts int
}

func NewTurnService(
	sessionRepo *repository.SessionRepository,
	participantRepo *repository.ParticipantRepository,
	msgRepo *repository.MessageRepository,
	hub *SessionHub,
	quota *QuotaService,
	generator ReplyGenerator,
) *TurnService {
	return &TurnService{
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		msgRepo:         msgRepo,
		hub:             hub,
		quota:           quota,
		generator:       generator,
		inFlight:        make(map[string]struct{}),
		pollInterval:    waitPollInterval,
		pollAttempts:    waitPollAttempts,
	}
}

// Generating 返回该参与者是否有生成中的回合
func (s *TurnService) Generating(participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[participantID]
	return ok
}

func (s *TurnService) acquire(participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[participantID]; ok {
		return false
	}
	s.inFlight[participantID] = struct{}{}
	return true
}

func (s *TurnService) release(participantID string) {
	s.mu.Lock()
	delete(s.inFlight, participantID)
	s.mu.Unlock()
}

// Submit 持久化学生消息并启动一次回复生成，返回事件流。
// 调用方必须把事件流读到关闭为止，即使客户端已断开。
func (s *TurnService) Submit(studentID, sessionID, content string) (<-chan TurnEvent, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, util.ErrSubmitRequiresInput
	}

	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionActive {
		return nil, util.ErrSessionNotActive
	}

	participant, err := s.participantRepo.GetBySessionAndStudent(sessionID, studentID)
	if err != nil {
		return nil, err
	}

	if !s.acquire(participant.ID) {
		return nil, util.ErrTurnInProgress
	}

	// 学生消息先落库；即使后续生成失败，这条消息也已经成立
	pid := participant.ID
	userMsg := &model.DiscussionMessage{
		SessionID:          sessionID,
		ParticipantID:      &pid,
		Role:               model.RoleUser,
		Content:            content,
		IsVisibleToStudent: true,
	}
	if err := s.msgRepo.Create(userMsg); err != nil {
		s.release(participant.ID)
		return nil, err
	}

	s.publishMessage("insert", userMsg)

	if err := s.participantRepo.TouchActivity(participant.ID, time.Now()); err != nil {
		logger.Log.Warn("Failed to update participant activity", zap.Error(err))
	}
	if err := s.quota.Increment(session.InstructorID, model.UsageTotalMessages, 1); err != nil {
		logger.Log.Warn("Failed to record message usage", zap.Error(err))
	}

	capReached := false
	if session.Settings.MaxTurns > 0 {
		count, err := s.msgRepo.CountByParticipantAndRole(participant.ID, model.RoleUser)
		if err == nil && count >= int64(session.Settings.MaxTurns) {
			capReached = true
		}
	}

	events := make(chan TurnEvent, turnStreamBuffer)
	go s.generate(session, participant, content, capReached, events)
	return events, nil
}

// generate 在后台执行生成。客户端断开不会中断：生成与持久化
// 必须走到终点，结果通过变更事件流补达。
func (s *TurnService) generate(session *model.DiscussionSession, participant *model.DiscussionParticipant, prompt string, capReached bool, events chan<- TurnEvent) {
	defer close(events)
	defer s.release(participant.ID)

	monitoring.GenerationGauge.Inc()
	defer monitoring.GenerationGauge.Dec()

	history, err := s.msgRepo.ListContext(participant.ID, contextWindow)
	if err != nil {
		events <- TurnEvent{Err: err}
		return
	}
	// 刚写入的学生消息单独作为 prompt 传入，从历史中去掉避免重复
	if n := len(history); n > 0 && history[n-1].Role == model.RoleUser && history[n-1].Content == prompt {
		history = history[:n-1]
	}

	chunks, errChan := s.generator.StreamReply(context.Background(), ReplyRequest{
		Session:     session,
		Participant: participant,
		History:     history,
		Prompt:      prompt,
	})

	var sb strings.Builder
	var pending strings.Builder
	for chunk := range chunks {
		sb.WriteString(chunk)
		monitoring.StreamChunkCounter.Inc()

		// 保留最后一个槽位给终止事件；消费方跟不上时先攒着，
		// 并进下一个片段或随终止事件补发，保证拼接顺序完整
		if len(events) < cap(events)-1 {
			if pending.Len() > 0 {
				chunk = pending.String() + chunk
				pending.Reset()
			}
			events <- TurnEvent{Chunk: chunk}
		} else {
			pending.WriteString(chunk)
		}
	}

	if err := <-errChan; err != nil {
		logger.Log.Error("AI reply generation failed",
			zap.String("session_id", session.ID),
			zap.String("participant_id", participant.ID),
			zap.Error(err))
		events <- TurnEvent{Err: util.ErrGenerationFailed}
		return
	}

	reply := strings.TrimSpace(sb.String())
	if reply == "" {
		events <- TurnEvent{Err: util.ErrGenerationFailed}
		return
	}

	pid := participant.ID
	aiMsg := &model.DiscussionMessage{
		SessionID:          session.ID,
		ParticipantID:      &pid,
		Role:               model.RoleAI,
		Content:            reply,
		IsVisibleToStudent: true,
	}
	if err := s.msgRepo.Create(aiMsg); err != nil {
		logger.Log.Error("Failed to persist AI reply",
			zap.String("participant_id", participant.ID), zap.Error(err))
		events <- TurnEvent{Err: err}
		return
	}

	s.publishMessage("insert", aiMsg)

	if err := s.quota.Increment(session.InstructorID, model.UsageTotalMessages, 1); err != nil {
		logger.Log.Warn("Failed to record message usage", zap.Error(err))
	}

	events <- TurnEvent{Done: true, Message: aiMsg, CapReached: capReached, Tail: pending.String()}
}

// SubmitSync 同步降级：等待生成完成后一次性返回 AI 回复
func (s *TurnService) SubmitSync(studentID, sessionID, content string) (*model.DiscussionMessage, bool, error) {
	events, err := s.Submit(studentID, sessionID, content)
	if err != nil {
		return nil, false, err
	}

	var result *model.DiscussionMessage
	var capReached bool
	var genErr error
	for ev := range events {
		switch {
		case ev.Err != nil:
			genErr = ev.Err
		case ev.Done:
			result = ev.Message
			capReached = ev.CapReached
		}
	}
	if genErr != nil {
		return nil, false, genErr
	}
	return result, capReached, nil
}

// WaitForReply 长轮询降级：轮询数据库等待 after 之后出现的第一条 AI 回复。
// 超时返回 (nil, nil)，由调用方决定重试。
func (s *TurnService) WaitForReply(ctx context.Context, participantID string, after time.Time) (*model.DiscussionMessage, error) {
	for i := 0; i < s.pollAttempts; i++ {
		msg, err := s.msgRepo.LatestAIMessageAfter(participantID, after)
		if err == nil {
			return msg, nil
		}
		if err != util.ErrNotFound {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
	return nil, nil
}

// publishMessage 把消息变更广播给订阅方，行内容规范化为 camelCase
func (s *TurnService) publishMessage(op string, msg *model.DiscussionMessage) {
	s.hub.Publish(ChangeEvent{
		Table:            "discussion_messages",
		Op:               op,
		SessionID:        msg.SessionID,
		ParticipantID:    msg.ParticipantID,
		VisibleToStudent: msg.IsVisibleToStudent,
		Row:              messageRow(msg),
	})
}

func messageRow(msg *model.DiscussionMessage) map[string]interface{} {
	row := map[string]interface{}{
		"id":                    msg.ID,
		"session_id":            msg.SessionID,
		"role":                  string(msg.Role),
		"content":               msg.Content,
		"message_type":          msg.MessageType,
		"is_visible_to_student": msg.IsVisibleToStudent,
		"created_at":            msg.CreatedAt,
	}
	if msg.ParticipantID != nil {
		row["participant_id"] = *msg.ParticipantID
	}
	if msg.Metadata != nil {
		row["metadata"] = msg.Metadata
	}
	return util.NormalizeRecord(row)
}
