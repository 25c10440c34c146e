package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/util"
)

type stubGenerator struct {
	chunks []string
	err    error
	// 非空时：started 在生成开始时关闭，release 收到信号前生成挂起
	started chan struct{}
	release chan struct{}
}

func (g *stubGenerator) StreamReply(ctx context.Context, req ReplyRequest) (<-chan string, <-chan error) {
	out := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errChan)
		if g.started != nil {
			close(g.started)
		}
		if g.release != nil {
			<-g.release
		}
		for _, chunk := range g.chunks {
			out <- chunk
		}
		if g.err != nil {
			errChan <- g.err
		}
	}()

	return out, errChan
}

func newTurnService(env *testEnv, gen ReplyGenerator) *TurnService {
	return NewTurnService(env.sessionRepo, env.participantRepo, env.msgRepo, env.hub, env.quota, gen)
}

func drain(t *testing.T, events <-chan TurnEvent) (chunks []string, done *TurnEvent, genErr error) {
	t.Helper()
	for ev := range events {
		switch {
		case ev.Err != nil:
			genErr = ev.Err
		case ev.Done:
			copied := ev
			done = &copied
		default:
			chunks = append(chunks, ev.Chunk)
		}
	}
	return chunks, done, genErr
}

func TestSubmitPersistsUserMessageAndExactlyOneReply(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	env.addParticipant(t, session.ID, "student-1")

	gen := &stubGenerator{chunks: []string{"论据一", "值得商榷，", "请给出数据来源。"}}
	turns := newTurnService(env, gen)

	events, err := turns.Submit("student-1", session.ID, "我认为 AI 评分更公平")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	chunks, done, genErr := drain(t, events)
	if genErr != nil {
		t.Fatalf("unexpected generation error: %v", genErr)
	}
	if done == nil {
		t.Fatal("expected exactly one done event")
	}
	if got, want := done.Message.Content, strings.Join(gen.chunks, ""); got != want {
		t.Fatalf("expected reply %q, got %q", want, got)
	}
	if len(chunks) != len(gen.chunks) {
		t.Fatalf("expected %d chunks, got %d", len(gen.chunks), len(chunks))
	}

	var userCount, aiCount int64
	env.db.Model(&model.DiscussionMessage{}).Where("session_id = ? AND role = ?", session.ID, model.RoleUser).Count(&userCount)
	env.db.Model(&model.DiscussionMessage{}).Where("session_id = ? AND role = ?", session.ID, model.RoleAI).Count(&aiCount)
	if userCount != 1 {
		t.Fatalf("expected 1 user message, got %d", userCount)
	}
	if aiCount != 1 {
		t.Fatalf("expected exactly 1 AI message, got %d", aiCount)
	}
}

func TestSubmitGenerationFailurePersistsNoReply(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	env.addParticipant(t, session.ID, "student-1")

	gen := &stubGenerator{chunks: []string{"部分输出"}, err: errors.New("upstream timeout")}
	turns := newTurnService(env, gen)

	events, err := turns.Submit("student-1", session.ID, "你怎么看")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, done, genErr := drain(t, events)
	if genErr == nil {
		t.Fatal("expected a terminal error event")
	}
	if done != nil {
		t.Fatal("error stream must not also emit done")
	}

	// 学生消息保留，失败的生成不落任何 AI 消息
	var userCount, aiCount int64
	env.db.Model(&model.DiscussionMessage{}).Where("session_id = ? AND role = ?", session.ID, model.RoleUser).Count(&userCount)
	env.db.Model(&model.DiscussionMessage{}).Where("session_id = ? AND role = ?", session.ID, model.RoleAI).Count(&aiCount)
	if userCount != 1 {
		t.Fatalf("expected user message to survive, got %d", userCount)
	}
	if aiCount != 0 {
		t.Fatalf("expected no AI message after failure, got %d", aiCount)
	}
}

func TestSlowConsumerStreamConcatenatesToFullReply(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	p := env.addParticipant(t, session.ID, "student-1")

	many := make([]string, turnStreamBuffer+16)
	for i := range many {
		many[i] = "字"
	}
	turns := newTurnService(env, &stubGenerator{chunks: many})

	events, err := turns.Submit("student-1", session.ID, "慢速消费")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// 先不消费，让生成写满事件缓冲，溢出片段进入余量
	for turns.Generating(p.ID) {
		time.Sleep(time.Millisecond)
	}

	var sb strings.Builder
	var done *TurnEvent
	for ev := range events {
		switch {
		case ev.Err != nil:
			t.Fatalf("unexpected generation error: %v", ev.Err)
		case ev.Done:
			copied := ev
			done = &copied
		default:
			sb.WriteString(ev.Chunk)
		}
	}
	if done == nil {
		t.Fatal("expected a done event")
	}
	if done.Tail == "" {
		t.Fatal("expected the overflowed remainder on the done event")
	}
	sb.WriteString(done.Tail)
	if sb.String() != done.Message.Content {
		t.Fatalf("concatenated stream (%d bytes) must equal persisted reply (%d bytes)",
			sb.Len(), len(done.Message.Content))
	}
}

func TestSubmitRejectsConcurrentTurnForSameParticipant(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	env.addParticipant(t, session.ID, "student-1")

	gen := &stubGenerator{
		chunks:  []string{"稍等"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	turns := newTurnService(env, gen)

	events, err := turns.Submit("student-1", session.ID, "第一条")
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	<-gen.started

	if _, err := turns.Submit("student-1", session.ID, "第二条"); !errors.Is(err, util.ErrTurnInProgress) {
		t.Fatalf("expected ErrTurnInProgress, got %v", err)
	}

	close(gen.release)
	drain(t, events)

	// 回合结束后恢复接受提交
	gen2 := &stubGenerator{chunks: []string{"好的"}}
	turns.generator = gen2
	events, err = turns.Submit("student-1", session.ID, "第三条")
	if err != nil {
		t.Fatalf("submit after release failed: %v", err)
	}
	drain(t, events)
}

func TestSubmitRequiresActiveSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	env.addParticipant(t, session.ID, "student-1")
	env.sessionRepo.Close(session.ID, time.Now())

	turns := newTurnService(env, &stubGenerator{chunks: []string{"x"}})
	if _, err := turns.Submit("student-1", session.ID, "还在吗"); !errors.Is(err, util.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}
}

func TestSubmitRejectsBlankContent(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	env.addParticipant(t, session.ID, "student-1")

	turns := newTurnService(env, &stubGenerator{chunks: []string{"x"}})
	if _, err := turns.Submit("student-1", session.ID, "   "); !errors.Is(err, util.ErrSubmitRequiresInput) {
		t.Fatalf("expected ErrSubmitRequiresInput, got %v", err)
	}
}

func TestSubmitSyncReturnsFullReply(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	env.addParticipant(t, session.ID, "student-1")

	gen := &stubGenerator{chunks: []string{"完整", "回复"}}
	turns := newTurnService(env, gen)

	msg, _, err := turns.SubmitSync("student-1", session.ID, "同步模式")
	if err != nil {
		t.Fatalf("sync submit failed: %v", err)
	}
	if msg == nil || msg.Content != "完整回复" {
		t.Fatalf("expected full reply, got %+v", msg)
	}
}

func TestSubmitReportsCapReached(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	session.Settings.MaxTurns = 1
	if err := env.sessionRepo.Update(session); err != nil {
		t.Fatalf("failed to update settings: %v", err)
	}
	env.addParticipant(t, session.ID, "student-1")

	turns := newTurnService(env, &stubGenerator{chunks: []string{"回复"}})

	_, capReached, err := turns.SubmitSync("student-1", session.ID, "第一轮")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !capReached {
		t.Fatal("expected capReached after hitting MaxTurns")
	}

	// 上限是提示性的，不阻止继续提交
	if _, _, err := turns.SubmitSync("student-1", session.ID, "第二轮"); err != nil {
		t.Fatalf("submit past cap should still succeed, got %v", err)
	}
}

func TestWaitForReplyReturnsFirstAIMessageAfterCursor(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	p := env.addParticipant(t, session.ID, "student-1")

	turns := newTurnService(env, &stubGenerator{})
	turns.pollInterval = 5 * time.Millisecond
	turns.pollAttempts = 100

	cursor := time.Now()
	go func() {
		time.Sleep(20 * time.Millisecond)
		pid := p.ID
		env.msgRepo.Create(&model.DiscussionMessage{
			SessionID:          session.ID,
			ParticipantID:      &pid,
			Role:               model.RoleAI,
			Content:            "等到了",
			IsVisibleToStudent: true,
		})
	}()

	msg, err := turns.WaitForReply(context.Background(), p.ID, cursor)
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if msg == nil || msg.Content != "等到了" {
		t.Fatalf("expected the AI reply, got %+v", msg)
	}
}

func TestWaitForReplyTimesOutQuietly(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	p := env.addParticipant(t, session.ID, "student-1")

	turns := newTurnService(env, &stubGenerator{})
	turns.pollInterval = time.Millisecond
	turns.pollAttempts = 3

	msg, err := turns.WaitForReply(context.Background(), p.ID, time.Now())
	if err != nil {
		t.Fatalf("expected quiet timeout, got %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil message on timeout, got %+v", msg)
	}
}
