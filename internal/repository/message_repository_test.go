package repository

import (
	"errors"
	"testing"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/util"
)

func seedThread(t *testing.T, repo *MessageRepository, sessionID, participantID string) []*model.DiscussionMessage {
	t.Helper()

	base := time.Now().Add(-time.Minute)
	pid := participantID
	msgs := []*model.DiscussionMessage{
		{SessionID: sessionID, ParticipantID: &pid, Role: model.RoleUser, Content: "学生发言一", IsVisibleToStudent: true},
		{SessionID: sessionID, ParticipantID: &pid, Role: model.RoleAI, Content: "AI 回复一", IsVisibleToStudent: true},
		{SessionID: sessionID, ParticipantID: &pid, Role: model.RoleInstructor, Content: "隐藏引导", IsVisibleToStudent: false},
		{SessionID: sessionID, ParticipantID: &pid, Role: model.RoleUser, Content: "学生发言二", IsVisibleToStudent: true},
	}
	for i, msg := range msgs {
		msg.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := repo.Create(msg); err != nil {
			t.Fatalf("failed to seed message %d: %v", i, err)
		}
	}
	return msgs
}

func TestListByParticipantFiltersHiddenMessages(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	seedThread(t, repo, "s1", "p1")

	visible, err := repo.ListByParticipant("p1", true)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(visible) != 3 {
		t.Fatalf("expected 3 visible messages, got %d", len(visible))
	}
	for _, m := range visible {
		if !m.IsVisibleToStudent {
			t.Fatal("hidden message leaked into visible listing")
		}
	}

	all, err := repo.ListByParticipant("p1", false)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 messages total, got %d", len(all))
	}
}

func TestListContextIncludesHiddenAndKeepsOrder(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	seeded := seedThread(t, repo, "s1", "p1")

	ctx, err := repo.ListContext("p1", 40)
	if err != nil {
		t.Fatalf("context failed: %v", err)
	}
	if len(ctx) != len(seeded) {
		t.Fatalf("expected full context %d, got %d", len(seeded), len(ctx))
	}
	for i := range ctx {
		if ctx[i].Content != seeded[i].Content {
			t.Fatalf("expected chronological order, got %q at %d", ctx[i].Content, i)
		}
	}
}

func TestListContextWindowKeepsMostRecent(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	seeded := seedThread(t, repo, "s1", "p1")

	ctx, err := repo.ListContext("p1", 2)
	if err != nil {
		t.Fatalf("context failed: %v", err)
	}
	if len(ctx) != 2 {
		t.Fatalf("expected window of 2, got %d", len(ctx))
	}
	// 窗口裁剪掉最旧的，保留的仍按时间正序
	if ctx[0].Content != seeded[2].Content || ctx[1].Content != seeded[3].Content {
		t.Fatalf("expected the two most recent messages, got %q, %q", ctx[0].Content, ctx[1].Content)
	}
}

func TestListRecentWindowReversesToChronological(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	seeded := seedThread(t, repo, "s1", "p1")

	window, err := repo.ListRecentWindow("s1", 2)
	if err != nil {
		t.Fatalf("window failed: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("expected window of 2, got %d", len(window))
	}
	if window[0].Content != seeded[2].Content || window[1].Content != seeded[3].Content {
		t.Fatalf("expected the two most recent messages in order, got %q, %q",
			window[0].Content, window[1].Content)
	}

	// limit 大于总量时退化为全量
	all, err := repo.ListRecentWindow("s1", 100)
	if err != nil {
		t.Fatalf("window failed: %v", err)
	}
	if len(all) != len(seeded) {
		t.Fatalf("expected all %d messages, got %d", len(seeded), len(all))
	}
}

func TestLatestAIMessageAfterCursor(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	seeded := seedThread(t, repo, "s1", "p1")

	// 游标在第一条 AI 回复之前
	cursor := seeded[0].CreatedAt
	msg, err := repo.LatestAIMessageAfter("p1", cursor)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if msg.Content != "AI 回复一" {
		t.Fatalf("expected first AI reply after cursor, got %q", msg.Content)
	}

	// 游标之后没有 AI 回复
	if _, err := repo.LatestAIMessageAfter("p1", seeded[3].CreatedAt); !errors.Is(err, util.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCountByParticipantAndRole(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	seedThread(t, repo, "s1", "p1")

	count, err := repo.CountByParticipantAndRole("p1", model.RoleUser)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 user messages, got %d", count)
	}
}
