package service

import (
	"errors"
	"testing"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/util"
)

func TestGuidanceHiddenFromStudentButInAIContext(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	p := env.addParticipant(t, session.ID, "student-1")

	msg, err := env.intervention.Intervene("instructor-1", session.ID, InterventionInput{
		ParticipantID: p.ID,
		Type:          InterventionGuidance,
		Content:       "引导学生关注数据隐私的反例",
	})
	if err != nil {
		t.Fatalf("guidance failed: %v", err)
	}
	if msg.IsVisibleToStudent {
		t.Fatal("guidance must be hidden from the student")
	}
	if msg.Role != model.RoleInstructor {
		t.Fatalf("expected instructor role, got %s", msg.Role)
	}

	// 学生对话线看不到引导
	thread, err := env.transcript.ParticipantThread(p.ID, "student-1", model.Student)
	if err != nil {
		t.Fatalf("thread failed: %v", err)
	}
	for _, m := range thread {
		if m.ID == msg.ID {
			t.Fatal("hidden guidance leaked into student thread")
		}
	}

	// 讲师视角能看到
	instructorThread, err := env.transcript.ParticipantThread(p.ID, "instructor-1", model.Instructor)
	if err != nil {
		t.Fatalf("instructor thread failed: %v", err)
	}
	found := false
	for _, m := range instructorThread {
		if m.ID == msg.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("guidance missing from instructor view")
	}

	// AI 上下文包含隐藏引导
	ctx, err := env.msgRepo.ListContext(p.ID, 40)
	if err != nil {
		t.Fatalf("context failed: %v", err)
	}
	found = false
	for _, m := range ctx {
		if m.ID == msg.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("guidance missing from AI context window")
	}
}

func TestInstructorMessageVisibleToStudent(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	p := env.addParticipant(t, session.ID, "student-1")

	msg, err := env.intervention.Intervene("instructor-1", session.ID, InterventionInput{
		ParticipantID: p.ID,
		Type:          InterventionMessage,
		Content:       "这个论据可以再展开一些",
	})
	if err != nil {
		t.Fatalf("message failed: %v", err)
	}
	if !msg.IsVisibleToStudent {
		t.Fatal("direct instructor message must be visible")
	}

	thread, err := env.transcript.ParticipantThread(p.ID, "student-1", model.Student)
	if err != nil {
		t.Fatalf("thread failed: %v", err)
	}
	found := false
	for _, m := range thread {
		if m.ID == msg.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("instructor message missing from student thread")
	}
}

func TestBroadcastIsSessionWideSystemMessage(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")

	msg, err := env.intervention.Intervene("instructor-1", session.ID, InterventionInput{
		Type:    InterventionBroadcast,
		Content: "还有五分钟进入总结环节",
	})
	if err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	if msg.ParticipantID != nil {
		t.Fatal("broadcast must not target a participant")
	}
	if msg.Role != model.RoleSystem {
		t.Fatalf("expected system role, got %s", msg.Role)
	}
	if !msg.IsVisibleToStudent {
		t.Fatal("broadcast must be visible to students")
	}
}

func TestInterventionMessageTypeTagDefaultsToType(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	p := env.addParticipant(t, session.ID, "student-1")

	plain, err := env.intervention.Intervene("instructor-1", session.ID, InterventionInput{
		ParticipantID: p.ID,
		Type:          InterventionMessage,
		Content:       "补充一下你的论据",
	})
	if err != nil {
		t.Fatalf("message failed: %v", err)
	}
	if plain.MessageType != InterventionMessage {
		t.Fatalf("expected default tag %q, got %q", InterventionMessage, plain.MessageType)
	}

	tagged, err := env.intervention.Intervene("instructor-1", session.ID, InterventionInput{
		ParticipantID: p.ID,
		Type:          InterventionGuidance,
		MessageType:   "nudge",
		Content:       "提醒学生回到辩题本身",
	})
	if err != nil {
		t.Fatalf("guidance failed: %v", err)
	}
	if tagged.MessageType != "nudge" {
		t.Fatalf("expected custom tag persisted, got %q", tagged.MessageType)
	}
	if tagged.IsVisibleToStudent {
		t.Fatal("custom tag must not change guidance visibility")
	}
}

func TestInterveneRequiresOwnershipAndOpenSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	p := env.addParticipant(t, session.ID, "student-1")

	input := InterventionInput{
		ParticipantID: p.ID,
		Type:          InterventionMessage,
		Content:       "你好",
	}

	if _, err := env.intervention.Intervene("instructor-2", session.ID, input); !errors.Is(err, util.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	if _, err := env.session.Close("instructor-1", session.ID); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := env.intervention.Intervene("instructor-1", session.ID, input); !errors.Is(err, util.ErrSessionNotActive) {
		t.Fatalf("expected ErrSessionNotActive, got %v", err)
	}
}

func TestInterveneRejectsCrossSessionParticipant(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")
	other := env.activeSession(t, "instructor-1")
	stranger := env.addParticipant(t, other.ID, "student-9")

	_, err := env.intervention.Intervene("instructor-1", session.ID, InterventionInput{
		ParticipantID: stranger.ID,
		Type:          InterventionGuidance,
		Content:       "引导",
	})
	if !errors.Is(err, util.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign participant, got %v", err)
	}
}
