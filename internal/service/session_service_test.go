package service

import (
	"errors"
	"testing"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/util"
)

func TestCreateSessionDeniedPastMonthlyCap(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		if _, err := env.session.Create("instructor-1", CreateSessionInput{Title: "辩题"}); err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
	}

	_, err := env.session.Create("instructor-1", CreateSessionInput{Title: "第四个"})
	var quotaErr *QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("expected quota denial on 4th create, got %v", err)
	}
	if quotaErr.LimitType != model.LimitDiscussion {
		t.Fatalf("expected discussion limit, got %s", quotaErr.LimitType)
	}
}

func TestCreateSessionFillsDefaults(t *testing.T) {
	env := newTestEnv(t)

	session, err := env.session.Create("instructor-1", CreateSessionInput{Title: "辩题"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if session.Status != model.SessionDraft {
		t.Fatalf("expected draft status, got %s", session.Status)
	}
	if len(session.JoinCode) != joinCodeLength {
		t.Fatalf("expected %d-char join code, got %q", joinCodeLength, session.JoinCode)
	}
	if len(session.Settings.StanceOptions) == 0 {
		t.Fatal("expected default stance options")
	}
	if session.Settings.AIMode != model.AIModeBalanced {
		t.Fatalf("expected balanced AI mode default, got %s", session.Settings.AIMode)
	}
}

func TestActivateEnforcesActiveCapAndCloseReleasesIt(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.session.Create("instructor-1", CreateSessionInput{Title: "第一场"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	second, err := env.session.Create("instructor-1", CreateSessionInput{Title: "第二场"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := env.session.Activate("instructor-1", first.ID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	// 免费版只允许一场进行中
	var quotaErr *QuotaExceededError
	if _, err := env.session.Activate("instructor-1", second.ID); !errors.As(err, &quotaErr) {
		t.Fatalf("expected active cap denial, got %v", err)
	}

	if _, err := env.session.Close("instructor-1", first.ID); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := env.session.Activate("instructor-1", second.ID); err != nil {
		t.Fatalf("expected activate to succeed after close, got %v", err)
	}
}

func TestActivateIsIdempotentAndClosedIsTerminal(t *testing.T) {
	env := newTestEnv(t)

	session, err := env.session.Create("instructor-1", CreateSessionInput{Title: "辩题"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := env.session.Activate("instructor-1", session.ID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	// 重复 activate 不再消耗名额
	if _, err := env.session.Activate("instructor-1", session.ID); err != nil {
		t.Fatalf("repeated activate failed: %v", err)
	}

	if _, err := env.session.Close("instructor-1", session.ID); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := env.session.Close("instructor-1", session.ID); err != nil {
		t.Fatalf("repeated close failed: %v", err)
	}
	if _, err := env.session.Activate("instructor-1", session.ID); !errors.Is(err, util.ErrSessionNotActive) {
		t.Fatalf("expected closed session to refuse activation, got %v", err)
	}
}

func TestJoinByCodeIsIdempotentPerStudent(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")

	_, p1, err := env.session.Join("student-1", JoinSessionInput{
		JoinCode:    session.JoinCode,
		DisplayName: "匿名熊猫",
		RealName:    "张三",
	})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	_, p2, err := env.session.Join("student-1", JoinSessionInput{
		JoinCode:    session.JoinCode,
		DisplayName: "改名后的熊猫",
	})
	if err != nil {
		t.Fatalf("re-join failed: %v", err)
	}
	if p2.ID != p1.ID {
		t.Fatalf("expected same participant on re-join, got %s and %s", p1.ID, p2.ID)
	}
	if p2.DisplayName != "改名后的熊猫" {
		t.Fatalf("expected re-join to refresh display name, got %q", p2.DisplayName)
	}
	if p2.RealName != "张三" {
		t.Fatalf("expected real name to persist, got %q", p2.RealName)
	}

	if count, _ := env.participantRepo.CountBySession(session.ID); count != 1 {
		t.Fatalf("expected single participant row, got %d", count)
	}
}

func TestJoinRejectsBadCodeAndInactiveSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")

	if _, _, err := env.session.Join("student-1", JoinSessionInput{JoinCode: "NOPE42"}); !errors.Is(err, util.ErrInvalidJoinCode) {
		t.Fatalf("expected ErrInvalidJoinCode, got %v", err)
	}

	// 关闭后加入码立即失效
	if _, err := env.session.Close("instructor-1", session.ID); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, _, err := env.session.Join("student-1", JoinSessionInput{JoinCode: session.JoinCode}); !errors.Is(err, util.ErrInvalidJoinCode) {
		t.Fatalf("expected closed session code to be invalid, got %v", err)
	}
}

func TestJoinCountsAgainstInstructorQuota(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")

	if _, _, err := env.session.Join("student-1", JoinSessionInput{JoinCode: session.JoinCode}); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	owner := repository.UserOwner("instructor-1")
	rec, err := env.usageRepo.Get(owner, repository.PeriodStart(time.Now()))
	if err != nil {
		t.Fatalf("failed to read usage: %v", err)
	}
	if rec.TotalParticipants != 1 {
		t.Fatalf("expected participant usage on instructor account, got %d", rec.TotalParticipants)
	}
}

func TestUpdateSettingsRequiresOwnership(t *testing.T) {
	env := newTestEnv(t)
	session := env.activeSession(t, "instructor-1")

	_, err := env.session.UpdateSettings("instructor-2", session.ID, session.Settings)
	if !errors.Is(err, util.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestStanceOptionsAlwaysKeepProAndCon(t *testing.T) {
	env := newTestEnv(t)

	// 自定义选项缺 pro/con 时补齐，原有顺序保留
	session, err := env.session.Create("instructor-1", CreateSessionInput{
		Title:    "辩题",
		Settings: model.DiscussionSettings{StanceOptions: []string{"undecided"}},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if got := session.Settings.StanceOptions; len(got) != 3 || got[0] != "undecided" {
		t.Fatalf("expected custom option kept first, got %v", got)
	}
	assertContains(t, session.Settings.StanceOptions, model.StancePro)
	assertContains(t, session.Settings.StanceOptions, model.StanceCon)

	settings := session.Settings
	settings.StanceOptions = []string{model.StancePro, "maybe"}
	updated, err := env.session.UpdateSettings("instructor-1", session.ID, settings)
	if err != nil {
		t.Fatalf("update settings failed: %v", err)
	}
	assertContains(t, updated.Settings.StanceOptions, model.StanceCon)
}

func assertContains(t *testing.T, options []string, want string) {
	t.Helper()
	for _, opt := range options {
		if opt == want {
			return
		}
	}
	t.Fatalf("expected %q in %v", want, options)
}
