package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/pkg/cache"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.Organization{},
		&model.OrganizationMember{},
		&model.SubscriptionPlan{},
		&model.Subscription{},
		&model.UsageRecord{},
		&model.DiscussionSession{},
		&model.DiscussionParticipant{},
		&model.DiscussionMessage{},
		&model.PinnedQuote{},
		&model.InstructorNote{},
	)
	if err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

// testEnv 一套完整的服务栈，跑在内存 SQLite 上，不接 Redis
type testEnv struct {
	db *gorm.DB

	sessionRepo     *repository.SessionRepository
	participantRepo *repository.ParticipantRepository
	msgRepo         *repository.MessageRepository
	pinRepo         *repository.PinRepository
	noteRepo        *repository.NoteRepository
	usageRepo       *repository.UsageRepository

	hub          *SessionHub
	subscription *SubscriptionService
	quota        *QuotaService
	session      *SessionService
	participant  *ParticipantService
	transcript   *TranscriptService
	intervention *InterventionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)

	env := &testEnv{
		db:              db,
		sessionRepo:     repository.NewSessionRepository(db),
		participantRepo: repository.NewParticipantRepository(db),
		msgRepo:         repository.NewMessageRepository(db),
		pinRepo:         repository.NewPinRepository(db),
		noteRepo:        repository.NewNoteRepository(db),
		usageRepo:       repository.NewUsageRepository(db),
	}

	env.hub = NewSessionHub(nil)
	env.subscription = NewSubscriptionService(repository.NewSubscriptionRepository(db), env.usageRepo, cache.NewWithClock(time.Now))
	env.quota = NewQuotaService(env.subscription, env.usageRepo, env.participantRepo)
	env.session = NewSessionService(env.sessionRepo, env.participantRepo, env.hub, env.quota)
	env.participant = NewParticipantService(env.sessionRepo, env.participantRepo, env.hub)
	env.transcript = NewTranscriptService(env.sessionRepo, env.participantRepo, env.msgRepo)
	env.intervention = NewInterventionService(env.sessionRepo, env.participantRepo, env.msgRepo, env.hub)
	return env
}

// activeSession 建好一个 active 会话和一名已加入的参与者
func (env *testEnv) activeSession(t *testing.T, instructorID string) *model.DiscussionSession {
	t.Helper()
	session := &model.DiscussionSession{
		InstructorID: instructorID,
		Title:        "人工智能是否应该参与课堂评分",
		Status:       model.SessionActive,
		JoinCode:     "TEST" + model.GenerateUUID()[:4],
		Settings: model.DiscussionSettings{
			StanceOptions: []string{model.StancePro, model.StanceCon, model.StanceNeutral},
			AIMode:        model.AIModeBalanced,
		},
	}
	if err := env.sessionRepo.Create(session); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return session
}

func (env *testEnv) addParticipant(t *testing.T, sessionID, studentID string) *model.DiscussionParticipant {
	t.Helper()
	p := &model.DiscussionParticipant{
		SessionID:    sessionID,
		StudentID:    studentID,
		DisplayName:  "参与者-" + studentID,
		LastActiveAt: time.Now(),
	}
	if err := env.participantRepo.Create(p); err != nil {
		t.Fatalf("failed to create participant: %v", err)
	}
	return p
}
