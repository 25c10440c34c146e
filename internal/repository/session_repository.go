package repository

import (
	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/util"
	"errors"
	"time"

	"gorm.io/gorm"
)

type SessionRepository struct {
	DB *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) Create(session *model.DiscussionSession) error {
	return r.DB.Create(session).Error
}

func (r *SessionRepository) GetByID(id string) (*model.DiscussionSession, error) {
	var session model.DiscussionSession
	err := r.DB.First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.DB.Model(&model.DiscussionParticipant{}).
		Where("session_id = ?", session.ID).
		Count(&session.ParticipantCount)

	return &session, nil
}

// GetByJoinCode 只在未关闭的会话里查找；加入码的唯一性约束仅对非 closed 会话成立
func (r *SessionRepository) GetByJoinCode(code string) (*model.DiscussionSession, error) {
	var session model.DiscussionSession
	err := r.DB.Where("join_code = ? AND status <> ?", code, model.SessionClosed).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) JoinCodeInUse(code string) (bool, error) {
	var count int64
	err := r.DB.Model(&model.DiscussionSession{}).
		Where("join_code = ? AND status <> ?", code, model.SessionClosed).
		Count(&count).Error
	return count > 0, err
}

func (r *SessionRepository) ListByInstructor(instructorID string) ([]model.DiscussionSession, error) {
	var sessions []model.DiscussionSession
	err := r.DB.Where("instructor_id = ?", instructorID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) Update(session *model.DiscussionSession) error {
	return r.DB.Save(session).Error
}

func (r *SessionRepository) UpdateSettings(id string, settings model.DiscussionSettings) error {
	return r.DB.Model(&model.DiscussionSession{}).
		Where("id = ?", id).
		Update("settings", settings).Error
}

func (r *SessionRepository) Close(id string, closedAt time.Time) error {
	return r.DB.Model(&model.DiscussionSession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    model.SessionClosed,
			"closed_at": closedAt,
		}).Error
}
