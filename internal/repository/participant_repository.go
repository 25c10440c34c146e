package repository

import (
	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/util"
	"errors"
	"time"

	"gorm.io/gorm"
)

type ParticipantRepository struct {
	DB *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{DB: db}
}

func (r *ParticipantRepository) Create(p *model.DiscussionParticipant) error {
	return r.DB.Create(p).Error
}

func (r *ParticipantRepository) GetByID(id string) (*model.DiscussionParticipant, error) {
	var p model.DiscussionParticipant
	err := r.DB.First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepository) GetBySessionAndStudent(sessionID, studentID string) (*model.DiscussionParticipant, error) {
	var p model.DiscussionParticipant
	err := r.DB.Where("session_id = ? AND student_id = ?", sessionID, studentID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepository) ListBySession(sessionID string) ([]model.DiscussionParticipant, error) {
	var list []model.DiscussionParticipant
	err := r.DB.Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *ParticipantRepository) CountBySession(sessionID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.DiscussionParticipant{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

func (r *ParticipantRepository) Update(p *model.DiscussionParticipant) error {
	return r.DB.Save(p).Error
}

// TouchActivity 消息写入后由同步层调用：原子自增消息计数并刷新活跃时间
func (r *ParticipantRepository) TouchActivity(id string, at time.Time) error {
	return r.DB.Model(&model.DiscussionParticipant{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"message_count":  gorm.Expr("message_count + 1"),
			"last_active_at": at,
		}).Error
}

func (r *ParticipantRepository) SetOnline(id string, online bool, at time.Time) error {
	return r.DB.Model(&model.DiscussionParticipant{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_online":      online,
			"last_active_at": at,
		}).Error
}
