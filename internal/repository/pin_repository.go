package repository

import (
	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/util"
	"errors"

	"gorm.io/gorm"
)

type PinRepository struct {
	DB *gorm.DB
}

func NewPinRepository(db *gorm.DB) *PinRepository {
	return &PinRepository{DB: db}
}

func (r *PinRepository) Create(pin *model.PinnedQuote) error {
	return r.DB.Create(pin).Error
}

func (r *PinRepository) GetByID(id string) (*model.PinnedQuote, error) {
	var pin model.PinnedQuote
	err := r.DB.First(&pin, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pin, nil
}

func (r *PinRepository) GetBySessionAndMessage(sessionID, messageID string) (*model.PinnedQuote, error) {
	var pin model.PinnedQuote
	err := r.DB.Where("session_id = ? AND message_id = ?", sessionID, messageID).
		First(&pin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pin, nil
}

func (r *PinRepository) ListBySession(sessionID string) ([]model.PinnedQuote, error) {
	var list []model.PinnedQuote
	err := r.DB.Where("session_id = ?", sessionID).
		Order("sort_order ASC, created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *PinRepository) Delete(id string) error {
	return r.DB.Delete(&model.PinnedQuote{}, "id = ?", id).Error
}
