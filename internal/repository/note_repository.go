package repository

import (
	"debate_edu_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NoteRepository struct {
	DB *gorm.DB
}

func NewNoteRepository(db *gorm.DB) *NoteRepository {
	return &NoteRepository{DB: db}
}

// Upsert 每个参与者只保留一条教师备注，重复写入时覆盖
func (r *NoteRepository) Upsert(note *model.InstructorNote) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "participant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"note", "updated_at"}),
	}).Create(note).Error
}

func (r *NoteRepository) GetByParticipant(participantID string) (*model.InstructorNote, error) {
	var note model.InstructorNote
	err := r.DB.Where("participant_id = ?", participantID).First(&note).Error
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *NoteRepository) ListBySession(sessionID string) ([]model.InstructorNote, error) {
	var list []model.InstructorNote
	err := r.DB.Where("session_id = ?", sessionID).Find(&list).Error
	return list, err
}
