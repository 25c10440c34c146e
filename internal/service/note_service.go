package service

import (
	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/util"
)

// NoteService 讲师对单个参与者的私密备注，学生不可见，后写覆盖
type NoteService struct {
	sessionRepo     *repository.SessionRepository
	participantRepo *repository.ParticipantRepository
	noteRepo        *repository.NoteRepository
	hub             *SessionHub
}

func NewNoteService(sessionRepo *repository.SessionRepository, participantRepo *repository.ParticipantRepository, noteRepo *repository.NoteRepository, hub *SessionHub) *NoteService {
	return &NoteService{
		sessionRepo:     sessionRepo,
		participantRepo: participantRepo,
		noteRepo:        noteRepo,
		hub:             hub,
	}
}

func (s *NoteService) Save(instructorID, participantID, note string) (*model.InstructorNote, error) {
	participant, err := s.participantRepo.GetByID(participantID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.GetByID(participant.SessionID)
	if err != nil {
		return nil, err
	}
	if session.InstructorID != instructorID {
		return nil, util.ErrPermissionDenied
	}

	record := &model.InstructorNote{
		SessionID:     session.ID,
		ParticipantID: participantID,
		Note:          note,
	}
	if err := s.noteRepo.Upsert(record); err != nil {
		return nil, err
	}

	s.hub.Publish(ChangeEvent{
		Table:            "instructor_notes",
		Op:               "update",
		SessionID:        session.ID,
		ParticipantID:    &participantID,
		VisibleToStudent: false,
		Row: util.NormalizeRecord(map[string]interface{}{
			"session_id":     session.ID,
			"participant_id": participantID,
			"note":           note,
		}),
	})
	return record, nil
}

func (s *NoteService) ListBySession(instructorID, sessionID string) ([]model.InstructorNote, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.InstructorID != instructorID {
		return nil, util.ErrPermissionDenied
	}
	return s.noteRepo.ListBySession(sessionID)
}
