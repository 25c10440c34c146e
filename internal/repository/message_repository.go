package repository

import (
	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/util"
	"errors"
	"time"

	"gorm.io/gorm"
)

type MessageRepository struct {
	DB *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{DB: db}
}

func (r *MessageRepository) Create(msg *model.DiscussionMessage) error {
	return r.DB.Create(msg).Error
}

func (r *MessageRepository) GetByID(id string) (*model.DiscussionMessage, error) {
	var msg model.DiscussionMessage
	err := r.DB.First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListByParticipant 返回某参与者的完整对话线；visibleOnly 时过滤掉
// 对学生隐藏的消息（教师旁注等）
func (r *MessageRepository) ListByParticipant(participantID string, visibleOnly bool) ([]model.DiscussionMessage, error) {
	query := r.DB.Where("participant_id = ?", participantID)
	if visibleOnly {
		query = query.Where("is_visible_to_student = ?", true)
	}
	var list []model.DiscussionMessage
	err := query.Order("created_at ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *MessageRepository) ListBySession(sessionID string) ([]model.DiscussionMessage, error) {
	var list []model.DiscussionMessage
	err := r.DB.Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	return list, err
}

// ListRecentWindow 会话内最近 limit 条消息，结果翻回时间正序
func (r *MessageRepository) ListRecentWindow(sessionID string, limit int) ([]model.DiscussionMessage, error) {
	var list []model.DiscussionMessage
	err := r.DB.Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (r *MessageRepository) ListRecentBySession(sessionID string, since time.Time) ([]model.DiscussionMessage, error) {
	var list []model.DiscussionMessage
	err := r.DB.Where("session_id = ? AND created_at >= ?", sessionID, since).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	return list, err
}

// ListContext 返回送入 AI 的对话上下文：对学生隐藏的教师引导消息也包含在内
func (r *MessageRepository) ListContext(participantID string, limit int) ([]model.DiscussionMessage, error) {
	var list []model.DiscussionMessage
	err := r.DB.Where("participant_id = ?", participantID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	// 倒序取最近 N 条后翻回时间正序
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// LatestAIMessageAfter 长轮询降级路径：查最早一条晚于游标的 AI 回复
func (r *MessageRepository) LatestAIMessageAfter(participantID string, after time.Time) (*model.DiscussionMessage, error) {
	var msg model.DiscussionMessage
	err := r.DB.Where("participant_id = ? AND role = ? AND created_at > ?",
		participantID, model.RoleAI, after).
		Order("created_at ASC, id ASC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepository) CountByParticipantAndRole(participantID string, role model.MessageRole) (int64, error) {
	var count int64
	err := r.DB.Model(&model.DiscussionMessage{}).
		Where("participant_id = ? AND role = ?", participantID, role).
		Count(&count).Error
	return count, err
}
