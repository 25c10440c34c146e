package model

import (
	"time"
)

type DiscussionStatus string

const (
	SessionDraft  DiscussionStatus = "draft"
	SessionActive DiscussionStatus = "active"
	SessionClosed DiscussionStatus = "closed"
)

type MessageRole string

const (
	RoleUser       MessageRole = "user"
	RoleAI         MessageRole = "ai"
	RoleInstructor MessageRole = "instructor"
	RoleSystem     MessageRole = "system"
)

// AI 引导模式
const (
	AIModeSocratic = "socratic"
	AIModeDebate   = "debate"
	AIModeBalanced = "balanced"
	AIModeMinimal  = "minimal"
)

const (
	StancePro     = "pro"
	StanceCon     = "con"
	StanceNeutral = "neutral"
)

// DiscussionSettings 话题配置，整体以 JSON 存储在会话行内
type DiscussionSettings struct {
	Anonymous         bool              `json:"anonymous"`
	StanceOptions     []string          `json:"stanceOptions"`
	StanceLabels      map[string]string `json:"stanceLabels,omitempty"`
	AllowStanceChange bool              `json:"allowStanceChange"`
	AIMode            string            `json:"aiMode,omitempty"`
	MaxTurns          int               `json:"maxTurns,omitempty"` // 0 表示不限
	EndTime           *time.Time        `json:"endTime,omitempty"`
}

// DiscussionSession 一次讨论话题实例
type DiscussionSession struct {
	UUIDBase
	InstructorID   string             `gorm:"size:36;index;not null" json:"instructorId"`
	OrganizationID *string            `gorm:"size:36;index" json:"organizationId,omitempty"`
	Title          string             `gorm:"size:255;not null" json:"title"`
	Description    string             `gorm:"type:text" json:"description,omitempty"`
	Status         DiscussionStatus   `gorm:"size:10;default:'draft';index" json:"status"`
	JoinCode       string             `gorm:"size:10;index" json:"joinCode"`
	Settings       DiscussionSettings `gorm:"serializer:json" json:"settings"`
	ClosedAt       *time.Time         `json:"closedAt,omitempty"`

	// 动态字段，由查询时填充
	ParticipantCount int64 `gorm:"-" json:"participantCount,omitempty"`
}

func (DiscussionSession) TableName() string {
	return "discussion_sessions"
}

// DiscussionParticipant 每个 (会话, 学生) 对应一行，首次加入时创建；
// 会话关闭而不是删除参与者
type DiscussionParticipant struct {
	UUIDBase
	SessionID       string     `gorm:"size:36;not null;uniqueIndex:idx_session_student" json:"sessionId"`
	StudentID       string     `gorm:"size:36;not null;uniqueIndex:idx_session_student" json:"studentId"`
	DisplayName     string     `gorm:"size:100" json:"displayName,omitempty"`
	RealName        string     `gorm:"size:100" json:"realName,omitempty"`
	StudentNumber   string     `gorm:"size:50" json:"studentNumber,omitempty"`
	School          string     `gorm:"size:100" json:"school,omitempty"`
	Stance          string     `gorm:"size:50" json:"stance,omitempty"`
	StanceStatement string     `gorm:"type:text" json:"stanceStatement,omitempty"`
	Evidence        []string   `gorm:"serializer:json" json:"evidence,omitempty"`
	IsSubmitted     bool       `gorm:"default:false" json:"isSubmitted"`
	IsOnline        bool       `gorm:"default:false" json:"isOnline"`
	LastActiveAt    time.Time  `json:"lastActiveAt"`
	NeedsHelp       bool       `gorm:"default:false" json:"needsHelp"`
	HelpRequestedAt *time.Time `json:"helpRequestedAt,omitempty"` // 首次求助时间，不清除
	MessageCount    int        `gorm:"default:0" json:"messageCount"`
}

func (DiscussionParticipant) TableName() string {
	return "discussion_participants"
}

// ParticipantRef 消息里附带的参与者摘要
type ParticipantRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Stance      string `json:"stance,omitempty"`
}

// DiscussionMessage 仅追加；创建后不可变，
// participant_id 为空表示面向整个会话的系统消息
type DiscussionMessage struct {
	UUIDBase
	SessionID          string                 `gorm:"size:36;not null;index:idx_msg_session_created" json:"sessionId"`
	CreatedAt          time.Time              `gorm:"index:idx_msg_session_created" json:"createdAt"`
	ParticipantID      *string                `gorm:"size:36;index" json:"participantId,omitempty"`
	Role               MessageRole            `gorm:"size:20;not null" json:"role"`
	Content            string                 `gorm:"type:text;not null" json:"content"`
	MessageType        string                 `gorm:"size:50" json:"messageType,omitempty"`
	IsVisibleToStudent bool                   `gorm:"default:true" json:"isVisibleToStudent"`
	Metadata           map[string]interface{} `gorm:"serializer:json" json:"metadata,omitempty"`

	Participant *ParticipantRef `gorm:"-" json:"participant,omitempty"`
}

func (DiscussionMessage) TableName() string {
	return "discussion_messages"
}

// PinnedQuote 指向已有学生发言的摘录，仅保存回引，不复制消息生命周期
type PinnedQuote struct {
	UUIDBase
	SessionID     string  `gorm:"size:36;not null;index" json:"sessionId"`
	MessageID     string  `gorm:"size:36;not null" json:"messageId"`
	ParticipantID *string `gorm:"size:36" json:"participantId,omitempty"`
	Content       string  `gorm:"type:text" json:"content"`
	DisplayName   string  `gorm:"size:100" json:"displayName,omitempty"`
	SortOrder     int     `gorm:"default:0" json:"sortOrder"`
}

func (PinnedQuote) TableName() string {
	return "pinned_quotes"
}

// InstructorNote 每个参与者一条，后写覆盖，学生不可见
type InstructorNote struct {
	UUIDBase
	SessionID     string `gorm:"size:36;not null;index" json:"sessionId"`
	ParticipantID string `gorm:"size:36;not null;uniqueIndex" json:"participantId"`
	Note          string `gorm:"type:text" json:"note"`
}

func (InstructorNote) TableName() string {
	return "instructor_notes"
}

// TopicCluster 讲师概览用的话题聚类，由 ActivityService 异步重算
type TopicCluster struct {
	ID               string   `json:"id"`
	Label            string   `json:"label"`
	Keywords         []string `json:"keywords"`
	ParticipantCount int      `json:"participantCount"`
	SampleEvidence   string   `json:"sampleEvidence,omitempty"`
	ParticipantIDs   []string `json:"participantIds"`
}

// ActivityStats 每分钟消息数统计
type ActivityStats struct {
	MessagesPerMinute []int       `json:"messagesPerMinute"`
	Timestamps        []time.Time `json:"timestamps"`
	TotalMessages     int64       `json:"totalMessages"`
}

// StanceDistribution 立场分布
type StanceDistribution struct {
	Pro         int `json:"pro"`
	Con         int `json:"con"`
	Neutral     int `json:"neutral"`
	Unsubmitted int `json:"unsubmitted"`
}
