package model

import "time"

// PlanFeatures 套餐功能开关
type PlanFeatures struct {
	Analytics              bool `json:"analytics"`
	Export                 bool `json:"export"`
	Reports                bool `json:"reports"`
	CustomAIModes          bool `json:"customAiModes"`
	PrioritySupport        bool `json:"prioritySupport"`
	SSO                    bool `json:"sso"`
	OrganizationManagement bool `json:"organizationManagement"`
}

// SubscriptionPlan 套餐定义；limit 为 nil 表示不限（机构版）
type SubscriptionPlan struct {
	UUIDBase
	Name                         string       `gorm:"size:50;uniqueIndex;not null" json:"name"`
	DisplayName                  string       `gorm:"size:100" json:"displayName"`
	Tier                         int          `gorm:"default:0" json:"tier"`
	MaxDiscussionsPerMonth       *int         `json:"maxDiscussionsPerMonth"`
	MaxActiveDiscussions         *int         `json:"maxActiveDiscussions"`
	MaxParticipantsPerDiscussion *int         `json:"maxParticipantsPerDiscussion"`
	Features                     PlanFeatures `gorm:"serializer:json" json:"features"`
	IsActive                     bool         `gorm:"default:true" json:"isActive"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

// Subscription 订阅行，属于个人或组织二选一
type Subscription struct {
	UUIDBase
	UserID             *string          `gorm:"size:36;index" json:"userId,omitempty"`
	OrganizationID     *string          `gorm:"size:36;index" json:"organizationId,omitempty"`
	PlanID             string           `gorm:"size:36;not null" json:"planId"`
	Plan               SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Status             string           `gorm:"size:20;default:'active';index" json:"status"`
	CurrentPeriodStart time.Time        `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time        `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool             `gorm:"default:false" json:"cancelAtPeriodEnd"`
	TrialEnd           *time.Time       `json:"trialEnd,omitempty"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

type Organization struct {
	UUIDBase
	Name string `gorm:"size:100;not null" json:"name"`
	Slug string `gorm:"size:100;uniqueIndex" json:"slug"`
}

func (Organization) TableName() string {
	return "organizations"
}

// OrganizationMember joined_at 为空表示邀请尚未接受
type OrganizationMember struct {
	UUIDBase
	OrganizationID string     `gorm:"size:36;not null;index" json:"organizationId"`
	UserID         string     `gorm:"size:36;not null;index" json:"userId"`
	Role           string     `gorm:"size:20;default:'member'" json:"role"`
	JoinedAt       *time.Time `json:"joinedAt,omitempty"`
}

func (OrganizationMember) TableName() string {
	return "organization_members"
}

// UsageRecord 每 (账号或组织, 自然月) 一行。
// 计数列只允许经由配额服务的原子自增修改，禁止直接读改写。
// 归属压进单个非空的 owner_key 列（"u:<userId>" 或 "o:<orgId>"），
// 唯一索引建在其上；可空列上的唯一索引对 NULL 行不生效。
type UsageRecord struct {
	UUIDBase
	OwnerKey           string  `gorm:"size:40;not null;uniqueIndex:idx_usage_owner_period" json:"-"`
	UserID             *string `gorm:"size:36;index" json:"userId,omitempty"`
	OrganizationID     *string `gorm:"size:36;index" json:"organizationId,omitempty"`
	PeriodStart        string  `gorm:"size:10;not null;uniqueIndex:idx_usage_owner_period" json:"periodStart"`
	PeriodEnd          string  `gorm:"size:10;not null" json:"periodEnd"`
	DiscussionsCreated int     `gorm:"default:0" json:"discussionsCreated"`
	ActiveDiscussions  int     `gorm:"default:0" json:"activeDiscussions"`
	TotalParticipants  int     `gorm:"default:0" json:"totalParticipants"`
	TotalMessages      int     `gorm:"default:0" json:"totalMessages"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}

// 用量计数列名
const (
	UsageDiscussionsCreated = "discussions_created"
	UsageActiveDiscussions  = "active_discussions"
	UsageTotalParticipants  = "total_participants"
	UsageTotalMessages      = "total_messages"
)

// UsageSnapshot 当前计费周期内的用量快照
type UsageSnapshot struct {
	DiscussionsCreatedThisMonth int `json:"discussionsCreatedThisMonth"`
	ActiveDiscussions           int `json:"activeDiscussions"`
	TotalParticipants           int `json:"totalParticipants"`
}

// SubscriptionLimits nil 表示不限
type SubscriptionLimits struct {
	MaxDiscussionsPerMonth       *int `json:"maxDiscussionsPerMonth"`
	MaxActiveDiscussions         *int `json:"maxActiveDiscussions"`
	MaxParticipantsPerDiscussion *int `json:"maxParticipantsPerDiscussion"`
}

// SubscriptionInfo 按账号聚合出的订阅视图，短 TTL 缓存
type SubscriptionInfo struct {
	PlanName         string             `json:"planName"`
	PlanDisplayName  string             `json:"planDisplayName"`
	PlanTier         int                `json:"planTier"`
	IsActive         bool               `json:"isActive"`
	IsTrial          bool               `json:"isTrial"`
	Features         PlanFeatures       `json:"features"`
	Limits           SubscriptionLimits `json:"limits"`
	Usage            UsageSnapshot      `json:"usage"`
	OrganizationID   *string            `json:"organizationId,omitempty"`
	OrganizationName string             `json:"organizationName,omitempty"`
	CurrentPeriodEnd *time.Time         `json:"currentPeriodEnd,omitempty"`
}

// LimitType 配额检查类型
type LimitType string

const (
	LimitDiscussion        LimitType = "discussion"
	LimitActiveDiscussions LimitType = "activeDiscussions"
	LimitParticipants      LimitType = "participants"
)

// LimitCheckResult limit/remaining 为 nil 表示不限
type LimitCheckResult struct {
	Allowed         bool   `json:"allowed"`
	Limit           *int   `json:"limit"`
	Current         int    `json:"current"`
	Remaining       *int   `json:"remaining"`
	UpgradeRequired bool   `json:"upgradeRequired"`
	Message         string `json:"message,omitempty"`
}
