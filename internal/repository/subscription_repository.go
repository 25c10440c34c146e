package repository

import (
	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/util"
	"errors"

	"gorm.io/gorm"
)

type SubscriptionRepository struct {
	DB *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{DB: db}
}

func (r *SubscriptionRepository) GetPlanByID(id string) (*model.SubscriptionPlan, error) {
	var plan model.SubscriptionPlan
	err := r.DB.First(&plan, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *SubscriptionRepository) GetFreePlan() (*model.SubscriptionPlan, error) {
	var plan model.SubscriptionPlan
	err := r.DB.Where("tier = ?", 0).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetActiveByUser 查用户本人的有效订阅
func (r *SubscriptionRepository) GetActiveByUser(userID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.DB.Where("user_id = ? AND status = ?", userID, "active").
		Order("created_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActiveByOrganization 查机构订阅；机构订阅优先于个人订阅
func (r *SubscriptionRepository) GetActiveByOrganization(orgID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.DB.Where("organization_id = ? AND status = ?", orgID, "active").
		Order("created_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetMembershipOrg 返回用户已接受邀请的机构 ID；未加入任何机构时返回 ErrNotFound
func (r *SubscriptionRepository) GetMembershipOrg(userID string) (string, error) {
	var member model.OrganizationMember
	err := r.DB.Where("user_id = ? AND joined_at IS NOT NULL", userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", util.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return member.OrganizationID, nil
}
