package service

import (
	"errors"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/util"
	"debate_edu_backend/pkg/cache"
	"debate_edu_backend/pkg/logger"

	"go.uber.org/zap"
)

const (
	subscriptionCacheTTL = 30 * time.Second
	freePlanCacheTTL     = 5 * time.Minute
	freePlanCacheKey     = "plan:free"
)

// 免费档兜底限额；套餐表未初始化时仍能做配额判断
var (
	defaultFreeDiscussions  = 3
	defaultFreeActive       = 1
	defaultFreeParticipants = 30
)

type SubscriptionService struct {
	subRepo   *repository.SubscriptionRepository
	usageRepo *repository.UsageRepository
	cache     *cache.Cache
	now       func() time.Time
}

func NewSubscriptionService(subRepo *repository.SubscriptionRepository, usageRepo *repository.UsageRepository, c *cache.Cache) *SubscriptionService {
	return &SubscriptionService{
		subRepo:   subRepo,
		usageRepo: usageRepo,
		cache:     c,
		now:       time.Now,
	}
}

// resolved 一次订阅解析的结果，整体进缓存
type resolved struct {
	Plan  *model.SubscriptionPlan
	Sub   *model.Subscription
	Owner repository.UsageOwner
}

// Resolve 解析用户生效的订阅：已加入组织时组织订阅优先于个人订阅，
// 两者都没有时落到免费档。结果缓存 30 秒，写路径负责失效。
func (s *SubscriptionService) Resolve(userID string) (*resolved, error) {
	cacheKey := "sub:" + userID
	if v, ok := s.cache.Get(cacheKey); ok {
		return v.(*resolved), nil
	}

	res, err := s.resolveUncached(userID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(cacheKey, res, subscriptionCacheTTL)
	return res, nil
}

func (s *SubscriptionService) resolveUncached(userID string) (*resolved, error) {
	if orgID, err := s.subRepo.GetMembershipOrg(userID); err == nil {
		if sub, err := s.subRepo.GetActiveByOrganization(orgID); err == nil {
			plan, err := s.subRepo.GetPlanByID(sub.PlanID)
			if err != nil {
				return nil, err
			}
			return &resolved{Plan: plan, Sub: sub, Owner: repository.OrgOwner(orgID)}, nil
		} else if !errors.Is(err, util.ErrNotFound) {
			return nil, err
		}
	} else if !errors.Is(err, util.ErrNotFound) {
		return nil, err
	}

	if sub, err := s.subRepo.GetActiveByUser(userID); err == nil {
		plan, err := s.subRepo.GetPlanByID(sub.PlanID)
		if err != nil {
			return nil, err
		}
		return &resolved{Plan: plan, Sub: sub, Owner: repository.UserOwner(userID)}, nil
	} else if !errors.Is(err, util.ErrNotFound) {
		return nil, err
	}

	plan, err := s.freePlan()
	if err != nil {
		return nil, err
	}
	return &resolved{Plan: plan, Owner: repository.UserOwner(userID)}, nil
}

// freePlan 免费档定义全局共享，单独用更长的 TTL 缓存
func (s *SubscriptionService) freePlan() (*model.SubscriptionPlan, error) {
	if v, ok := s.cache.Get(freePlanCacheKey); ok {
		return v.(*model.SubscriptionPlan), nil
	}

	plan, err := s.subRepo.GetFreePlan()
	if errors.Is(err, util.ErrNotFound) {
		logger.Log.Warn("Free plan not seeded, using built-in defaults")
		plan = &model.SubscriptionPlan{
			Name:                         "free",
			DisplayName:                  "免费版",
			Tier:                         0,
			MaxDiscussionsPerMonth:       &defaultFreeDiscussions,
			MaxActiveDiscussions:         &defaultFreeActive,
			MaxParticipantsPerDiscussion: &defaultFreeParticipants,
			IsActive:                     true,
		}
	} else if err != nil {
		return nil, err
	}

	s.cache.Set(freePlanCacheKey, plan, freePlanCacheTTL)
	return plan, nil
}

// Invalidate 用量或订阅变更后使该用户的解析缓存失效
func (s *SubscriptionService) Invalidate(userID string) {
	s.cache.Delete("sub:" + userID)
}

// GetInfo 组装订阅视图：套餐、限额和当前周期用量
func (s *SubscriptionService) GetInfo(userID string) (*model.SubscriptionInfo, error) {
	res, err := s.Resolve(userID)
	if err != nil {
		return nil, err
	}

	info := &model.SubscriptionInfo{
		PlanName:        res.Plan.Name,
		PlanDisplayName: res.Plan.DisplayName,
		PlanTier:        res.Plan.Tier,
		IsActive:        true,
		Features:        res.Plan.Features,
		Limits: model.SubscriptionLimits{
			MaxDiscussionsPerMonth:       res.Plan.MaxDiscussionsPerMonth,
			MaxActiveDiscussions:         res.Plan.MaxActiveDiscussions,
			MaxParticipantsPerDiscussion: res.Plan.MaxParticipantsPerDiscussion,
		},
	}

	if res.Sub != nil {
		info.IsTrial = res.Sub.TrialEnd != nil && res.Sub.TrialEnd.After(s.now())
		end := res.Sub.CurrentPeriodEnd
		info.CurrentPeriodEnd = &end
		info.OrganizationID = res.Sub.OrganizationID
	}

	period := repository.PeriodStart(s.now())
	usage, err := s.usageRepo.Get(res.Owner, period)
	if err == nil {
		info.Usage = model.UsageSnapshot{
			DiscussionsCreatedThisMonth: usage.DiscussionsCreated,
			ActiveDiscussions:           usage.ActiveDiscussions,
			TotalParticipants:           usage.TotalParticipants,
		}
	} else {
		// 本周期还没有用量行，按零用量返回
		logger.Log.Debug("No usage record for current period",
			zap.String("user_id", userID), zap.String("period", period))
	}

	return info, nil
}

// HasFeature 功能开关检查（报告导出等付费功能）
func (s *SubscriptionService) HasFeature(userID string, pick func(model.PlanFeatures) bool) (bool, error) {
	res, err := s.Resolve(userID)
	if err != nil {
		return false, err
	}
	return pick(res.Plan.Features), nil
}
