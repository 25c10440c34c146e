package service

import (
	"errors"
	"fmt"
	"time"

	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/pkg/monitoring"

	"gorm.io/gorm"
)

// QuotaExceededError 携带结构化检查结果的配额错误，
// 控制器据此返回升级提示而不是笼统的 403
type QuotaExceededError struct {
	LimitType model.LimitType
	Result    model.LimitCheckResult
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %s", e.LimitType, e.Result.Message)
}

type QuotaService struct {
	subService      *SubscriptionService
	usageRepo       *repository.UsageRepository
	participantRepo *repository.ParticipantRepository
	now             func() time.Time
}

func NewQuotaService(subService *SubscriptionService, usageRepo *repository.UsageRepository, participantRepo *repository.ParticipantRepository) *QuotaService {
	return &QuotaService{
		subService:      subService,
		usageRepo:       usageRepo,
		participantRepo: participantRepo,
		now:             time.Now,
	}
}

// CheckLimit 判定某类动作是否还在限额内。limit 为 nil 表示不限。
// sessionID 仅 participants 检查需要。
func (s *QuotaService) CheckLimit(userID string, limitType model.LimitType, sessionID string) (model.LimitCheckResult, error) {
	res, err := s.subService.Resolve(userID)
	if err != nil {
		return model.LimitCheckResult{}, err
	}
	return s.CheckLimitWith(res, limitType, sessionID)
}

// CheckLimitWith 复用调用方已解析好的订阅快照，
// 同一请求内做多项检查时不重复走解析与缓存
func (s *QuotaService) CheckLimitWith(res *resolved, limitType model.LimitType, sessionID string) (model.LimitCheckResult, error) {
	var err error
	var limit *int
	var current int

	switch limitType {
	case model.LimitDiscussion:
		limit = res.Plan.MaxDiscussionsPerMonth
		current, err = s.usageCount(res.Owner, model.UsageDiscussionsCreated)
	case model.LimitActiveDiscussions:
		limit = res.Plan.MaxActiveDiscussions
		current, err = s.usageCount(res.Owner, model.UsageActiveDiscussions)
	case model.LimitParticipants:
		limit = res.Plan.MaxParticipantsPerDiscussion
		var n int64
		n, err = s.participantRepo.CountBySession(sessionID)
		current = int(n)
	default:
		return model.LimitCheckResult{}, fmt.Errorf("unknown limit type: %s", limitType)
	}
	if err != nil {
		return model.LimitCheckResult{}, err
	}

	result := model.LimitCheckResult{
		Limit:   limit,
		Current: current,
		Allowed: true,
	}
	if limit != nil {
		remaining := *limit - current
		if remaining < 0 {
			remaining = 0
		}
		result.Remaining = &remaining
		result.Allowed = current < *limit

		if !result.Allowed {
			result.UpgradeRequired = true
			result.Message = limitMessage(limitType, *limit)
			monitoring.QuotaDeniedCounter.WithLabelValues(string(limitType)).Inc()
		}
	}

	return result, nil
}

// Enforce CheckLimit 的便捷形式：超限时返回 *QuotaExceededError
func (s *QuotaService) Enforce(userID string, limitType model.LimitType, sessionID string) error {
	result, err := s.CheckLimit(userID, limitType, sessionID)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return &QuotaExceededError{LimitType: limitType, Result: result}
	}
	return nil
}

// Increment 原子累加用量列并失效订阅缓存。
// 不做读-改-写，失败直接报错而不是回退到非原子路径。
func (s *QuotaService) Increment(userID, column string, delta int) error {
	res, err := s.subService.Resolve(userID)
	if err != nil {
		return err
	}

	period := repository.PeriodStart(s.now())
	if err := s.usageRepo.AtomicAdd(res.Owner, period, column, delta); err != nil {
		return err
	}
	s.subService.Invalidate(userID)
	return nil
}

// Decrement 会话关闭时回收 active_discussions 名额
func (s *QuotaService) Decrement(userID, column string) error {
	return s.Increment(userID, column, -1)
}

func (s *QuotaService) usageCount(owner repository.UsageOwner, column string) (int, error) {
	period := repository.PeriodStart(s.now())
	rec, err := s.usageRepo.Get(owner, period)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	switch column {
	case model.UsageDiscussionsCreated:
		return rec.DiscussionsCreated, nil
	case model.UsageActiveDiscussions:
		return rec.ActiveDiscussions, nil
	case model.UsageTotalParticipants:
		return rec.TotalParticipants, nil
	case model.UsageTotalMessages:
		return rec.TotalMessages, nil
	}
	return 0, fmt.Errorf("unknown usage column: %s", column)
}

func limitMessage(limitType model.LimitType, limit int) string {
	switch limitType {
	case model.LimitDiscussion:
		return fmt.Sprintf("本月讨论次数已达上限（%d 次），升级套餐以创建更多讨论", limit)
	case model.LimitActiveDiscussions:
		return fmt.Sprintf("同时进行的讨论已达上限（%d 个），请先关闭已有讨论或升级套餐", limit)
	case model.LimitParticipants:
		return fmt.Sprintf("本场讨论参与人数已达上限（%d 人），升级套餐以容纳更多学生", limit)
	}
	return "已超出当前套餐限额"
}
