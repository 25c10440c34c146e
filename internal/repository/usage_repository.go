package repository

import (
	"debate_edu_backend/internal/model"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// UsageOwner 用量行归属：组织订阅计入组织，否则计入个人
type UsageOwner struct {
	UserID         *string
	OrganizationID *string
}

func UserOwner(userID string) UsageOwner {
	return UsageOwner{UserID: &userID}
}

func OrgOwner(orgID string) UsageOwner {
	return UsageOwner{OrganizationID: &orgID}
}

// Key 唯一索引用的归属键：组织为 "o:<orgId>"，个人为 "u:<userId>"
func (o UsageOwner) Key() string {
	if o.OrganizationID != nil {
		return "o:" + *o.OrganizationID
	}
	return "u:" + derefOr(o.UserID, "")
}

type UsageRepository struct {
	DB *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{DB: db}
}

var usageColumns = map[string]bool{
	model.UsageDiscussionsCreated: true,
	model.UsageActiveDiscussions:  true,
	model.UsageTotalParticipants:  true,
	model.UsageTotalMessages:      true,
}

// PeriodStart 用量按自然月归档，周期键为当月一号
func PeriodStart(now time.Time) string {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

func periodEnd(periodStart string) string {
	t, err := time.Parse("2006-01-02", periodStart)
	if err != nil {
		return periodStart
	}
	return t.AddDate(0, 1, 0).Format("2006-01-02")
}

func (r *UsageRepository) scope(owner UsageOwner, periodStart string) *gorm.DB {
	return r.DB.Model(&model.UsageRecord{}).
		Where("owner_key = ? AND period_start = ?", owner.Key(), periodStart)
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func (r *UsageRepository) Get(owner UsageOwner, periodStart string) (*model.UsageRecord, error) {
	var rec model.UsageRecord
	err := r.scope(owner, periodStart).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AtomicAdd 在数据库内原子累加单个用量列。行不存在时插入种子行后重试一次，
// 避免并发首次写入时互相覆盖。不做读-改-写回退。
func (r *UsageRepository) AtomicAdd(owner UsageOwner, periodStart, column string, delta int) error {
	if !usageColumns[column] {
		return fmt.Errorf("unknown usage column: %s", column)
	}

	update := func() (int64, error) {
		assign := gorm.Expr(fmt.Sprintf("%s + ?", column), delta)
		if delta < 0 {
			// 计数列不允许为负，负增量在 SQL 内钳到 0
			assign = gorm.Expr(
				fmt.Sprintf("CASE WHEN %s + ? < 0 THEN 0 ELSE %s + ? END", column, column),
				delta, delta)
		}
		tx := r.scope(owner, periodStart).Update(column, assign)
		return tx.RowsAffected, tx.Error
	}

	affected, err := update()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	seed := &model.UsageRecord{
		OwnerKey:       owner.Key(),
		UserID:         owner.UserID,
		OrganizationID: owner.OrganizationID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd(periodStart),
	}
	if err := r.DB.Create(seed).Error; err != nil {
		if !isDuplicateKey(err) {
			return err
		}
	}

	affected, err = update()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("usage row missing after seed insert for period %s", periodStart)
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
