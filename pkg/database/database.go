package database

import (
	"debate_edu_backend/internal/config"
	"debate_edu_backend/internal/model"
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")
	return db, nil
}

// Migrate 建表并写入默认套餐
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.User{},
		&model.Organization{},
		&model.OrganizationMember{},
		&model.SubscriptionPlan{},
		&model.Subscription{},
		&model.UsageRecord{},
		&model.DiscussionSession{},
		&model.DiscussionParticipant{},
		&model.DiscussionMessage{},
		&model.PinnedQuote{},
		&model.InstructorNote{},
	)
	if err != nil {
		return err
	}

	log.Println("Database migration completed")
	return SeedPlans(db)
}

// SeedPlans 套餐表为空时插入默认套餐；机构版 limit 为 nil 表示不限
func SeedPlans(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.SubscriptionPlan{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	three, one, thirty := 3, 1, 30
	twenty, five, twoHundred := 20, 5, 200

	plans := []model.SubscriptionPlan{
		{
			Name:                         "free",
			DisplayName:                  "免费版",
			Tier:                         0,
			MaxDiscussionsPerMonth:       &three,
			MaxActiveDiscussions:         &one,
			MaxParticipantsPerDiscussion: &thirty,
			Features:                     model.PlanFeatures{},
			IsActive:                     true,
		},
		{
			Name:                         "pro",
			DisplayName:                  "专业版",
			Tier:                         1,
			MaxDiscussionsPerMonth:       &twenty,
			MaxActiveDiscussions:         &five,
			MaxParticipantsPerDiscussion: &twoHundred,
			Features: model.PlanFeatures{
				Analytics: true,
				Export:    true,
				Reports:   true,
			},
			IsActive: true,
		},
		{
			Name:        "institution",
			DisplayName: "机构版",
			Tier:        2,
			Features: model.PlanFeatures{
				Analytics:              true,
				Export:                 true,
				Reports:                true,
				CustomAIModes:          true,
				PrioritySupport:        true,
				SSO:                    true,
				OrganizationManagement: true,
			},
			IsActive: true,
		},
	}

	for _, p := range plans {
		if err := db.Create(&p).Error; err != nil {
			return err
		}
	}
	return nil
}
