package model

import "time"

type UserRole string

const (
	Student    UserRole = "student"
	Instructor UserRole = "instructor"
	Admin      UserRole = "admin"
)

type User struct {
	UUIDBase
	Email      string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password   string     `gorm:"size:255;not null" json:"-"`
	Name       string     `gorm:"size:100" json:"name"`
	Role       UserRole   `gorm:"size:20;default:'student';index" json:"role"`
	School     string     `gorm:"size:100" json:"school,omitempty"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}

func (User) TableName() string {
	return "users"
}
