package service

import (
	"errors"
	"time"

	"debate_edu_backend/internal/config"
	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/util"

	"golang.org/x/crypto/bcrypt"
)

type RegisterInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role"`
	School   string `json:"school"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthService struct {
	userRepo *repository.UserRepository
	cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{userRepo: userRepo, cfg: cfg}
}

// Register 注册。角色只接受 student / instructor，
// 管理员身份由邮箱白名单决定，不能自助注册。
func (s *AuthService) Register(input RegisterInput) (*model.User, error) {
	exists, err := s.userRepo.EmailExists(input.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, util.ErrEmailRegistered
	}

	role := model.Student
	if input.Role == string(model.Instructor) {
		role = model.Instructor
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:    input.Email,
		Password: string(hash),
		Name:     input.Name,
		Role:     role,
		School:   input.School,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(input LoginInput) (*model.User, string, error) {
	user, err := s.userRepo.GetByEmail(input.Email)
	if errors.Is(err, util.ErrNotFound) {
		return nil, "", util.ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return nil, "", util.ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(user, s.cfg.JWT.Secret, s.cfg.JWT.ExpireTime)
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	user.LastSeenAt = &now
	_ = s.userRepo.Update(user)

	return user, token, nil
}

func (s *AuthService) Profile(userID string) (*model.User, error) {
	return s.userRepo.GetByID(userID)
}
