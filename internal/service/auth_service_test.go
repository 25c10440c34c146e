package service

import (
	"errors"
	"testing"
	"time"

	"debate_edu_backend/internal/config"
	"debate_edu_backend/internal/model"
	"debate_edu_backend/internal/repository"
	"debate_edu_backend/internal/util"
)

func newAuthService(env *testEnv) *AuthService {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret-only-for-unit-tests"
	cfg.JWT.ExpireTime = time.Hour
	return NewAuthService(repository.NewUserRepository(env.db), cfg)
}

func TestRegisterRejectsDuplicateEmailAndAdminRole(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthService(env)

	user, err := auth.Register(RegisterInput{
		Email:    "teacher@example.com",
		Password: "s3cret-pass",
		Name:     "王老师",
		Role:     "instructor",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Role != model.Instructor {
		t.Fatalf("expected instructor role, got %s", user.Role)
	}
	if user.Password == "s3cret-pass" {
		t.Fatal("password must be stored hashed")
	}

	if _, err := auth.Register(RegisterInput{
		Email:    "teacher@example.com",
		Password: "another-pass",
		Name:     "冒名者",
	}); !errors.Is(err, util.ErrEmailRegistered) {
		t.Fatalf("expected ErrEmailRegistered, got %v", err)
	}

	// admin 不能自助注册，降级为学生
	sneaky, err := auth.Register(RegisterInput{
		Email:    "sneaky@example.com",
		Password: "s3cret-pass",
		Name:     "学生",
		Role:     "admin",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if sneaky.Role != model.Student {
		t.Fatalf("expected admin self-registration to fall back to student, got %s", sneaky.Role)
	}
}

func TestLoginVerifiesPasswordAndIssuesToken(t *testing.T) {
	env := newTestEnv(t)
	auth := newAuthService(env)

	if _, err := auth.Register(RegisterInput{
		Email:    "teacher@example.com",
		Password: "s3cret-pass",
		Name:     "王老师",
		Role:     "instructor",
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	user, token, err := auth.Login(LoginInput{Email: "teacher@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a JWT token")
	}
	if user.LastSeenAt == nil {
		t.Fatal("expected login to record last seen time")
	}

	claims, err := util.ParseJWT(token, "test-secret-only-for-unit-tests")
	if err != nil {
		t.Fatalf("token must parse: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != model.Instructor {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, _, err := auth.Login(LoginInput{Email: "teacher@example.com", Password: "wrong"}); !errors.Is(err, util.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := auth.Login(LoginInput{Email: "nobody@example.com", Password: "s3cret-pass"}); !errors.Is(err, util.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}
