package util

import "errors"

var (
	ErrNotFound            = errors.New("resource not found")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrSessionNotActive    = errors.New("discussion is not active")
	ErrInvalidJoinCode     = errors.New("invalid join code")
	ErrTurnInProgress      = errors.New("reply generation already in progress for this participant")
	ErrGenerationFailed    = errors.New("AI reply generation failed")
	ErrSubmitRequiresInput = errors.New("立场和至少一条论据不能为空")
	ErrEmailRegistered     = errors.New("该邮箱已被注册")
	ErrInvalidCredentials  = errors.New("邮箱或密码错误")
	ErrFeatureNotAvailable = errors.New("current plan does not include this feature")
)
