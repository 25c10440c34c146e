package controller

import (
	"errors"
	"net/http"

	"debate_edu_backend/internal/service"
	"debate_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// respondError 服务层错误到 HTTP 响应的统一映射
func respondError(ctx *gin.Context, err error) {
	var quotaErr *service.QuotaExceededError
	if errors.As(err, &quotaErr) {
		util.QuotaDenied(ctx, quotaErr.Result)
		return
	}

	switch {
	case errors.Is(err, util.ErrNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrSessionNotActive):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrInvalidJoinCode):
		util.Error(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, util.ErrTurnInProgress):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrSubmitRequiresInput):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrFeatureNotAvailable):
		util.Error(ctx, http.StatusForbidden, err.Error())
	case errors.Is(err, util.ErrGenerationFailed):
		util.Error(ctx, http.StatusBadGateway, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}
