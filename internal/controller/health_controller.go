package controller

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewHealthController(db *gorm.DB, rdb *redis.Client) *HealthController {
	return &HealthController{DB: db, Redis: rdb}
}

func (c *HealthController) Health(ctx *gin.Context) {
	status := gin.H{"status": "ok"}
	code := 200

	if sqlDB, err := c.DB.DB(); err != nil || sqlDB.Ping() != nil {
		status["database"] = "down"
		status["status"] = "degraded"
		code = 503
	} else {
		status["database"] = "up"
	}

	if c.Redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		if err := c.Redis.Ping(pingCtx).Err(); err != nil {
			status["redis"] = "down"
		} else {
			status["redis"] = "up"
		}
	}

	ctx.JSON(code, status)
}
