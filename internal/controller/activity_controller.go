package controller

import (
	"debate_edu_backend/internal/service"
	"debate_edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ActivityController struct {
	ActivityService *service.ActivityService
}

func NewActivityController(activityService *service.ActivityService) *ActivityController {
	return &ActivityController{ActivityService: activityService}
}

// Stats 最近 30 分钟的每分钟消息数
func (c *ActivityController) Stats(ctx *gin.Context) {
	stats, err := c.ActivityService.Stats(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// Topics 话题聚类。重算由变更事件防抖触发，这里只读最近一次结果
func (c *ActivityController) Topics(ctx *gin.Context) {
	topics, err := c.ActivityService.Topics(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, topics)
}
