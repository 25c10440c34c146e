package app

import (
	"debate_edu_backend/internal/config"
	"debate_edu_backend/internal/middleware"
	"debate_edu_backend/internal/model"
	"debate_edu_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由
	public := router.Group("/api")
	{
		public.GET("/health", c.health.Health)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
	}

	// 需要登录的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/auth/me", c.auth.Me)
		authGroup.GET("/subscription", c.subscription.Info)
		authGroup.GET("/subscription/check-limit", c.subscription.CheckLimit)

		// 学生入口
		authGroup.POST("/discussions/join", c.session.Join)

		discussions := authGroup.Group("/discussions")
		{
			discussions.GET("/:id", c.session.Get)
			discussions.GET("/:id/participants", c.participant.List)
			discussions.GET("/:id/ws", c.ws.Subscribe)

			// 学生发言：默认 SSE 流式，sync=true 同步返回
			discussions.POST("/:id/messages", c.message.Submit)
		}

		participants := authGroup.Group("/participants")
		{
			participants.PATCH("/:participantId", c.participant.Update)
			participants.GET("/:participantId/messages", c.message.Thread)
			participants.GET("/:participantId/messages/wait", c.message.Wait)
		}

		// 讲师路由
		instructor := authGroup.Group("")
		instructor.Use(middleware.RoleMiddleware(model.Instructor))
		{
			instructor.POST("/discussions", c.session.Create)
			instructor.GET("/discussions", c.session.List)
			instructor.POST("/discussions/:id/activate", c.session.Activate)
			instructor.POST("/discussions/:id/close", c.session.Close)
			instructor.PUT("/discussions/:id/settings", c.session.UpdateSettings)
			instructor.GET("/discussions/:id/messages", c.message.Transcript)
			instructor.POST("/discussions/:id/intervention", c.intervention.Intervene)

			instructor.GET("/discussions/:id/pins", c.intervention.ListPins)
			instructor.POST("/discussions/:id/pins", c.intervention.Pin)
			instructor.DELETE("/discussions/:id/pins/:pinId", c.intervention.Unpin)

			instructor.GET("/discussions/:id/activity", c.activity.Stats)
			instructor.GET("/discussions/:id/topics", c.activity.Topics)
			instructor.GET("/discussions/:id/stances", c.participant.StanceDistribution)
			instructor.GET("/discussions/:id/notes", c.participant.ListNotes)
			instructor.PUT("/participants/:participantId/note", c.participant.SaveNote)

			instructor.POST("/discussions/:id/report", c.session.ExportReport)
		}
	}
}
