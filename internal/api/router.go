package api

import (
	"github.com/gin-gonic/gin"
)

func NewRouter(deps Deps, basePath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(deps.Logger))

	h := NewHandler(deps)
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	api := r.Group(basePath)
	{
		api.GET("/health", h.Health)

		// Devices and robots
		api.GET("/devices", h.ListDevices)
		api.GET("/devices/:id", h.GetDevice)
		api.GET("/devices/:id/robots/:robotId", h.GetRobot)
		api.POST("/devices/:id/robots/:robotId/tasks", h.AssignTask)

		// History
		api.GET("/devices/:id/history/environment", h.EnvironmentHistory)
		api.GET("/devices/:id/history/remote/:topic", h.RemoteHistory)
		api.GET("/devices/:id/robots/:robotId/history/:metric", h.RobotHistory)
		api.DELETE("/devices/:id/history", h.ResetDevice)
		api.GET("/devices/:id/tasks/history", h.TaskHistory)

		// Alerts
		api.GET("/alerts", h.ListAlerts)
		api.POST("/alerts/read", h.MarkAllAlertsRead)
		api.POST("/alerts/:id/read", h.MarkAlertRead)

		// Settings
		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.UpdateSettings)

		// Live stream
		api.GET("/ws/devices/:id", h.StreamDevice)
	}
	return r
}
