package api

import (
	"github.com/gin-gonic/gin"

	"marketwatch/internal/config"
	"marketwatch/internal/logging"
)

func NewRouter(logger *logging.Logger, cfg config.Config, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	api := r.Group(cfg.API.BasePath)
	{
		api.POST("/tasks", h.CreateTask)
		api.GET("/tasks", h.ListTasks)
		api.GET("/tasks/:id", h.GetTask)
		api.DELETE("/tasks/:id", h.DeleteTask)
	}

	r.GET("/ws", h.WebSocket)

	return r
}
