package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"marketwatch/internal/dispatch"
	"marketwatch/internal/engine"
	"marketwatch/internal/logging"
	"marketwatch/internal/models"
	"marketwatch/internal/registry"
)

type Handler struct {
	engine   *engine.Engine
	logger   *logging.Logger
	hub      *dispatch.Hub
	upgrader websocket.Upgrader
}

func NewHandler(eng *engine.Engine, logger *logging.Logger, hub *dispatch.Hub) *Handler {
	return &Handler{
		engine: eng,
		logger: logger,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// createTaskRequest is the wire form of a task config. check_interval is a
// duration string ("5m", "90s"); expiry can be given as an absolute
// timestamp or relative hours.
type createTaskRequest struct {
	Name                 string                          `json:"name"`
	Market               string                          `json:"market"`
	Provider             string                          `json:"provider"`
	Symbol               string                          `json:"symbol" binding:"required"`
	Metric               string                          `json:"metric" binding:"required"`
	Comparator           string                          `json:"comparator" binding:"required"`
	Threshold            float64                         `json:"threshold"`
	CheckInterval        string                          `json:"check_interval" binding:"required"`
	ExpiresAt            *time.Time                      `json:"expires_at"`
	ExpiresInHours       int                             `json:"expires_in_hours"`
	NotificationChannels []string                        `json:"notification_channels" binding:"required"`
	NotificationParams   map[string]models.ChannelParams `json:"notification_params"`
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for task: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	interval, err := time.ParseDuration(req.CheckInterval)
	if err != nil {
		h.logger.Errorf("Invalid check_interval %q: %v", req.CheckInterval, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid check_interval"})
		return
	}

	expiresAt := req.ExpiresAt
	if expiresAt == nil && req.ExpiresInHours > 0 {
		t := time.Now().Add(time.Duration(req.ExpiresInHours) * time.Hour)
		expiresAt = &t
	}

	cfg := models.TaskConfig{
		Name:                 req.Name,
		Market:               req.Market,
		Provider:             req.Provider,
		Symbol:               req.Symbol,
		Metric:               models.Metric(req.Metric),
		Comparator:           models.Comparator(req.Comparator),
		Threshold:            req.Threshold,
		CheckInterval:        interval,
		ExpiresAt:            expiresAt,
		NotificationChannels: req.NotificationChannels,
		NotificationParams:   req.NotificationParams,
	}

	id, err := h.engine.CreateTask(cfg)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidConfig) {
			h.logger.Errorf("Rejected task config: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Errorf("Failed to create task: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"task_id": id})
}

func (h *Handler) ListTasks(c *gin.Context) {
	tasks := h.engine.ListTasks()
	c.JSON(http.StatusOK, tasks)
}

func (h *Handler) GetTask(c *gin.Context) {
	id := c.Param("id")
	task, ok := h.engine.GetTask(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) DeleteTask(c *gin.Context) {
	id := c.Param("id")
	deleted := h.engine.DeleteTask(id)
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"deleted": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// WebSocket streams every triggered alert to the connected client.
func (h *Handler) WebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	h.hub.AddConnection(conn)

	// Hold the connection open; the hub removes it when writes fail.
	go func() {
		defer h.hub.RemoveConnection(conn)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
