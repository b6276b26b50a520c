package queue

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/maestro/maestro/internal/common/httpx"
	"github.com/maestro/maestro/internal/common/logger"
)

type handlers struct {
	svc    *Service
	logger *logger.Logger
}

// RegisterRoutes mounts the queue REST surface. Queues are addressed by
// session id.
func RegisterRoutes(router *gin.Engine, svc *Service, log *logger.Logger) {
	h := &handlers{
		svc:    svc,
		logger: log.WithFields(zap.String("component", "queue-handlers")),
	}
	api := router.Group("/api/queues")
	api.POST("", h.create)
	api.GET("/:sessionId", h.get)
	api.POST("/:sessionId/start", h.start)
	api.POST("/:sessionId/complete", h.complete)
	api.POST("/:sessionId/fail", h.fail)
	api.POST("/:sessionId/skip", h.skip)
	api.POST("/:sessionId/push", h.push)
	api.GET("/:sessionId/stats", h.stats)
}

func (h *handlers) create(c *gin.Context) {
	var body struct {
		SessionID string   `json:"sessionId"`
		TaskIDs   []string `json:"taskIds"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	q, err := h.svc.Create(c.Request.Context(), body.SessionID, body.TaskIDs)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (h *handlers) get(c *gin.Context) {
	q, err := h.svc.Get(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *handlers) start(c *gin.Context) {
	q, err := h.svc.StartItem(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *handlers) complete(c *gin.Context) {
	q, err := h.svc.CompleteItem(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *handlers) fail(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	q, err := h.svc.FailItem(c.Request.Context(), c.Param("sessionId"), body.Reason)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *handlers) skip(c *gin.Context) {
	q, err := h.svc.SkipItem(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *handlers) push(c *gin.Context) {
	var body struct {
		TaskID string `json:"taskId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.TaskID == "" {
		httpx.BadRequest(c, "taskId is required")
		return
	}
	q, err := h.svc.PushItem(c.Request.Context(), c.Param("sessionId"), body.TaskID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *handlers) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
