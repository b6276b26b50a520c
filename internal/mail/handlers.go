package mail

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/maestro/maestro/internal/common/httpx"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
)

type handlers struct {
	svc    *Service
	logger *logger.Logger
}

// RegisterRoutes mounts the mail REST surface.
func RegisterRoutes(router *gin.Engine, svc *Service, log *logger.Logger) {
	h := &handlers{
		svc:    svc,
		logger: log.WithFields(zap.String("component", "mail-handlers")),
	}
	api := router.Group("/api/mail")
	api.POST("", h.send)
	api.GET("/inbox", h.inbox)
	api.GET("/wait", h.wait)
	api.GET("/thread/:threadId", h.thread)
	api.DELETE("/:id", h.delete)
}

func (h *handlers) send(c *gin.Context) {
	var body SendInput
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	sent, err := h.svc.Send(c.Request.Context(), body)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, sent)
}

func (h *handlers) inbox(c *gin.Context) {
	msgs, err := h.svc.Inbox(c.Request.Context(), c.Query("projectId"), c.Query("sessionId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	if msgs == nil {
		msgs = []*domain.Mail{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) wait(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.BadRequest(c, "since must be RFC3339")
			return
		}
		since = parsed
	}
	var timeout time.Duration
	if raw := c.Query("timeout"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			httpx.BadRequest(c, "timeout must be a non-negative integer (milliseconds)")
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}
	msgs, err := h.svc.Wait(c.Request.Context(), c.Query("projectId"), c.Query("sessionId"), since, timeout)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) thread(c *gin.Context) {
	msgs, err := h.svc.Thread(c.Request.Context(), c.Param("threadId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	if msgs == nil {
		msgs = []*domain.Mail{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
