package tasklist

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

// RegisterRoutes mounts the task list REST surface.
func RegisterRoutes(router *gin.Engine, svc *Service, log *logger.Logger) {
	h := &handlers{
		svc:    svc,
		logger: log.WithFields(zap.String("component", "tasklist-handlers")),
	}
	api := router.Group("/api/task-lists")
	api.POST("", h.create)
	api.GET("", h.list)
	api.GET("/:id", h.get)
	api.PUT("/:id", h.update)
	api.DELETE("/:id", h.delete)
	api.DELETE("/:id/tasks/:taskId", h.removeTask)
}

func (h *handlers) create(c *gin.Context) {
	var body struct {
		ProjectID string `json:"projectId"`
		CreateInput
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	if body.ProjectID == "" {
		httpx.BadRequest(c, "projectId is required")
		return
	}
	l, err := h.svc.Create(c.Request.Context(), body.ProjectID, body.CreateInput)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (h *handlers) list(c *gin.Context) {
	projectID := c.Query("projectId")
	if projectID == "" {
		httpx.BadRequest(c, "projectId is required")
		return
	}
	lists, err := h.svc.List(c.Request.Context(), projectID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, lists)
}

func (h *handlers) get(c *gin.Context) {
	l, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *handlers) update(c *gin.Context) {
	var body UpdateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	l, err := h.svc.Update(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *handlers) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) removeTask(c *gin.Context) {
	l, err := h.svc.RemoveTask(c.Request.Context(), c.Param("id"), c.Param("taskId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}
