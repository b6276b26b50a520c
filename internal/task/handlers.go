package task

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/maestro/maestro/internal/common/httpx"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/domain"
	"github.com/maestro/maestro/internal/store"
)

type handlers struct {
	svc    *Service
	logger *logger.Logger
}

// RegisterRoutes mounts the task REST surface.
func RegisterRoutes(router *gin.Engine, svc *Service, log *logger.Logger) {
	h := &handlers{
		svc:    svc,
		logger: log.WithFields(zap.String("component", "task-handlers")),
	}
	api := router.Group("/api/tasks")
	api.POST("", h.create)
	api.GET("", h.list)
	api.GET("/:id", h.get)
	api.PATCH("/:id", h.update)
	api.DELETE("/:id", h.delete)
	api.GET("/:id/children", h.children)
	api.POST("/:id/sessions/:sessionId", h.addSession)
	api.DELETE("/:id/sessions/:sessionId", h.removeSession)
}

func (h *handlers) create(c *gin.Context) {
	var body CreateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	t, err := h.svc.Create(c.Request.Context(), body)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *handlers) list(c *gin.Context) {
	filter := store.TaskFilter{
		ProjectID: c.Query("projectId"),
		Status:    domain.TaskStatus(c.Query("status")),
	}
	if parentID, ok := c.GetQuery("parentId"); ok {
		filter.ParentID = &parentID
	}
	tasks, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *handlers) get(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// updateRequest wraps UpdateInput with the caller identity fields.
type updateRequest struct {
	UpdateInput
	UpdateSource UpdateSource `json:"updateSource"`
	SessionID    string       `json:"sessionId"`
}

func (h *handlers) update(c *gin.Context) {
	var body updateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	source := body.UpdateSource
	if source == "" {
		source = UpdateSourceUser
	}
	t, err := h.svc.Update(c.Request.Context(), c.Param("id"), body.UpdateInput, source, body.SessionID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handlers) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) children(c *gin.Context) {
	children, err := h.svc.ListChildren(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, children)
}

func (h *handlers) addSession(c *gin.Context) {
	t, err := h.svc.AddSession(c.Request.Context(), c.Param("id"), c.Param("sessionId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handlers) removeSession(c *gin.Context) {
	t, err := h.svc.RemoveSession(c.Request.Context(), c.Param("id"), c.Param("sessionId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
