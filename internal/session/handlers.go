package session

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/maestro/maestro/internal/common/httpx"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/store"
)

type handlers struct {
	svc    *Service
	logger *logger.Logger
}

// RegisterRoutes mounts the session REST surface. Spawn and log digest
// routes are registered by their own packages.
func RegisterRoutes(router *gin.Engine, svc *Service, log *logger.Logger) {
	h := &handlers{
		svc:    svc,
		logger: log.WithFields(zap.String("component", "session-handlers")),
	}
	api := router.Group("/api/sessions")
	api.POST("", h.create)
	api.GET("", h.list)
	api.GET("/:id", h.get)
	api.PATCH("/:id", h.update)
	api.DELETE("/:id", h.delete)
	api.POST("/:id/prompt", h.prompt)
	api.POST("/:id/tasks/:taskId", h.addTask)
	api.DELETE("/:id/tasks/:taskId", h.removeTask)
	api.GET("/:id/timeline", h.timeline)
	api.POST("/:id/timeline", h.addTimelineEvent)
	api.GET("/:id/docs", h.docs)
	api.POST("/:id/docs", h.addDoc)
}

func (h *handlers) create(c *gin.Context) {
	var body CreateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	sess, err := h.svc.Create(c.Request.Context(), body, CreateOptions{})
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *handlers) list(c *gin.Context) {
	filter := store.SessionFilter{
		ProjectID:       c.Query("projectId"),
		TaskID:          c.Query("taskId"),
		ParentSessionID: c.Query("parentSessionId"),
	}
	if raw, ok := c.GetQuery("active"); ok {
		active := raw == "true"
		filter.Active = &active
	}
	sessions, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *handlers) get(c *gin.Context) {
	sess, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *handlers) update(c *gin.Context) {
	var body UpdateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	sess, err := h.svc.Update(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *handlers) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) prompt(c *gin.Context) {
	var body PromptInput
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	if err := h.svc.SendPrompt(c.Request.Context(), c.Param("id"), body); err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) addTask(c *gin.Context) {
	sess, err := h.svc.AddTask(c.Request.Context(), c.Param("id"), c.Param("taskId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *handlers) removeTask(c *gin.Context) {
	sess, err := h.svc.RemoveTask(c.Request.Context(), c.Param("id"), c.Param("taskId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *handlers) timeline(c *gin.Context) {
	sess, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Timeline)
}

func (h *handlers) addTimelineEvent(c *gin.Context) {
	var body TimelineInput
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	sess, err := h.svc.AddTimelineEvent(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *handlers) docs(c *gin.Context) {
	sess, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Docs)
}

func (h *handlers) addDoc(c *gin.Context) {
	var body struct {
		Title string `json:"title"`
		Path  string `json:"path"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	sess, err := h.svc.AddDoc(c.Request.Context(), c.Param("id"), body.Title, body.Path)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}
