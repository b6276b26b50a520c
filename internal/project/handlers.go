package project

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/maestro/maestro/internal/common/httpx"
	"github.com/maestro/maestro/internal/common/logger"
	"github.com/maestro/maestro/internal/store"
)

type handlers struct {
	svc       *Service
	orderings store.OrderingRepository
	logger    *logger.Logger
}

// RegisterRoutes mounts the project REST surface.
func RegisterRoutes(router *gin.Engine, svc *Service, orderings store.OrderingRepository, log *logger.Logger) {
	h := &handlers{
		svc:       svc,
		orderings: orderings,
		logger:    log.WithFields(zap.String("component", "project-handlers")),
	}
	api := router.Group("/api/projects")
	api.POST("", h.create)
	api.GET("", h.list)
	api.GET("/:id", h.get)
	api.PUT("/:id", h.update)
	api.DELETE("/:id", h.delete)
	api.POST("/:id/master", h.setMaster)
}

func (h *handlers) create(c *gin.Context) {
	var body CreateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	p, err := h.svc.Create(c.Request.Context(), body)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *handlers) list(c *gin.Context) {
	projects, err := h.svc.List(c.Request.Context())
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *handlers) get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) update(c *gin.Context) {
	var body UpdateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	p, err := h.svc.Update(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), h.orderings); err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) setMaster(c *gin.Context) {
	var body struct {
		IsMaster bool `json:"isMaster"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	p, err := h.svc.SetMasterStatus(c.Request.Context(), c.Param("id"), body.IsMaster)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
