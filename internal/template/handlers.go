package template

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

// RegisterRoutes mounts the template REST surface.
func RegisterRoutes(router *gin.Engine, svc *Service, log *logger.Logger) {
	h := &handlers{
		svc:    svc,
		logger: log.WithFields(zap.String("component", "template-handlers")),
	}
	api := router.Group("/api/templates")
	api.GET("", h.list)
	api.GET("/:role", h.get)
	api.PUT("/:role", h.set)
	api.POST("/:role/reset", h.reset)
}

func (h *handlers) list(c *gin.Context) {
	templates, err := h.svc.List(c.Request.Context())
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (h *handlers) get(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), c.Param("role"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handlers) set(c *gin.Context) {
	var body struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	t, err := h.svc.Set(c.Request.Context(), c.Param("role"), body.Content)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handlers) reset(c *gin.Context) {
	t, err := h.svc.Reset(c.Request.Context(), c.Param("role"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
