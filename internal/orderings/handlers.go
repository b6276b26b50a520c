package orderings

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

// RegisterRoutes mounts the orderings REST surface.
func RegisterRoutes(router *gin.Engine, svc *Service, log *logger.Logger) {
	h := &handlers{
		svc:    svc,
		logger: log.WithFields(zap.String("component", "orderings-handlers")),
	}
	api := router.Group("/api/orderings")
	api.GET("/:projectId/:entityType", h.get)
	api.PUT("/:projectId/:entityType", h.put)
}

func (h *handlers) get(c *gin.Context) {
	o, err := h.svc.Get(c.Request.Context(), c.Param("projectId"), c.Param("entityType"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handlers) put(c *gin.Context) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	o, err := h.svc.Put(c.Request.Context(), c.Param("projectId"), c.Param("entityType"), body.IDs)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
