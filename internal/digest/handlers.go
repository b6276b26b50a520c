package digest

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/maestro/maestro/internal/common/httpx"
	"github.com/maestro/maestro/internal/common/logger"
)

type handlers struct {
	svc    *Service
	logger *logger.Logger
}

// RegisterRoutes mounts the digest endpoints under /api/sessions.
func RegisterRoutes(router *gin.Engine, svc *Service, log *logger.Logger) {
	h := &handlers{
		svc:    svc,
		logger: log.WithFields(zap.String("component", "digest-handlers")),
	}

	sessions := router.Group("/api/sessions")
	{
		sessions.GET("/:id/log-digest", h.getDigest)
		sessions.GET("/log-digests", h.getDigests)
	}
}

func (h *handlers) getDigest(c *gin.Context) {
	opts, err := parseOptions(c)
	if err != nil {
		httpx.BadRequest(c, err.Error())
		return
	}

	d, err := h.svc.GetDigest(c.Request.Context(), c.Param("id"), opts)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handlers) getDigests(c *gin.Context) {
	opts, err := parseOptions(c)
	if err != nil {
		httpx.BadRequest(c, err.Error())
		return
	}

	var (
		digests []*Digest
	)
	switch {
	case c.Query("parentSessionId") != "":
		digests, err = h.svc.GetWorkerDigests(c.Request.Context(), c.Query("parentSessionId"), opts)
	case c.Query("sessionIds") != "":
		ids := splitIDs(c.Query("sessionIds"))
		digests, err = h.svc.GetDigests(c.Request.Context(), ids, opts)
	default:
		httpx.BadRequest(c, "either parentSessionId or sessionIds is required")
		return
	}
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"digests": digests})
}

func parseOptions(c *gin.Context) (Options, error) {
	var opts Options
	if raw := c.Query("last"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("last must be a non-negative integer")
		}
		opts.Last = n
	}
	if raw := c.Query("maxLength"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("maxLength must be a non-negative integer")
		}
		opts.MaxLength = &n
	}
	return opts, nil
}

func splitIDs(raw string) []string {
	parts := strings.Split(raw, ",")
	ids := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
