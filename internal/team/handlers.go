package team

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/maestro/maestro/internal/common/httpx"
	"github.com/maestro/maestro/internal/common/logger"
)

type handlers struct {
	teams   *Service
	members *MemberService
	logger  *logger.Logger
}

// RegisterRoutes mounts the team and team member REST surfaces. Project
// scoping travels in the projectId query parameter.
func RegisterRoutes(router *gin.Engine, teams *Service, members *MemberService, log *logger.Logger) {
	h := &handlers{
		teams:   teams,
		members: members,
		logger:  log.WithFields(zap.String("component", "team-handlers")),
	}

	tm := router.Group("/api/team-members")
	tm.POST("", h.createMember)
	tm.GET("", h.listMembers)
	tm.GET("/:id", h.getMember)
	tm.PUT("/:id", h.updateMember)
	tm.POST("/:id/archive", h.archiveMember)
	tm.POST("/:id/reset-default", h.resetDefault)
	tm.DELETE("/:id", h.deleteMember)

	teamsAPI := router.Group("/api/teams")
	teamsAPI.POST("", h.createTeam)
	teamsAPI.GET("", h.listTeams)
	teamsAPI.GET("/:id", h.getTeam)
	teamsAPI.PUT("/:id", h.updateTeam)
	teamsAPI.DELETE("/:id", h.deleteTeam)
	teamsAPI.POST("/:id/sub-teams/:subTeamId", h.addSubTeam)
	teamsAPI.DELETE("/:id/sub-teams/:subTeamId", h.removeSubTeam)
}

func (h *handlers) createMember(c *gin.Context) {
	var body struct {
		ProjectID string `json:"projectId"`
		MemberInput
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	if body.ProjectID == "" {
		httpx.BadRequest(c, "projectId is required")
		return
	}
	m, err := h.members.Create(c.Request.Context(), body.ProjectID, body.MemberInput)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *handlers) listMembers(c *gin.Context) {
	projectID := c.Query("projectId")
	if projectID == "" {
		httpx.BadRequest(c, "projectId is required")
		return
	}
	members, err := h.members.List(c.Request.Context(), projectID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *handlers) getMember(c *gin.Context) {
	m, err := h.members.Get(c.Request.Context(), c.Query("projectId"), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *handlers) updateMember(c *gin.Context) {
	var body MemberInput
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	m, err := h.members.Update(c.Request.Context(), c.Query("projectId"), c.Param("id"), body)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *handlers) archiveMember(c *gin.Context) {
	m, err := h.members.Archive(c.Request.Context(), c.Query("projectId"), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *handlers) resetDefault(c *gin.Context) {
	m, err := h.members.ResetDefault(c.Request.Context(), c.Query("projectId"), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *handlers) deleteMember(c *gin.Context) {
	if err := h.members.Delete(c.Request.Context(), c.Query("projectId"), c.Param("id")); err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) createTeam(c *gin.Context) {
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
	t, err := h.teams.Create(c.Request.Context(), body.ProjectID, body.CreateInput)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *handlers) listTeams(c *gin.Context) {
	projectID := c.Query("projectId")
	if projectID == "" {
		httpx.BadRequest(c, "projectId is required")
		return
	}
	teams, err := h.teams.List(c.Request.Context(), projectID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, teams)
}

func (h *handlers) getTeam(c *gin.Context) {
	t, err := h.teams.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handlers) updateTeam(c *gin.Context) {
	var body UpdateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.BadRequest(c, "invalid payload")
		return
	}
	t, err := h.teams.Update(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handlers) deleteTeam(c *gin.Context) {
	if err := h.teams.Delete(c.Request.Context(), c.Param("id")); err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) addSubTeam(c *gin.Context) {
	t, err := h.teams.AddSubTeam(c.Request.Context(), c.Param("id"), c.Param("subTeamId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *handlers) removeSubTeam(c *gin.Context) {
	t, err := h.teams.RemoveSubTeam(c.Request.Context(), c.Param("id"), c.Param("subTeamId"))
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
