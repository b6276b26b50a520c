package domain

import "time"

// TeamMemberStatus is the lifecycle of a team member profile.
// active -> archived -> deleted; defaults cannot be deleted.
type TeamMemberStatus string

const (
	TeamMemberActive   TeamMemberStatus = "active"
	TeamMemberArchived TeamMemberStatus = "archived"
)

// TeamMember is an agent identity profile. Default members ship in code and
// are edited through a stored overlay; custom members are stored whole.
type TeamMember struct {
	ID                 string           `json:"id"`
	ProjectID          string           `json:"projectId"`
	Name               string           `json:"name"`
	Role               string           `json:"role,omitempty"`
	Avatar             string           `json:"avatar,omitempty"`
	Model              string           `json:"model,omitempty"`
	AgentTool          string           `json:"agentTool,omitempty"`
	Mode               string           `json:"mode,omitempty"`
	SkillIDs           []string         `json:"skillIds,omitempty"`
	Capabilities       []string         `json:"capabilities,omitempty"`
	CommandPermissions []string         `json:"commandPermissions,omitempty"`
	IsDefault          bool             `json:"isDefault"`
	Status             TeamMemberStatus `json:"status"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy.
func (m *TeamMember) Clone() *TeamMember {
	if m == nil {
		return nil
	}
	cp := *m
	cp.SkillIDs = append([]string(nil), m.SkillIDs...)
	cp.Capabilities = append([]string(nil), m.Capabilities...)
	cp.CommandPermissions = append([]string(nil), m.CommandPermissions...)
	return &cp
}

// Team groups members under one leader. Sub-team nesting must stay acyclic;
// a child's ParentTeamID mirrors membership in the parent's SubTeamIDs.
type Team struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	Name         string    `json:"name"`
	MemberIDs    []string  `json:"memberIds"`
	LeaderID     string    `json:"leaderId"`
	SubTeamIDs   []string  `json:"subTeamIds,omitempty"`
	ParentTeamID string    `json:"parentTeamId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (t *Team) Clone() *Team {
	if t == nil {
		return nil
	}
	cp := *t
	cp.MemberIDs = append([]string(nil), t.MemberIDs...)
	cp.SubTeamIDs = append([]string(nil), t.SubTeamIDs...)
	return &cp
}

// HasMember reports whether the member id belongs to the team.
func (t *Team) HasMember(memberID string) bool {
	for _, id := range t.MemberIDs {
		if id == memberID {
			return true
		}
	}
	return false
}

// HasSubTeam reports whether the team id is a direct sub-team.
func (t *Team) HasSubTeam(teamID string) bool {
	for _, id := range t.SubTeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}
