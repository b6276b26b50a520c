// Package team implements team member profiles and team groupings. Default
// member profiles ship in code and are edited through a stored overlay;
// custom members live entirely in the store.
package team

import "github.com/maestro/maestro/internal/domain"

// Default member profile ids. These exist in every project without being
// stored; an overlay entry under the same id shadows the code values.
const (
	DefaultOrchestratorID = "tm_default_orchestrator"
	DefaultCoderID        = "tm_default_coder"
	DefaultReviewerID     = "tm_default_reviewer"
	DefaultTesterID       = "tm_default_tester"
)

func defaultMembers() []*domain.TeamMember {
	return []*domain.TeamMember{
		{
			ID:           DefaultOrchestratorID,
			Name:         "Orchestrator",
			Role:         "orchestrator",
			Avatar:       "conductor",
			Mode:         "orchestrator",
			Capabilities: []string{"spawn", "mail", "queue"},
			IsDefault:    true,
			Status:       domain.TeamMemberActive,
		},
		{
			ID:           DefaultCoderID,
			Name:         "Coder",
			Role:         "worker",
			Avatar:       "keyboard",
			Mode:         "worker",
			Capabilities: []string{"code", "mail"},
			IsDefault:    true,
			Status:       domain.TeamMemberActive,
		},
		{
			ID:           DefaultReviewerID,
			Name:         "Reviewer",
			Role:         "worker",
			Avatar:       "magnifier",
			Mode:         "worker",
			Capabilities: []string{"review", "mail"},
			IsDefault:    true,
			Status:       domain.TeamMemberActive,
		},
		{
			ID:           DefaultTesterID,
			Name:         "Tester",
			Role:         "worker",
			Avatar:       "flask",
			Mode:         "worker",
			Capabilities: []string{"test", "mail"},
			IsDefault:    true,
			Status:       domain.TeamMemberActive,
		},
	}
}

// defaultMember returns the code-provided profile for id, or nil.
func defaultMember(id string) *domain.TeamMember {
	for _, m := range defaultMembers() {
		if m.ID == id {
			return m
		}
	}
	return nil
}
