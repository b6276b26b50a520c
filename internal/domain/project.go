// Package domain holds the Maestro entity model. Entities reference each
// other by id only; every mutation goes through a service, never through
// direct repository edits.
package domain

import "time"

// Project owns tasks, sessions, task lists, teams, team members and
// orderings. It cannot be deleted while tasks or sessions reference it.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	WorkingDir  string    `json:"workingDir"`
	Description string    `json:"description,omitempty"`
	IsMaster    bool      `json:"isMaster"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
