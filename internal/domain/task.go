package domain

import "time"

// TaskStatus is the user-visible task state.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusError      TaskStatus = "error"
)

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusBlocked,
		TaskStatusCompleted, TaskStatusCancelled, TaskStatusError:
		return true
	}
	return false
}

// TaskSessionStatus is the per-session progress of a task, writable by the
// working agent itself (unlike the top-level status).
type TaskSessionStatus string

const (
	TaskSessionWorking   TaskSessionStatus = "working"
	TaskSessionQueued    TaskSessionStatus = "queued"
	TaskSessionBlocked   TaskSessionStatus = "blocked"
	TaskSessionCompleted TaskSessionStatus = "completed"
	TaskSessionFailed    TaskSessionStatus = "failed"
	TaskSessionSkipped   TaskSessionStatus = "skipped"
)

// ValidTaskSessionStatus reports whether s is a known per-session status.
func ValidTaskSessionStatus(s TaskSessionStatus) bool {
	switch s {
	case TaskSessionWorking, TaskSessionQueued, TaskSessionBlocked,
		TaskSessionCompleted, TaskSessionFailed, TaskSessionSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether a per-session status is final. Terminal values
// are never overwritten by session shutdown propagation.
func (s TaskSessionStatus) IsTerminal() bool {
	return s == TaskSessionCompleted || s == TaskSessionFailed || s == TaskSessionSkipped
}

// Task belongs to a project, optionally nested under a parent task.
// Invariant: t.SessionIDs contains s.ID iff s.TaskIDs contains t.ID.
type Task struct {
	ID                  string                       `json:"id"`
	ProjectID           string                       `json:"projectId"`
	ParentID            string                       `json:"parentId,omitempty"`
	Title               string                       `json:"title"`
	Description         string                       `json:"description,omitempty"`
	Status              TaskStatus                   `json:"status"`
	Priority            int                          `json:"priority"`
	SessionIDs          []string                     `json:"sessionIds"`
	TaskSessionStatuses map[string]TaskSessionStatus `json:"taskSessionStatuses,omitempty"`
	Timeline            []TimelineEvent              `json:"timeline,omitempty"`
	InitialPrompt       string                       `json:"initialPrompt,omitempty"`
	SkillIDs            []string                     `json:"skillIds,omitempty"`
	AgentIDs            []string                     `json:"agentIds,omitempty"`
	Dependencies        []string                     `json:"dependencies,omitempty"`
	CreatedAt           time.Time                    `json:"createdAt"`
	UpdatedAt           time.Time                    `json:"updatedAt"`
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.SessionIDs = append([]string(nil), t.SessionIDs...)
	cp.SkillIDs = append([]string(nil), t.SkillIDs...)
	cp.AgentIDs = append([]string(nil), t.AgentIDs...)
	cp.Dependencies = append([]string(nil), t.Dependencies...)
	if t.TaskSessionStatuses != nil {
		cp.TaskSessionStatuses = make(map[string]TaskSessionStatus, len(t.TaskSessionStatuses))
		for k, v := range t.TaskSessionStatuses {
			cp.TaskSessionStatuses[k] = v
		}
	}
	cp.Timeline = cloneTimeline(t.Timeline)
	return &cp
}

// HasSession reports whether the session is linked to this task.
func (t *Task) HasSession(sessionID string) bool {
	for _, id := range t.SessionIDs {
		if id == sessionID {
			return true
		}
	}
	return false
}

// AddSession links a session id, keeping the set duplicate-free.
func (t *Task) AddSession(sessionID string) {
	if !t.HasSession(sessionID) {
		t.SessionIDs = append(t.SessionIDs, sessionID)
	}
}

// RemoveSession unlinks a session id and drops its per-session status.
func (t *Task) RemoveSession(sessionID string) {
	out := t.SessionIDs[:0]
	for _, id := range t.SessionIDs {
		if id != sessionID {
			out = append(out, id)
		}
	}
	t.SessionIDs = out
	delete(t.TaskSessionStatuses, sessionID)
}
