package domain

import "time"

// SessionStatus is the lifecycle state of an agent session.
type SessionStatus string

const (
	SessionStatusSpawning   SessionStatus = "spawning"
	SessionStatusIdle       SessionStatus = "idle"
	SessionStatusWorking    SessionStatus = "working"
	SessionStatusNeedsInput SessionStatus = "needs_input"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
	SessionStatusStopped    SessionStatus = "stopped"
)

// ValidSessionStatus reports whether s is a known session status.
func ValidSessionStatus(s SessionStatus) bool {
	switch s {
	case SessionStatusSpawning, SessionStatusIdle, SessionStatusWorking,
		SessionStatusNeedsInput, SessionStatusCompleted, SessionStatusFailed,
		SessionStatusStopped:
		return true
	}
	return false
}

// IsTerminal reports whether the status is final. "completed" additionally
// absorbs later transitions to "stopped" or "failed".
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed || s == SessionStatusStopped
}

// IsActive reports whether a session in this status receives mail fan-out.
// A needs_input session is neither active nor terminal.
func (s SessionStatus) IsActive() bool {
	return s == SessionStatusWorking || s == SessionStatusIdle || s == SessionStatusSpawning
}

// Timeline event types.
const (
	TimelineTaskStarted    = "task_started"
	TimelineTaskCompleted  = "task_completed"
	TimelineTaskSkipped    = "task_skipped"
	TimelineProgress       = "progress"
	TimelineNeedsInput     = "needs_input"
	TimelineSessionStopped = "session_stopped"
	TimelineDocAdded       = "doc_added"
	TimelinePromptReceived = "prompt_received"
)

// TimelineEvent is an ordered entry in a session's (or task's) history.
type TimelineEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Message   string                 `json:"message,omitempty"`
	TaskID    string                 `json:"taskId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func cloneTimeline(events []TimelineEvent) []TimelineEvent {
	if events == nil {
		return nil
	}
	out := make([]TimelineEvent, len(events))
	for i, e := range events {
		out[i] = e
		if e.Metadata != nil {
			out[i].Metadata = make(map[string]interface{}, len(e.Metadata))
			for k, v := range e.Metadata {
				out[i].Metadata[k] = v
			}
		}
	}
	return out
}

// NeedsInput tracks whether the agent behind a session is waiting on a human.
type NeedsInput struct {
	Active  bool       `json:"active"`
	Message string     `json:"message,omitempty"`
	Since   *time.Time `json:"since,omitempty"`
}

// DocEntry is a document a session produced or registered.
type DocEntry struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Path    string    `json:"path,omitempty"`
	AddedAt time.Time `json:"addedAt"`
}

// Session is one agent terminal managed by the host.
// Invariant: s.TaskIDs contains t.ID iff t.SessionIDs contains s.ID.
type Session struct {
	ID                 string                 `json:"id"`
	ProjectID          string                 `json:"projectId"`
	TaskIDs            []string               `json:"taskIds"`
	Status             SessionStatus          `json:"status"`
	NeedsInput         NeedsInput             `json:"needsInput"`
	Env                map[string]string      `json:"env,omitempty"`
	TeamMemberID       string                 `json:"teamMemberId,omitempty"`
	TeamMemberSnapshot map[string]interface{} `json:"teamMemberSnapshot,omitempty"`
	ParentSessionID    string                 `json:"parentSessionId,omitempty"`
	Role               string                 `json:"role,omitempty"` // worker | orchestrator
	Timeline           []TimelineEvent        `json:"timeline,omitempty"`
	Docs               []DocEntry             `json:"docs,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.TaskIDs = append([]string(nil), s.TaskIDs...)
	if s.Env != nil {
		cp.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			cp.Env[k] = v
		}
	}
	if s.TeamMemberSnapshot != nil {
		cp.TeamMemberSnapshot = make(map[string]interface{}, len(s.TeamMemberSnapshot))
		for k, v := range s.TeamMemberSnapshot {
			cp.TeamMemberSnapshot[k] = v
		}
	}
	if s.NeedsInput.Since != nil {
		since := *s.NeedsInput.Since
		cp.NeedsInput.Since = &since
	}
	cp.Timeline = cloneTimeline(s.Timeline)
	cp.Docs = append([]DocEntry(nil), s.Docs...)
	return &cp
}

// HasTask reports whether the task is linked to this session.
func (s *Session) HasTask(taskID string) bool {
	for _, id := range s.TaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// AddTask links a task id, keeping the set duplicate-free.
func (s *Session) AddTask(taskID string) {
	if !s.HasTask(taskID) {
		s.TaskIDs = append(s.TaskIDs, taskID)
	}
}

// RemoveTask unlinks a task id.
func (s *Session) RemoveTask(taskID string) {
	out := s.TaskIDs[:0]
	for _, id := range s.TaskIDs {
		if id != taskID {
			out = append(out, id)
		}
	}
	s.TaskIDs = out
}
