// Package events defines the event topics used across the Maestro event system.
package events

// Project topics
const (
	ProjectCreated = "project:created"
	ProjectUpdated = "project:updated"
	ProjectDeleted = "project:deleted"
)

// Task topics
const (
	TaskCreated        = "task:created"
	TaskUpdated        = "task:updated"
	TaskDeleted        = "task:deleted"
	TaskSessionAdded   = "task:session_added"
	TaskSessionRemoved = "task:session_removed"
)

// Session topics
const (
	SessionCreated     = "session:created"
	SessionUpdated     = "session:updated"
	SessionDeleted     = "session:deleted"
	SessionTaskAdded   = "session:task_added"
	SessionTaskRemoved = "session:task_removed"
	SessionPromptSend  = "session:prompt_send"
)

// Mail topics
const (
	MailReceived = "mail:received"
	MailDeleted  = "mail:deleted"
)

// Team and member topics
const (
	TeamCreated        = "team:created"
	TeamUpdated        = "team:updated"
	TeamDeleted        = "team:deleted"
	TeamMemberCreated  = "team_member:created"
	TeamMemberUpdated  = "team_member:updated"
	TeamMemberArchived = "team_member:archived"
	TeamMemberDeleted  = "team_member:deleted"
)

// Task list topics
const (
	TaskListCreated = "task_list:created"
	TaskListUpdated = "task_list:updated"
	TaskListDeleted = "task_list:deleted"
)

// Notification topics. These carry lightweight records for UI toasts and
// coordinator agents; the full entity travels on the matching entity topic.
const (
	NotifyTaskCompleted        = "notify:task_completed"
	NotifyTaskFailed           = "notify:task_failed"
	NotifyTaskBlocked          = "notify:task_blocked"
	NotifyTaskSessionCompleted = "notify:task_session_completed"
	NotifyTaskSessionFailed    = "notify:task_session_failed"
	NotifySessionCompleted     = "notify:session_completed"
	NotifySessionFailed        = "notify:session_failed"
	NotifyNeedsInput           = "notify:needs_input"
	NotifyProgress             = "notify:progress"
)

// BroadcastTopics is the fixed set the WebSocket bridge relays to clients.
var BroadcastTopics = []string{
	ProjectCreated, ProjectUpdated, ProjectDeleted,
	TaskCreated, TaskUpdated, TaskDeleted,
	TaskSessionAdded, TaskSessionRemoved,
	SessionCreated, SessionUpdated, SessionDeleted,
	SessionTaskAdded, SessionTaskRemoved, SessionPromptSend,
	MailReceived, MailDeleted,
	TeamCreated, TeamUpdated, TeamDeleted,
	TeamMemberCreated, TeamMemberUpdated, TeamMemberArchived, TeamMemberDeleted,
	TaskListCreated, TaskListUpdated, TaskListDeleted,
	NotifyTaskCompleted, NotifyTaskFailed, NotifyTaskBlocked,
	NotifyTaskSessionCompleted, NotifyTaskSessionFailed,
	NotifySessionCompleted, NotifySessionFailed,
	NotifyNeedsInput, NotifyProgress,
}
