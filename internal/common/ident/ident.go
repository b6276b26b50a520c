// Package ident generates prefixed, monotonically increasing identifiers
// for Maestro entities (sess_..., task_..., mail_...).
package ident

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Entity prefixes. Relationships between aggregates are always by id, so the
// prefix doubles as a lightweight type tag in logs and wire payloads.
const (
	PrefixProject    = "proj"
	PrefixTask       = "task"
	PrefixSession    = "sess"
	PrefixMail       = "mail"
	PrefixEvent      = "evt"
	PrefixDoc        = "doc"
	PrefixTeamMember = "tm"
	PrefixTeam       = "team"
	PrefixTemplate   = "tmpl"
	PrefixTaskList   = "list"
	PrefixQueue      = "q"
)

// counter is seeded from the wall clock so ids stay unique across restarts
// without any persisted state.
var counter atomic.Uint64

func init() {
	counter.Store(uint64(time.Now().UnixNano()))
}

// New returns a fresh identifier with the given prefix. Successive calls
// within a process yield strictly increasing suffixes.
func New(prefix string) string {
	n := counter.Add(1)
	return prefix + "_" + strconv.FormatUint(n, 36)
}

// Project returns a new project id.
func Project() string { return New(PrefixProject) }

// Task returns a new task id.
func Task() string { return New(PrefixTask) }

// Session returns a new session id.
func Session() string { return New(PrefixSession) }

// Mail returns a new mail id.
func Mail() string { return New(PrefixMail) }

// Event returns a new timeline event id.
func Event() string { return New(PrefixEvent) }

// Doc returns a new doc entry id.
func Doc() string { return New(PrefixDoc) }

// TeamMember returns a new team member id.
func TeamMember() string { return New(PrefixTeamMember) }

// Team returns a new team id.
func Team() string { return New(PrefixTeam) }

// Template returns a new template id.
func Template() string { return New(PrefixTemplate) }

// TaskList returns a new task list id.
func TaskList() string { return New(PrefixTaskList) }

// Queue returns a new queue id.
func Queue() string { return New(PrefixQueue) }
