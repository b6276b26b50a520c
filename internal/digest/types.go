// Package digest builds text-only activity summaries for sessions by
// reading the agent's external JSONL log on demand. The service is
// stateless apart from a short-lived path resolution cache.
package digest

import "time"

// Log source formats.
const (
	SourceClaude = "claude"
	SourceCodex  = "codex"
)

// Digest states derived from session status.
const (
	StateActive     = "active"
	StateIdle       = "idle"
	StateNeedsInput = "needs_input"
)

// Entry is one kept text item from the log tail.
type Entry struct {
	Source    string    `json:"source"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Stuck flags a session that keeps invoking tools without producing text.
type Stuck struct {
	ToolCallsSinceLastText int    `json:"toolCallsSinceLastText"`
	Warning                string `json:"warning"`
}

// Digest is the summary returned for one session.
type Digest struct {
	SessionID string  `json:"sessionId"`
	State     string  `json:"state"`
	Source    string  `json:"source,omitempty"`
	Entries   []Entry `json:"entries"`
	Stuck     *Stuck  `json:"stuck,omitempty"`
}

// Options tune digest extraction.
type Options struct {
	// Last limits the number of returned entries (most recent kept); 0
	// means no limit.
	Last int
	// MaxLength truncates each entry to this many runes. Nil applies the
	// 150 default; an explicit 0 disables the length cut.
	MaxLength *int
}

// item is a parsed log line before filtering. Tool-use items never reach
// the digest but drive stuck detection.
type item struct {
	role      string
	text      string
	isText    bool
	isToolUse bool
	isPrompt  bool
	timestamp time.Time
}
