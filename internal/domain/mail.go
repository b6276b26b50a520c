package domain

import "time"

// MailPriority orders inbox delivery. Unset sorts with normal.
type MailPriority string

const (
	MailPriorityCritical MailPriority = "critical"
	MailPriorityHigh     MailPriority = "high"
	MailPriorityNormal   MailPriority = "normal"
	MailPriorityLow      MailPriority = "low"
)

// Rank returns the sort rank for the priority; lower sorts first.
// An unset priority ranks with normal.
func (p MailPriority) Rank() int {
	switch p {
	case MailPriorityCritical:
		return 0
	case MailPriorityHigh:
		return 1
	case MailPriorityLow:
		return 3
	default:
		return 2
	}
}

// Mail is an immutable message between sessions. An empty ToSessionID means
// project-wide broadcast. ThreadID equals the id of the thread root.
type Mail struct {
	ID            string       `json:"id"`
	ProjectID     string       `json:"projectId"`
	FromSessionID string       `json:"fromSessionId"`
	ToSessionID   string       `json:"toSessionId,omitempty"`
	ReplyToMailID string       `json:"replyToMailId,omitempty"`
	ThreadID      string       `json:"threadId"`
	Type          string       `json:"type,omitempty"`
	Subject       string       `json:"subject"`
	Body          string       `json:"body"`
	Priority      MailPriority `json:"priority,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Clone returns a copy. Mail has no reference fields, so a value copy is deep.
func (m *Mail) Clone() *Mail {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}
