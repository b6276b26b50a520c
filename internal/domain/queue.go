package domain

import "time"

// QueueItemStatus is the state of one queued task. Statuses are monotone:
// once completed, failed or skipped an item never reverts.
type QueueItemStatus string

const (
	QueueItemQueued     QueueItemStatus = "queued"
	QueueItemProcessing QueueItemStatus = "processing"
	QueueItemCompleted  QueueItemStatus = "completed"
	QueueItemFailed     QueueItemStatus = "failed"
	QueueItemSkipped    QueueItemStatus = "skipped"
)

// QueueItem is one task slot in a session's work queue.
type QueueItem struct {
	TaskID      string          `json:"taskId"`
	Status      QueueItemStatus `json:"status"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	FailReason  string          `json:"failReason,omitempty"`
}

// Queue is the FIFO work queue of one session.
// Invariant: CurrentIndex is -1 iff no item is processing; otherwise it
// points at the single processing item.
type Queue struct {
	ID           string      `json:"id"`
	SessionID    string      `json:"sessionId"`
	Items        []QueueItem `json:"items"`
	CurrentIndex int         `json:"currentIndex"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Clone returns a deep copy.
func (q *Queue) Clone() *Queue {
	if q == nil {
		return nil
	}
	cp := *q
	cp.Items = make([]QueueItem, len(q.Items))
	for i, item := range q.Items {
		cp.Items[i] = item
		if item.StartedAt != nil {
			t := *item.StartedAt
			cp.Items[i].StartedAt = &t
		}
		if item.CompletedAt != nil {
			t := *item.CompletedAt
			cp.Items[i].CompletedAt = &t
		}
	}
	return &cp
}

// ProcessingIndex returns the index of the processing item, or -1.
func (q *Queue) ProcessingIndex() int {
	for i, item := range q.Items {
		if item.Status == QueueItemProcessing {
			return i
		}
	}
	return -1
}

// Stats counts items by status.
func (q *Queue) Stats() map[QueueItemStatus]int {
	stats := make(map[QueueItemStatus]int)
	for _, item := range q.Items {
		stats[item.Status]++
	}
	return stats
}
