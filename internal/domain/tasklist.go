package domain

import "time"

// TaskList is a named, ordered, duplicate-free sequence of task ids within
// one project. Removing the last task leaves an empty list in place.
type TaskList struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"projectId"`
	Name           string    `json:"name"`
	OrderedTaskIDs []string  `json:"orderedTaskIds"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (l *TaskList) Clone() *TaskList {
	if l == nil {
		return nil
	}
	cp := *l
	cp.OrderedTaskIDs = append([]string(nil), l.OrderedTaskIDs...)
	return &cp
}

// Ordering is a per-(project, entity-type) ordered id list stored
// independently of the entities it orders.
type Ordering struct {
	ProjectID  string    `json:"projectId"`
	EntityType string    `json:"entityType"`
	IDs        []string  `json:"ids"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (o *Ordering) Clone() *Ordering {
	if o == nil {
		return nil
	}
	cp := *o
	cp.IDs = append([]string(nil), o.IDs...)
	return &cp
}

// Template is a role-keyed prompt template with a restorable code default.
type Template struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	IsDefault bool      `json:"isDefault"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy.
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
