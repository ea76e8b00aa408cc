package taskwire

import (
	"time"

	"github.com/google/uuid"
)

// Task is a single to-do item as seen by the user. Timestamps travel as
// RFC 3339 strings on the wire; a nil CompletedAt means the task is still
// upcoming.
type Task struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CreatedAt   string  `json:"created_at"`
	CompletedAt *string `json:"completed_at"`
	EditedAt    *string `json:"edited_at"`
}

// Completed reports whether the task has been marked done.
func (t Task) Completed() bool {
	return t.CompletedAt != nil
}

// ChangeType classifies a task mutation.
type ChangeType string

const (
	ChangeCreate     ChangeType = "create"
	ChangeComplete   ChangeType = "complete"
	ChangeUncomplete ChangeType = "uncomplete"
	ChangeEdit       ChangeType = "edit"
	ChangeDelete     ChangeType = "delete"
)

// ValidChangeTypes returns all valid change types.
func ValidChangeTypes() []ChangeType {
	return []ChangeType{
		ChangeCreate,
		ChangeComplete,
		ChangeUncomplete,
		ChangeEdit,
		ChangeDelete,
	}
}

// IsValid checks if the change type is one of the fixed enum.
func (c ChangeType) IsValid() bool {
	for _, valid := range ValidChangeTypes() {
		if c == valid {
			return true
		}
	}
	return false
}

// RequiresName reports whether the change type carries a task name.
func (c ChangeType) RequiresName() bool {
	return c == ChangeCreate || c == ChangeEdit
}

// Change is the atomic unit of mutation. The ID is a client-generated UUID
// and doubles as the idempotency key: the server applies a given ID's effect
// at most once no matter how often the change is retransmitted.
type Change struct {
	ID        string     `json:"id"`
	Type      ChangeType `json:"type"`
	TaskID    string     `json:"task_id"`
	TaskName  string     `json:"task_name,omitempty"`
	CreatedAt string     `json:"created_at"`

	// LastError carries the most recent per-record sync error. It is
	// client-local bookkeeping; the server ignores it on resubmission.
	LastError string `json:"lastError,omitempty"`
}

// Failed reports whether the change carries an unrecoverable sync error.
func (c Change) Failed() bool {
	return c.LastError != ""
}

// NewTaskID generates a task ID. Client-generated UUIDs keep two offline
// clients from ever colliding.
func NewTaskID() string {
	return uuid.NewString()
}

// NewChange builds a change with a fresh UUID and the current UTC time.
// TaskName is only meaningful for create and edit.
func NewChange(typ ChangeType, taskID, taskName string) Change {
	return Change{
		ID:        uuid.NewString(),
		Type:      typ,
		TaskID:    taskID,
		TaskName:  taskName,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// OutcomeType is the per-record result of applying a change server-side.
type OutcomeType string

const (
	OutcomeOK        OutcomeType = "ok"
	OutcomeDuplicate OutcomeType = "duplicate"
	OutcomeError     OutcomeType = "error"
)

// Outcome is the server's verdict on one change record. Duplicate is a
// success terminal state: the effect was already applied by an earlier
// delivery.
type Outcome struct {
	Type  OutcomeType `json:"type"`
	Error string      `json:"error,omitempty"`
}

// Settled reports whether the change may be dropped from the changelog.
func (o Outcome) Settled() bool {
	return o.Type == OutcomeOK || o.Type == OutcomeDuplicate
}

// SyncStatus maps change IDs to outcomes for one sync batch.
type SyncStatus map[string]Outcome

// SyncResponse is the body of a successful POST /api/sync.
type SyncResponse struct {
	SyncStatus SyncStatus `json:"syncStatus"`
}

// Page is one page of a partitioned task listing.
type Page struct {
	Data        []Task  `json:"data"`
	NextPageURL *string `json:"next_page_url"`
}

// Partition names one of the two task listings.
type Partition string

const (
	PartitionUpcoming  Partition = "upcoming"
	PartitionCompleted Partition = "completed"
)

// MaxTaskNameLength bounds task names, matching the server's validation.
const MaxTaskNameLength = 255
