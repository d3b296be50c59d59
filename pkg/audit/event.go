// Package audit records who changed what on the device.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/fwauto/fwauto/pkg/fwauto/diff"
)

// Event is one auditable action.
type Event struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	User       string             `json:"user"`
	Device     string             `json:"device"`
	Scope      string             `json:"scope,omitempty"`
	Type       EventType          `json:"type"`
	Operation  string             `json:"operation"`
	ObjectType string             `json:"object_type,omitempty"`
	ObjectName string             `json:"object_name,omitempty"`
	Workflow   string             `json:"workflow,omitempty"`
	JobID      string             `json:"job_id,omitempty"`
	TicketID   string             `json:"ticket_id,omitempty"`
	Status     string             `json:"status"`
	Changes    []diff.FieldChange `json:"changes,omitempty"`
	Success    bool               `json:"success"`
	Error      string             `json:"error,omitempty"`
	Duration   time.Duration      `json:"duration"`
}

// EventType categorizes audit events
type EventType string

const (
	EventTypeMutation EventType = "mutation"
	EventTypeCommit   EventType = "commit"
	EventTypeApproval EventType = "approval"
	EventTypeWorkflow EventType = "workflow"
)

// Filter defines criteria for querying audit events
type Filter struct {
	Device      string
	User        string
	Type        EventType
	Operation   string
	ObjectType  string
	ObjectName  string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, device string, typ EventType, operation string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Type:      typ,
		Operation: operation,
	}
}

// WithScope sets the vsys, device group or template the event applied to.
func (e *Event) WithScope(scope string) *Event {
	e.Scope = scope
	return e
}

// WithObject sets the object the event applied to.
func (e *Event) WithObject(objectType, name string) *Event {
	e.ObjectType = objectType
	e.ObjectName = name
	return e
}

// WithWorkflow sets the workflow name
func (e *Event) WithWorkflow(name string) *Event {
	e.Workflow = name
	return e
}

// WithJob sets the commit job and approval ticket ids.
func (e *Event) WithJob(jobID, ticketID string) *Event {
	e.JobID = jobID
	e.TicketID = ticketID
	return e
}

// WithChanges sets the field changes
func (e *Event) WithChanges(changes []diff.FieldChange) *Event {
	e.Changes = changes
	return e
}

// WithStatus records the outcome status and whether it counts as success.
func (e *Event) WithStatus(status string, ok bool) *Event {
	e.Status = status
	e.Success = ok
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}
