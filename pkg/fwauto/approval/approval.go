// Package approval holds commit approval tickets between the request and
// the decision. The decision may come from another process, so tickets can
// live in Redis as well as in memory.
package approval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("approval ticket not found")
	ErrAlreadyDecided = errors.New("approval ticket already decided")
)

// DefaultTTL is how long an undecided ticket is kept.
const DefaultTTL = 24 * time.Hour

// State of a ticket.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// Ticket is one pending request for approval. Payload is opaque to the
// store; the commit machine keeps its serialized request there.
type Ticket struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Summary     string    `json:"summary"`
	Payload     string    `json:"payload,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	State       State     `json:"state"`
	DecidedBy   string    `json:"decided_by,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	DecidedAt   time.Time `json:"decided_at,omitempty"`
}

// NewTicket returns a pending ticket with a fresh id. A ttl <= 0 means
// DefaultTTL.
func NewTicket(subject, summary, payload, requestedBy string, ttl time.Duration) *Ticket {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now().UTC()
	return &Ticket{
		ID:          uuid.New().String(),
		Subject:     subject,
		Summary:     summary,
		Payload:     payload,
		RequestedBy: requestedBy,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		State:       StatePending,
	}
}

// Expired reports whether the ticket's TTL has passed at now.
func (t *Ticket) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// Decided reports whether a decision has been recorded.
func (t *Ticket) Decided() bool {
	return t.State != StatePending
}

// Approved reports whether the recorded decision is positive.
func (t *Ticket) Approved() bool {
	return t.State == StateApproved
}

// Decision answers a ticket.
type Decision struct {
	Approve bool
	By      string
	Reason  string
}

// Approve returns a positive decision.
func Approve(by string) Decision {
	return Decision{Approve: true, By: by}
}

// Reject returns a negative decision.
func Reject(by, reason string) Decision {
	return Decision{By: by, Reason: reason}
}

func (d Decision) state() State {
	if d.Approve {
		return StateApproved
	}
	return StateRejected
}

// Store persists tickets. A ticket accepts exactly one decision; later
// ones fail with ErrAlreadyDecided. Expired tickets are reported as
// ErrNotFound.
type Store interface {
	Create(ctx context.Context, t *Ticket) error
	Get(ctx context.Context, id string) (*Ticket, error)
	Decide(ctx context.Context, id string, d Decision) (*Ticket, error)
}
