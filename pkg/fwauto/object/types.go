// Package object runs create/read/update/delete/list operations against the
// device as a small state machine with idempotency modes, error
// classification and retries.
package object

import (
	"fmt"
	"strings"

	"github.com/fwauto/fwauto/pkg/util"
)

// Operation is the closed set of object operations.
type Operation int

const (
	Create Operation = iota + 1
	Read
	Update
	Delete
	List
)

func (o Operation) String() string {
	switch o {
	case Create:
		return "create"
	case Read:
		return "read"
	case Update:
		return "update"
	case Delete:
		return "delete"
	case List:
		return "list"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// ParseOperation accepts the lowercase operation names.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create":
		return Create, nil
	case "read", "get", "show":
		return Read, nil
	case "update", "edit":
		return Update, nil
	case "delete", "remove":
		return Delete, nil
	case "list":
		return List, nil
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// Mode controls what happens when existence does not match the operation.
type Mode int

const (
	// ModeDefault resolves to ModeSkipIfExists for Create and ModeStrict
	// for everything else.
	ModeDefault Mode = iota
	ModeStrict
	ModeSkipIfExists
	ModeSkipIfMissing
)

func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "strict"
	case ModeSkipIfExists:
		return "skip_if_exists"
	case ModeSkipIfMissing:
		return "skip_if_missing"
	default:
		return "default"
	}
}

// ParseMode accepts mode names with '_' or '-' separators.
func ParseMode(s string) (Mode, error) {
	switch util.Underscore(strings.ToLower(strings.TrimSpace(s))) {
	case "", "default":
		return ModeDefault, nil
	case "strict":
		return ModeStrict, nil
	case "skip_if_exists":
		return ModeSkipIfExists, nil
	case "skip_if_missing":
		return ModeSkipIfMissing, nil
	}
	return ModeDefault, fmt.Errorf("unknown mode %q", s)
}

// Resolve maps ModeDefault to the operation's default mode.
func (m Mode) Resolve(op Operation) Mode {
	if m != ModeDefault {
		return m
	}
	if op == Create {
		return ModeSkipIfExists
	}
	return ModeStrict
}

// Request is one object operation.
type Request struct {
	Operation  Operation
	ObjectType string
	ObjectName string
	Payload    map[string]any
	Mode       Mode

	// Filter is a glob applied to names returned by List.
	Filter string
}

// Status is the terminal status of an operation.
type Status int

const (
	Success Status = iota
	Skipped
	Error
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	default:
		return "error"
	}
}

// Reasons attached to skipped and existence-related error outcomes.
const (
	ReasonAlreadyExists = "already_exists"
	ReasonNotFound      = "not_found"
)

// Outcome is the result of one Execute call. Every call returns one,
// including calls that fail or panic.
type Outcome struct {
	Status     Status         `json:"status"`
	Operation  Operation      `json:"-"`
	ObjectType string         `json:"object_type"`
	ObjectName string         `json:"object_name,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Category   string         `json:"category,omitempty"`
	Message    string         `json:"message"`
	XPath      string         `json:"xpath,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Names      []string       `json:"names,omitempty"`
	Count      int            `json:"count,omitempty"`
	Attempts   int            `json:"attempts,omitempty"`
	Err        error          `json:"-"`
}

// OK reports whether the outcome counts as success. Skipped outcomes do.
func (o Outcome) OK() bool {
	return o.Status != Error
}
