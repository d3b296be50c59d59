// Package commit commits the candidate configuration and follows the
// resulting job, with an optional approval gate in front of the commit.
package commit

import (
	"fmt"
	"strings"
)

// DefaultDescription is used when a commit request has none.
const DefaultDescription = "Committed by fwauto"

// Message prefixes beyond the object package's [OK]/[ERROR].
const (
	PrefixOK       = "[OK]"
	PrefixError    = "[ERROR]"
	PrefixTimeout  = "[TIMEOUT]"
	PrefixPending  = "[PENDING]"
	PrefixRejected = "[REJECTED]"
)

// Request describes one commit.
type Request struct {
	Description string `json:"description,omitempty"`

	// PartialAdmins limits the commit to changes made by these admins.
	PartialAdmins []string `json:"partial_admins,omitempty"`

	RequireApproval bool   `json:"require_approval,omitempty"`
	Async           bool   `json:"async,omitempty"`
	RequestedBy     string `json:"requested_by,omitempty"`
}

// Status is the terminal status of a commit run.
type Status int

const (
	Success Status = iota
	Error
	Timeout
	Rejected
	Submitted
	AwaitingApproval
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Error:
		return "error"
	case Timeout:
		return "timeout"
	case Rejected:
		return "rejected"
	case Submitted:
		return "submitted"
	case AwaitingApproval:
		return "awaiting_approval"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// JobStatus is the lifecycle state of a device job.
type JobStatus int

const (
	JobPending JobStatus = iota
	JobActive
	JobFinished
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobActive:
		return "active"
	case JobFinished:
		return "finished"
	case JobFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Terminal reports whether polling can stop.
func (s JobStatus) Terminal() bool {
	return s == JobFinished || s == JobFailed
}

// parseJobStatus maps the device's status/result pair. A FIN job whose
// result is not OK has failed.
func parseJobStatus(status, result string) JobStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "FIN":
		if strings.EqualFold(strings.TrimSpace(result), "OK") {
			return JobFinished
		}
		return JobFailed
	case "ACT":
		return JobActive
	case "FAIL":
		return JobFailed
	default:
		return JobPending
	}
}

// Job is a commit job as last seen by polling.
type Job struct {
	ID       string    `json:"id"`
	Status   JobStatus `json:"-"`
	Progress int       `json:"progress"`
	Result   string    `json:"result,omitempty"`
	Details  string    `json:"details,omitempty"`
}

// Outcome is the result of Run or Resume.
type Outcome struct {
	Status   Status `json:"status"`
	JobID    string `json:"job_id,omitempty"`
	Job      *Job   `json:"job,omitempty"`
	TicketID string `json:"ticket_id,omitempty"`
	Polls    int    `json:"polls,omitempty"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
}

// OK reports whether the commit went through or was handed off without
// failing. Timeout counts: the job may still complete on the device.
func (o Outcome) OK() bool {
	return o.Status != Error && o.Status != Rejected
}
