package commit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/fwauto/fwauto/pkg/fwauto/approval"
	"github.com/fwauto/fwauto/pkg/fwauto/device/panos"
	"github.com/fwauto/fwauto/pkg/fwauto/metrics"
	"github.com/fwauto/fwauto/pkg/util"
)

// Polling defaults: five minutes in total.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxPolls     = 60
)

// ticketSubject marks approval tickets created by this package.
const ticketSubject = "commit"

// Machine runs commits. It is safe for concurrent use.
type Machine struct {
	api       panos.API
	approvals approval.Store
	ticketTTL time.Duration
	interval  time.Duration
	maxPolls  int
	metrics   *metrics.Metrics
	sleep     func(context.Context, time.Duration) error
}

// Option configures a Machine.
type Option func(*Machine)

// WithApprovalStore sets where approval tickets are kept. Without one a
// process-local MemoryStore is used.
func WithApprovalStore(s approval.Store) Option {
	return func(m *Machine) { m.approvals = s }
}

// WithTicketTTL sets how long an approval ticket stays open.
func WithTicketTTL(d time.Duration) Option {
	return func(m *Machine) { m.ticketTTL = d }
}

// WithPolling overrides the poll interval and attempt ceiling.
func WithPolling(interval time.Duration, maxPolls int) Option {
	return func(m *Machine) {
		m.interval = interval
		m.maxPolls = maxPolls
	}
}

// WithMetrics records commit outcomes and poll counts.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithSleep replaces the wait between polls.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(m *Machine) { m.sleep = fn }
}

// NewMachine returns a commit machine talking to api.
func NewMachine(api panos.API, opts ...Option) *Machine {
	m := &Machine{
		api:       api,
		ticketTTL: approval.DefaultTTL,
		interval:  DefaultPollInterval,
		maxPolls:  DefaultMaxPolls,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.approvals == nil {
		m.approvals = approval.NewMemoryStore()
	}
	if m.maxPolls < 1 {
		m.maxPolls = 1
	}
	return m
}

// Approvals returns the store tickets are kept in.
func (m *Machine) Approvals() approval.Store {
	return m.approvals
}

type state int

const (
	stateValidateInput state = iota
	stateCheckApproval
	stateExecuteCommit
	statePollJobStatus
	stateFormatResponse
	stateDone
)

func (s state) String() string {
	return [...]string{
		"ValidateInput", "CheckApproval", "ExecuteCommit",
		"PollJobStatus", "FormatResponse", "Done",
	}[s]
}

type run struct {
	req      Request
	approved bool
	out      Outcome
}

// Run commits per req. With RequireApproval the run stops at the approval
// gate and returns AwaitingApproval with a ticket id; pass that id to
// Resume once a decision exists.
func (m *Machine) Run(ctx context.Context, req Request) Outcome {
	return m.execute(ctx, &run{req: req}, stateValidateInput)
}

// Resume records decision on ticketID and, when approved, carries on with
// the commit that created the ticket. A rejection ends the run without
// committing. Tickets that do not belong to a commit are left undecided.
func (m *Machine) Resume(ctx context.Context, ticketID string, decision approval.Decision) Outcome {
	r := &run{out: Outcome{TicketID: ticketID}}

	t, err := m.approvals.Get(ctx, ticketID)
	if err != nil {
		m.fail(r, err)
		return m.finish(r)
	}
	if t.Subject != ticketSubject {
		m.fail(r, fmt.Errorf("ticket %s is not a commit ticket", ticketID))
		return m.finish(r)
	}
	if err := json.Unmarshal([]byte(t.Payload), &r.req); err != nil {
		m.fail(r, fmt.Errorf("decoding ticket %s: %w", ticketID, err))
		return m.finish(r)
	}

	if t, err = m.approvals.Decide(ctx, ticketID, decision); err != nil {
		m.fail(r, err)
		return m.finish(r)
	}
	if !t.Approved() {
		r.out.Status = Rejected
		r.out.Message = rejectedMessage(t)
		return m.finish(r)
	}
	r.approved = true
	return m.execute(ctx, r, stateExecuteCommit)
}

func (m *Machine) execute(ctx context.Context, r *run, st state) (out Outcome) {
	log := util.WithOperation("commit")
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("Recovered panic: %v", p)
			r.out.Status = Error
			r.out.Category = util.CategoryUnexpected
			r.out.Err = fmt.Errorf("panic: %s: %v", util.TypeName(p), p)
			r.out.Message = fmt.Sprintf("%s Commit failed (%s): %s: %v", PrefixError, util.CategoryUnexpected, util.TypeName(p), p)
			out = m.finish(r)
		}
	}()

	for st != stateDone {
		next := m.step(ctx, r, st)
		log.Debugf("%s -> %s", st, next)
		st = next
	}
	return m.finish(r)
}

func (m *Machine) step(ctx context.Context, r *run, st state) state {
	switch st {
	case stateValidateInput:
		r.req.Description = strings.TrimSpace(r.req.Description)
		if r.req.Description == "" {
			r.req.Description = DefaultDescription
		}
		return stateCheckApproval
	case stateCheckApproval:
		return m.checkApproval(ctx, r)
	case stateExecuteCommit:
		return m.executeCommit(ctx, r)
	case statePollJobStatus:
		return m.poll(ctx, r)
	case stateFormatResponse:
		if r.out.Message == "" {
			r.out.Message = fmt.Sprintf("%s Commit job %s completed", PrefixOK, r.out.JobID)
		}
		return stateDone
	}
	panic(fmt.Sprintf("commit: unhandled state %d", int(st)))
}

func (m *Machine) checkApproval(ctx context.Context, r *run) state {
	if !r.req.RequireApproval || r.approved {
		return stateExecuteCommit
	}

	payload, err := json.Marshal(r.req)
	if err != nil {
		return m.fail(r, err)
	}
	t := approval.NewTicket(ticketSubject, r.req.Description, string(payload), r.req.RequestedBy, m.ticketTTL)
	if err := m.approvals.Create(ctx, t); err != nil {
		return m.fail(r, fmt.Errorf("creating approval ticket: %w", err))
	}

	util.WithField("ticket", t.ID).Infof("Commit %q awaiting approval", r.req.Description)
	r.out.Status = AwaitingApproval
	r.out.TicketID = t.ID
	r.out.Message = fmt.Sprintf("%s Commit %q awaiting approval, ticket %s", PrefixPending, r.req.Description, t.ID)
	return stateDone
}

func (m *Machine) executeCommit(ctx context.Context, r *run) state {
	cmd, err := commitCommand(r.req)
	if err != nil {
		return m.fail(r, err)
	}
	resp, err := m.api.Do(ctx, panos.Commit(cmd))
	if err != nil {
		return m.fail(r, err)
	}

	jobID := resp.Text("job")
	if jobID == "" {
		r.out.Status = Success
		msg := resp.Message
		if msg == "" {
			msg = "There are no changes to commit."
		}
		r.out.Message = fmt.Sprintf("%s Nothing committed: %s", PrefixOK, msg)
		return stateFormatResponse
	}
	r.out.JobID = jobID
	util.WithJob(jobID).Infof("Commit submitted: %s", r.req.Description)

	if r.req.Async {
		r.out.Status = Submitted
		r.out.Message = fmt.Sprintf("%s Commit submitted as job %s", PrefixOK, jobID)
		return stateFormatResponse
	}
	return statePollJobStatus
}

func (m *Machine) poll(ctx context.Context, r *run) state {
	log := util.WithJob(r.out.JobID)
	cmd := fmt.Sprintf("<show><jobs><id>%s</id></jobs></show>", r.out.JobID)

	for attempt := 1; attempt <= m.maxPolls; attempt++ {
		r.out.Polls = attempt

		job, err := m.pollOnce(ctx, cmd, r.out.JobID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return m.fail(r, ctx.Err())
			}
			log.Warnf("Poll %d/%d failed: %v", attempt, m.maxPolls, err)
		case job.Status == JobFinished:
			r.out.Job = job
			r.out.Status = Success
			r.out.Message = fmt.Sprintf("%s Commit job %s finished: %s", PrefixOK, job.ID, job.Result)
			return stateFormatResponse
		case job.Status == JobFailed:
			r.out.Job = job
			r.out.Status = Error
			r.out.Category = util.CategoryAPI
			details := job.Details
			if details == "" {
				details = "no details reported"
			}
			r.out.Err = util.NewAPIError("", details)
			r.out.Message = fmt.Sprintf("%s Commit job %s failed: %s", PrefixError, job.ID, details)
			return stateFormatResponse
		default:
			r.out.Job = job
			log.Debugf("Job %s at %d%%", job.Status, job.Progress)
		}

		if attempt == m.maxPolls {
			break
		}
		if err := m.sleep(ctx, m.interval); err != nil {
			return m.fail(r, err)
		}
	}

	r.out.Status = Timeout
	r.out.Category = util.CategoryTimeout
	r.out.Err = &util.TimeoutError{JobID: r.out.JobID, Attempts: r.out.Polls}
	r.out.Message = fmt.Sprintf("%s Commit job %s still running after %d polls, check the job on the device",
		PrefixTimeout, r.out.JobID, r.out.Polls)
	return stateFormatResponse
}

func (m *Machine) pollOnce(ctx context.Context, cmd, jobID string) (*Job, error) {
	resp, err := m.api.Do(ctx, panos.Op(cmd))
	if err != nil {
		return nil, err
	}
	if resp.Result == nil || resp.Result.FindElement(".//job") == nil {
		return nil, fmt.Errorf("job %s missing from response", jobID)
	}
	job := &Job{
		ID:      jobID,
		Status:  parseJobStatus(resp.Text(".//job/status"), resp.Text(".//job/result")),
		Result:  resp.Text(".//job/result"),
		Details: resp.Lines(".//job/details"),
	}
	job.Progress, _ = strconv.Atoi(resp.Text(".//job/progress"))
	return job, nil
}

func (m *Machine) fail(r *run, err error) state {
	r.out.Status = Error
	r.out.Category = util.Category(err)
	if errors.Is(err, approval.ErrNotFound) || errors.Is(err, approval.ErrAlreadyDecided) {
		r.out.Category = util.CategoryValidation
	}
	r.out.Err = err
	r.out.Message = fmt.Sprintf("%s Commit failed (%s): %v", PrefixError, r.out.Category, err)
	return stateFormatResponse
}

// finish records metrics once per run.
func (m *Machine) finish(r *run) Outcome {
	m.metrics.RecordCommit(r.out.Status.String(), r.out.Polls)
	return r.out
}

func rejectedMessage(t *approval.Ticket) string {
	msg := fmt.Sprintf("%s Commit %q rejected", PrefixRejected, t.Summary)
	if t.DecidedBy != "" {
		msg += " by " + t.DecidedBy
	}
	if t.Reason != "" {
		msg += ": " + t.Reason
	}
	return msg + ", nothing committed"
}

// commitCommand renders <commit><description/>[<partial/>]</commit>.
func commitCommand(req Request) (string, error) {
	doc := etree.NewDocument()
	root := doc.CreateElement("commit")
	root.CreateElement("description").SetText(req.Description)
	if len(req.PartialAdmins) > 0 {
		admin := root.CreateElement("partial").CreateElement("admin")
		for _, a := range req.PartialAdmins {
			admin.CreateElement("member").SetText(a)
		}
	}
	return doc.WriteToString()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
