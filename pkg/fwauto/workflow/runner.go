package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fwauto/fwauto/pkg/fwauto/commit"
	"github.com/fwauto/fwauto/pkg/fwauto/metrics"
	"github.com/fwauto/fwauto/pkg/fwauto/object"
	"github.com/fwauto/fwauto/pkg/util"
)

// Source resolves workflow names. Catalog and Store implement it.
type Source interface {
	Lookup(name string) (*Workflow, bool)
}

// RunStatus is the overall result of a workflow run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunSuspended RunStatus = "suspended"
)

// Step statuses beyond the object and commit status names.
const (
	StepSkippedAfterFailure = "not_run"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Index   int             `json:"index"`
	Name    string          `json:"name"`
	Action  Action          `json:"action"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	OK      bool            `json:"ok"`
	Object  *object.Outcome `json:"object,omitempty"`
	Commit  *commit.Outcome `json:"commit,omitempty"`
	Changes int             `json:"changes,omitempty"`
}

// Result is the outcome of a workflow run.
type Result struct {
	Workflow string            `json:"workflow"`
	Params   map[string]string `json:"params"`
	Status   RunStatus         `json:"status"`
	Steps    []StepResult      `json:"steps"`
	TicketID string            `json:"ticket_id,omitempty"`
	Message  string            `json:"message"`
}

// Succeeded counts steps that finished OK.
func (r *Result) Succeeded() int {
	n := 0
	for _, s := range r.Steps {
		if s.OK {
			n++
		}
	}
	return n
}

// Runner executes workflows step by step.
type Runner struct {
	source  Source
	objects *object.Engine
	commits *commit.Machine
	metrics *metrics.Metrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerMetrics records one observation per executed step.
func WithRunnerMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a runner over the given workflows and engines.
func NewRunner(source Source, objects *object.Engine, commits *commit.Machine, opts ...RunnerOption) *Runner {
	r := &Runner{source: source, objects: objects, commits: commits}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveParams merges params with the workflow's defaults and checks the
// required ones. Blank values count as missing.
func ResolveParams(wf *Workflow, params map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(params)+len(wf.Defaults))
	for k, v := range wf.Defaults {
		resolved[k] = v
	}
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			resolved[k] = strings.TrimSpace(v)
		}
	}

	var missing []string
	for _, p := range wf.RequiredParams {
		if resolved[p] == "" {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, util.NewValidationError(fmt.Sprintf("workflow %s: missing required params: %s", wf.Name, strings.Join(missing, ", ")))
	}
	return resolved, nil
}

// Run executes the named workflow. The error is non-nil only when the run
// could not start: an unknown workflow or missing required params. Step
// failures are reported in the Result.
func (r *Runner) Run(ctx context.Context, name string, params map[string]string) (*Result, error) {
	wf, ok := r.source.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", name, util.ErrNotFound)
	}
	resolved, err := ResolveParams(wf, params)
	if err != nil {
		return nil, err
	}

	log := util.WithField("workflow", name)
	log.WithField("steps", len(wf.Steps)).Info("Running workflow")

	res := &Result{Workflow: name, Params: resolved, Status: RunCompleted}
	for i, s := range wf.Steps {
		if res.Status != RunCompleted {
			res.Steps = append(res.Steps, StepResult{
				Index: i + 1, Name: s.Name, Action: s.Action,
				Status: StepSkippedAfterFailure, Message: "not run",
			})
			continue
		}

		sr := r.runStep(ctx, i+1, s, resolved)
		res.Steps = append(res.Steps, sr)
		r.metrics.RecordWorkflowStep(string(s.Action), sr.Status)
		log.WithFields(logrus.Fields{"step": sr.Index, "action": s.Action, "status": sr.Status}).Debug(sr.Message)

		switch {
		case sr.Commit != nil && sr.Commit.Status == commit.AwaitingApproval:
			res.Status = RunSuspended
			res.TicketID = sr.Commit.TicketID
		case !sr.OK && !s.ContinueOnError:
			res.Status = RunFailed
		case ctx.Err() != nil:
			res.Status = RunFailed
		}
	}

	res.Message = summarize(res, len(wf.Steps))
	log.WithField("status", res.Status).Info(res.Message)
	return res, nil
}

func (r *Runner) runStep(ctx context.Context, index int, s Step, params map[string]string) StepResult {
	sr := StepResult{Index: index, Name: s.Name, Action: s.Action}
	if sr.Name == "" {
		sr.Name = string(s.Action)
	}

	name := substitute(s.ObjectName, params)
	payload := substitutePayload(s.Payload, params)

	switch s.Action {
	case ActionCommit:
		req := commit.Request{
			Description:     substitute(s.Description, params),
			RequireApproval: s.RequireApproval,
			Async:           s.Async,
		}
		for _, a := range s.PartialAdmins {
			if a = substitute(a, params); a != "" {
				req.PartialAdmins = append(req.PartialAdmins, a)
			}
		}
		out := r.commits.Run(ctx, req)
		sr.Commit = &out
		sr.Status = out.Status.String()
		sr.Message = out.Message
		sr.OK = out.OK()

	case ActionDiff:
		d, read := r.objects.Diff(ctx, s.ObjectType, name, payload)
		if !read.OK() && read.Reason != object.ReasonNotFound {
			sr.Object = &read
			sr.Status = read.Status.String()
			sr.Message = read.Message
			return sr
		}
		sr.Status = "success"
		sr.OK = true
		sr.Changes = len(d.Changes)
		sr.Message = fmt.Sprintf("[OK] Diff %s '%s': %s", s.ObjectType, name, strings.ReplaceAll(d.Summary(), "\n", "; "))

	default:
		op, err := object.ParseOperation(string(s.Action))
		if err != nil {
			sr.Status = object.Error.String()
			sr.Message = fmt.Sprintf("[ERROR] %v", err)
			return sr
		}
		mode, err := object.ParseMode(s.Mode)
		if err != nil {
			sr.Status = object.Error.String()
			sr.Message = fmt.Sprintf("[ERROR] %v", err)
			return sr
		}
		out := r.objects.Execute(ctx, object.Request{
			Operation:  op,
			ObjectType: s.ObjectType,
			ObjectName: name,
			Payload:    payload,
			Mode:       mode,
			Filter:     substitute(s.Filter, params),
		})
		sr.Object = &out
		sr.Status = out.Status.String()
		sr.Message = out.Message
		sr.OK = out.OK()
	}
	return sr
}

func summarize(res *Result, total int) string {
	switch res.Status {
	case RunSuspended:
		return fmt.Sprintf("[PENDING] Workflow %s suspended after %d of %d steps, approval ticket %s",
			res.Workflow, len(stepsRun(res)), total, res.TicketID)
	case RunFailed:
		failed := ""
		for _, s := range res.Steps {
			if !s.OK && s.Status != StepSkippedAfterFailure {
				failed = s.Name
			}
		}
		return fmt.Sprintf("[ERROR] Workflow %s failed at step %q, %d of %d steps succeeded",
			res.Workflow, failed, res.Succeeded(), total)
	}
	if n := total - res.Succeeded(); n > 0 {
		return fmt.Sprintf("[OK] Workflow %s completed, %d of %d steps succeeded (%d failed and continued)",
			res.Workflow, res.Succeeded(), total, n)
	}
	return fmt.Sprintf("[OK] Workflow %s completed, %d steps succeeded", res.Workflow, total)
}

func stepsRun(res *Result) []StepResult {
	var out []StepResult
	for _, s := range res.Steps {
		if s.Status != StepSkippedAfterFailure {
			out = append(out, s)
		}
	}
	return out
}
