package object

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/beevik/etree"

	"github.com/fwauto/fwauto/pkg/fwauto/device"
	"github.com/fwauto/fwauto/pkg/fwauto/device/panos"
	"github.com/fwauto/fwauto/pkg/fwauto/metrics"
	"github.com/fwauto/fwauto/pkg/fwauto/validate"
	"github.com/fwauto/fwauto/pkg/util"
)

// Engine executes object operations against one device context.
// It holds no per-request state and is safe for concurrent use; two
// concurrent operations on the same object are not serialized.
type Engine struct {
	api       panos.API
	devCtx    device.Context
	validator *validate.Pipeline
	retry     RetryPolicy
	metrics   *metrics.Metrics
	sleep     func(context.Context, time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithMetrics records outcomes and retries.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithValidator replaces the default validation pipeline.
func WithValidator(p *validate.Pipeline) Option {
	return func(e *Engine) { e.validator = p }
}

// WithSleep replaces the wait between retries.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// NewEngine returns an engine that resolves paths in devCtx and talks to api.
func NewEngine(api panos.API, devCtx device.Context, opts ...Option) *Engine {
	e := &Engine{
		api:       api,
		devCtx:    devCtx,
		validator: validate.New(),
		retry:     DefaultRetryPolicy(),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DeviceContext returns the context paths are resolved in.
func (e *Engine) DeviceContext() device.Context {
	return e.devCtx
}

type state int

const (
	stateValidate state = iota
	stateCheckExistence
	stateCreate
	stateRead
	stateUpdate
	stateDelete
	stateList
	stateFormat
	stateDone
)

func (s state) String() string {
	return [...]string{
		"Validate", "CheckExistence", "CreateOp", "ReadOp", "UpdateOp",
		"DeleteOp", "ListOp", "FormatResponse", "Done",
	}[s]
}

// execution carries what earlier states learned to later ones.
type execution struct {
	req        Request
	mode       Mode
	collection string
	entryPath  string
	payload    map[string]any
	element    string
	exists     bool
	entry      *etree.Element
	out        Outcome
}

// Execute runs req to completion. It never returns an error or panics;
// every failure is reported in the Outcome.
func (e *Engine) Execute(ctx context.Context, req Request) (out Outcome) {
	x := &execution{
		req:  req,
		mode: req.Mode.Resolve(req.Operation),
		out: Outcome{
			Operation:  req.Operation,
			ObjectType: req.ObjectType,
			ObjectName: req.ObjectName,
		},
	}
	log := util.WithObject(req.Operation.String(), req.ObjectType, req.ObjectName)

	defer func() {
		if r := recover(); r != nil {
			out = panicOutcome(x.out, r)
			log.Errorf("Recovered panic: %v", r)
		}
		e.metrics.RecordMutation(req.Operation.String(), req.ObjectType, out.Status.String())
	}()

	st := stateValidate
	for st != stateDone {
		next := e.step(ctx, x, st)
		log.Debugf("%s -> %s", st, next)
		st = next
	}
	return x.out
}

func (e *Engine) step(ctx context.Context, x *execution, st state) state {
	switch st {
	case stateValidate:
		return e.validateRequest(x)
	case stateCheckExistence:
		return e.checkExistence(ctx, x)
	case stateCreate:
		return e.create(ctx, x)
	case stateRead:
		return e.read(x)
	case stateUpdate:
		return e.update(ctx, x)
	case stateDelete:
		return e.delete(ctx, x)
	case stateList:
		return e.list(ctx, x)
	case stateFormat:
		x.out.Message = FormatResponse(x.out, e.devCtx)
		return stateDone
	}
	panic(fmt.Sprintf("object: unhandled state %d", int(st)))
}

// afterExistence routes out of CheckExistence by operation alone.
func afterExistence(op Operation) state {
	switch op {
	case Create:
		return stateCreate
	case Read:
		return stateRead
	case Update:
		return stateUpdate
	case Delete:
		return stateDelete
	case List:
		return stateList
	}
	panic(fmt.Sprintf("object: unhandled operation %d", int(op)))
}

func (e *Engine) validateRequest(x *execution) state {
	req := x.req
	v := &util.ValidationBuilder{}

	switch req.Operation {
	case Create, Update:
		v.Add(req.ObjectName != "", fmt.Sprintf("%s requires an object name", req.Operation))
		v.Add(req.Payload != nil, fmt.Sprintf("%s requires a payload", req.Operation))
	case Read, Delete:
		v.Add(req.ObjectName != "", fmt.Sprintf("%s requires an object name", req.Operation))
	case List:
	default:
		v.AddErrorf("unknown operation %d", int(req.Operation))
	}
	if v.HasErrors() {
		return e.fail(x, v.Build())
	}

	canonical, ok := device.CanonicalType(req.ObjectType)
	if !ok {
		return e.fail(x, util.NewValidationError(fmt.Sprintf("unknown object type %q", req.ObjectType)))
	}
	x.out.ObjectType = canonical

	if req.Operation == Create {
		if err := device.ValidateNameFor(canonical, req.ObjectName); err != nil {
			return e.fail(x, err)
		}
	}

	collection, err := device.CollectionPath(canonical, e.devCtx)
	if err != nil {
		return e.fail(x, asValidation(err))
	}
	x.collection = collection
	x.out.XPath = collection
	if req.ObjectName != "" {
		if x.entryPath, err = device.EntryPath(canonical, req.ObjectName, e.devCtx); err != nil {
			return e.fail(x, asValidation(err))
		}
		x.out.XPath = x.entryPath
	}

	if req.Operation == Create || req.Operation == Update {
		x.payload = validate.Normalize(canonical, req.Payload)
		delete(x.payload, "name")

		res := e.validator.Validate(canonical, x.payload)
		for _, w := range res.Warnings {
			util.WithObject(req.Operation.String(), canonical, req.ObjectName).Warnf("Validation: %s", w)
		}
		if !res.Valid {
			return e.fail(x, res.Err())
		}

		element, err := panos.EncodeEntry(req.ObjectName, x.payload)
		if err != nil {
			return e.fail(x, util.NewValidationError("payload cannot be encoded: "+err.Error()))
		}
		if res := e.validator.ValidateElement(canonical, element); !res.Valid {
			return e.fail(x, res.Err())
		}
		x.element = element
	}

	if req.Operation == List {
		return stateList
	}
	return stateCheckExistence
}

func (e *Engine) checkExistence(ctx context.Context, x *execution) state {
	resp, err := e.call(ctx, x, panos.Get(x.entryPath))
	if err != nil {
		return e.fail(x, err)
	}
	x.entry = resp.Entry()
	x.exists = x.entry != nil
	return afterExistence(x.req.Operation)
}

func (e *Engine) create(ctx context.Context, x *execution) state {
	if x.exists {
		if x.mode == ModeSkipIfExists {
			return e.skip(x, ReasonAlreadyExists)
		}
		return e.reject(x, ReasonAlreadyExists, util.ErrAlreadyExists)
	}
	if _, err := e.call(ctx, x, panos.Set(x.collection, x.element)); err != nil {
		return e.fail(x, err)
	}
	return e.succeed(x)
}

func (e *Engine) read(x *execution) state {
	if !x.exists {
		return e.reject(x, ReasonNotFound, util.ErrNotFound)
	}
	_, data := panos.DecodeEntry(x.entry)
	x.out.Data = data
	return e.succeed(x)
}

func (e *Engine) update(ctx context.Context, x *execution) state {
	if !x.exists {
		return e.reject(x, ReasonNotFound, util.ErrNotFound)
	}
	if _, err := e.call(ctx, x, panos.Edit(x.entryPath, x.element)); err != nil {
		return e.fail(x, err)
	}
	return e.succeed(x)
}

func (e *Engine) delete(ctx context.Context, x *execution) state {
	if !x.exists {
		if x.mode == ModeSkipIfMissing {
			return e.skip(x, ReasonNotFound)
		}
		return e.reject(x, ReasonNotFound, util.ErrNotFound)
	}
	if _, err := e.call(ctx, x, panos.Delete(x.entryPath)); err != nil {
		return e.fail(x, err)
	}
	return e.succeed(x)
}

func (e *Engine) list(ctx context.Context, x *execution) state {
	resp, err := e.call(ctx, x, panos.Get(x.collection))
	if err != nil {
		return e.fail(x, err)
	}
	all := panos.EntryNames(resp.Entries())
	names := make([]string, 0, len(all))
	for _, n := range all {
		if x.req.Filter == "" || wildcard.Match(x.req.Filter, n) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	x.out.Names = names
	x.out.Count = len(names)
	return e.succeed(x)
}

// call sends req, retrying per the engine's policy.
func (e *Engine) call(ctx context.Context, x *execution, req panos.Request) (*panos.Response, error) {
	limit := e.retry.attempts()
	for attempt := 1; ; attempt++ {
		x.out.Attempts++
		resp, err := e.api.Do(ctx, req)
		if err == nil {
			return resp, nil
		}
		if attempt >= limit || !e.retry.retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		util.WithObject(x.req.Operation.String(), x.out.ObjectType, x.req.ObjectName).
			Warnf("Attempt %d/%d failed, retrying in %s: %v", attempt, limit, e.retry.Interval, err)
		e.metrics.RecordRetry(x.req.Operation.String())
		if serr := e.sleep(ctx, e.retry.Interval); serr != nil {
			return nil, err
		}
	}
}

func (e *Engine) succeed(x *execution) state {
	x.out.Status = Success
	return stateFormat
}

func (e *Engine) skip(x *execution, reason string) state {
	x.out.Status = Skipped
	x.out.Reason = reason
	return stateFormat
}

// reject is an error decided by the existence check rather than the device.
func (e *Engine) reject(x *execution, reason string, err error) state {
	x.out.Status = Error
	x.out.Reason = reason
	x.out.Err = err
	return stateFormat
}

func (e *Engine) fail(x *execution, err error) state {
	x.out.Status = Error
	x.out.Category = util.Category(err)
	x.out.Err = err
	return stateFormat
}

// asValidation reports path resolution failures as validation errors so they
// are categorized before any device call.
func asValidation(err error) error {
	if util.Category(err) == util.CategoryValidation {
		return err
	}
	return util.NewValidationError(err.Error())
}

func panicOutcome(out Outcome, r interface{}) Outcome {
	out.Status = Error
	out.Category = util.CategoryUnexpected
	out.Err = fmt.Errorf("panic: %s: %v", util.TypeName(r), r)
	out.Message = fmt.Sprintf("[ERROR] Failed to %s %s (%s): %s: %v",
		out.Operation, describeObject(out.ObjectType, out.ObjectName), util.CategoryUnexpected, util.TypeName(r), r)
	return out
}
