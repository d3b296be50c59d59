package commit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fwauto/fwauto/internal/testutil"
	"github.com/fwauto/fwauto/pkg/fwauto/approval"
	"github.com/fwauto/fwauto/pkg/fwauto/device/panos"
	"github.com/fwauto/fwauto/pkg/fwauto/metrics"
	"github.com/fwauto/fwauto/pkg/util"
)

// sleepCounter counts waits without sleeping.
type sleepCounter struct {
	mu sync.Mutex
	n  int
}

func (s *sleepCounter) sleep(ctx context.Context, _ time.Duration) error {
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return ctx.Err()
}

func newTestMachine(t *testing.T, opts ...Option) (*Machine, *testutil.FakeDevice, *sleepCounter) {
	t.Helper()
	dev := testutil.NewFakeDevice(t)
	p := panos.NewProvider(panos.Config{Host: dev.URL, APIKey: testutil.FakeKey})
	t.Cleanup(func() { p.Close() })
	sc := &sleepCounter{}
	opts = append([]Option{WithSleep(sc.sleep)}, opts...)
	return NewMachine(p, opts...), dev, sc
}

func commitCalls(dev *testutil.FakeDevice) []testutil.Call {
	var out []testutil.Call
	for _, c := range dev.Calls() {
		if c.Type == "commit" {
			out = append(out, c)
		}
	}
	return out
}

func TestCommitFinishesOnFirstPoll(t *testing.T) {
	m, dev, sc := newTestMachine(t)
	dev.MarkPending(true)

	out := m.Run(testutil.Context(t), Request{})
	if out.Status != Success {
		t.Fatalf("Status = %s: %s", out.Status, out.Message)
	}
	if out.JobID != "1" || out.Polls != 1 || dev.Polls("1") != 1 {
		t.Errorf("job %q polls %d (device saw %d), want job 1 polled once", out.JobID, out.Polls, dev.Polls("1"))
	}
	if sc.n != 0 {
		t.Errorf("slept %d times before a finished job", sc.n)
	}
	if !strings.HasPrefix(out.Message, PrefixOK) || !strings.Contains(out.Message, "job 1") {
		t.Errorf("Message = %q", out.Message)
	}

	calls := commitCalls(dev)
	if len(calls) != 1 || calls[0].Cmd != "<commit><description>Committed by fwauto</description></commit>" {
		t.Errorf("commit calls = %+v", calls)
	}
}

func TestCommitTimesOutAfterSixtyPolls(t *testing.T) {
	m, dev, sc := newTestMachine(t)
	dev.JobScript = []testutil.JobStep{{Status: "ACT", Result: "PEND", Progress: 40}}
	dev.MarkPending(true)

	out := m.Run(testutil.Context(t), Request{Description: "slow"})
	if out.Status != Timeout {
		t.Fatalf("Status = %s: %s", out.Status, out.Message)
	}
	if out.Polls != DefaultMaxPolls || dev.Polls("1") != DefaultMaxPolls {
		t.Errorf("polls = %d (device %d), want %d", out.Polls, dev.Polls("1"), DefaultMaxPolls)
	}
	if sc.n != DefaultMaxPolls-1 {
		t.Errorf("slept %d times, want %d", sc.n, DefaultMaxPolls-1)
	}
	if !errors.Is(out.Err, util.ErrTimeout) || out.Category != util.CategoryTimeout {
		t.Errorf("Err = %v, Category = %s", out.Err, out.Category)
	}
	if !out.OK() {
		t.Error("a timeout is a check-manually signal, not a failure")
	}
	if out.Job == nil || out.Job.Status != JobActive || out.Job.Progress != 40 {
		t.Errorf("last job = %+v", out.Job)
	}
}

func TestCommitJobFailed(t *testing.T) {
	m, dev, _ := newTestMachine(t)
	dev.JobScript = []testutil.JobStep{
		{Status: "ACT", Result: "PEND", Progress: 10},
		{Status: "FIN", Result: "FAIL", Progress: 100, Details: []string{"rule r1 is invalid", "commit failed"}},
	}
	dev.MarkPending(true)

	out := m.Run(testutil.Context(t), Request{})
	if out.Status != Error || out.Polls != 2 {
		t.Fatalf("outcome = %s after %d polls", out.Status, out.Polls)
	}
	if !strings.Contains(out.Message, "rule r1 is invalid; commit failed") {
		t.Errorf("Message = %q", out.Message)
	}
	if out.Job.Status != JobFailed {
		t.Errorf("job status = %s", out.Job.Status)
	}
}

func TestCommitAsync(t *testing.T) {
	m, dev, _ := newTestMachine(t)
	dev.MarkPending(true)

	out := m.Run(testutil.Context(t), Request{Async: true})
	if out.Status != Submitted || out.JobID != "1" {
		t.Fatalf("outcome = %s job %q", out.Status, out.JobID)
	}
	if dev.Polls("1") != 0 {
		t.Error("async commit must not poll")
	}
}

func TestCommitNoChanges(t *testing.T) {
	m, dev, _ := newTestMachine(t)

	out := m.Run(testutil.Context(t), Request{Description: "nothing"})
	if out.Status != Success || out.JobID != "" {
		t.Fatalf("outcome = %s job %q", out.Status, out.JobID)
	}
	if !strings.Contains(out.Message, "no changes") {
		t.Errorf("Message = %q", out.Message)
	}
	if len(dev.Calls()) != 1 {
		t.Errorf("calls = %+v", dev.Calls())
	}
}

func TestCommitRejectedByDeviceSkipsPolling(t *testing.T) {
	m, dev, _ := newTestMachine(t)
	dev.MarkPending(true)
	dev.RejectNext("13", "Commit lock is held by admin")

	out := m.Run(testutil.Context(t), Request{})
	if out.Status != Error || out.Category != util.CategoryAPI {
		t.Fatalf("outcome = %s/%s", out.Status, out.Category)
	}
	if !strings.Contains(out.Message, "Commit lock is held") {
		t.Errorf("Message = %q", out.Message)
	}
	if len(dev.Calls()) != 1 {
		t.Errorf("expected only the commit call, got %+v", dev.Calls())
	}
}

func TestCommitConnectivityError(t *testing.T) {
	m, dev, _ := newTestMachine(t)
	dev.MarkPending(true)
	dev.FailNext(1)

	out := m.Run(testutil.Context(t), Request{})
	if out.Status != Error || out.Category != util.CategoryConnectivity {
		t.Fatalf("outcome = %s/%s", out.Status, out.Category)
	}
}

// scriptAPI answers commit with job 7 and polls from a queue of bodies or
// errors; the last entry repeats.
type scriptAPI struct {
	mu    sync.Mutex
	polls []interface{}
	seen  int
}

func (s *scriptAPI) Do(_ context.Context, req panos.Request) (*panos.Response, error) {
	if req.Type == panos.TypeCommit {
		return panos.ParseResponse([]byte(`<response status="success"><result><job>7</job></result></response>`))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.polls[len(s.polls)-1]
	if s.seen < len(s.polls) {
		next = s.polls[s.seen]
	}
	s.seen++
	if err, ok := next.(error); ok {
		return nil, err
	}
	return panos.ParseResponse([]byte(next.(string)))
}

func jobBody(status, result string) string {
	return `<response status="success"><result><job><id>7</id><status>` + status +
		`</status><result>` + result + `</result><progress>50</progress></job></result></response>`
}

func TestPollErrorsAreTolerated(t *testing.T) {
	api := &scriptAPI{polls: []interface{}{
		util.NewAPIError("", "job table busy"),
		util.NewConnectivityError("op", errors.New("reset by peer")),
		jobBody("ACT", "PEND"),
		jobBody("FIN", "OK"),
	}}
	sc := &sleepCounter{}
	m := NewMachine(api, WithSleep(sc.sleep))

	out := m.Run(context.Background(), Request{})
	if out.Status != Success || out.Polls != 4 {
		t.Fatalf("outcome = %s after %d polls: %s", out.Status, out.Polls, out.Message)
	}
	if out.Job.Result != "OK" {
		t.Errorf("job = %+v", out.Job)
	}
}

func TestPollErrorsCountTowardCeiling(t *testing.T) {
	api := &scriptAPI{polls: []interface{}{util.NewAPIError("", "job table busy")}}
	sc := &sleepCounter{}
	m := NewMachine(api, WithSleep(sc.sleep), WithPolling(time.Second, 5))

	out := m.Run(context.Background(), Request{})
	if out.Status != Timeout || out.Polls != 5 || api.seen != 5 {
		t.Errorf("outcome = %s polls %d seen %d", out.Status, out.Polls, api.seen)
	}
}

func TestPollingStopsOnCancel(t *testing.T) {
	api := &scriptAPI{polls: []interface{}{jobBody("ACT", "PEND")}}
	m := NewMachine(api, WithPolling(time.Hour, 60))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	out := m.Run(ctx, Request{})
	if out.Status != Error || out.Polls != 1 {
		t.Errorf("outcome = %s after %d polls", out.Status, out.Polls)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("Err = %v", out.Err)
	}
}

func TestApprovalGate(t *testing.T) {
	store := approval.NewMemoryStore()
	m, dev, _ := newTestMachine(t, WithApprovalStore(store))
	dev.MarkPending(true)
	ctx := testutil.Context(t)

	out := m.Run(ctx, Request{Description: "add web rules", RequireApproval: true, RequestedBy: "alice"})
	if out.Status != AwaitingApproval || out.TicketID == "" {
		t.Fatalf("outcome = %s ticket %q", out.Status, out.TicketID)
	}
	if len(dev.Calls()) != 0 {
		t.Fatalf("device contacted before approval: %+v", dev.Calls())
	}
	if !strings.Contains(out.Message, out.TicketID) {
		t.Errorf("Message = %q", out.Message)
	}

	ticket, err := store.Get(ctx, out.TicketID)
	if err != nil {
		t.Fatal(err)
	}
	if ticket.Summary != "add web rules" || ticket.RequestedBy != "alice" {
		t.Errorf("ticket = %+v", ticket)
	}

	done := m.Resume(ctx, out.TicketID, approval.Approve("bob"))
	if done.Status != Success || done.JobID == "" {
		t.Fatalf("resume outcome = %s: %s", done.Status, done.Message)
	}
	calls := commitCalls(dev)
	if len(calls) != 1 || !strings.Contains(calls[0].Cmd, "<description>add web rules</description>") {
		t.Errorf("commit calls = %+v", calls)
	}

	again := m.Resume(ctx, out.TicketID, approval.Approve("carol"))
	if again.Status != Error || !errors.Is(again.Err, approval.ErrAlreadyDecided) {
		t.Errorf("second resume = %s: %v", again.Status, again.Err)
	}
	if len(commitCalls(dev)) != 1 {
		t.Error("second resume committed again")
	}
}

func TestApprovalRejected(t *testing.T) {
	m, dev, _ := newTestMachine(t)
	dev.MarkPending(true)
	ctx := testutil.Context(t)

	out := m.Run(ctx, Request{RequireApproval: true})
	done := m.Resume(ctx, out.TicketID, approval.Reject("bob", "change freeze"))
	if done.Status != Rejected {
		t.Fatalf("Status = %s", done.Status)
	}
	if !strings.HasPrefix(done.Message, PrefixRejected) || !strings.Contains(done.Message, "change freeze") ||
		!strings.Contains(done.Message, "bob") {
		t.Errorf("Message = %q", done.Message)
	}
	if len(dev.Calls()) != 0 {
		t.Errorf("rejected commit reached the device: %+v", dev.Calls())
	}
	if done.OK() {
		t.Error("rejected outcome must not count as OK")
	}
}

func TestResumeUnknownTicket(t *testing.T) {
	m, _, _ := newTestMachine(t)
	out := m.Resume(testutil.Context(t), "does-not-exist", approval.Approve("bob"))
	if out.Status != Error || !errors.Is(out.Err, approval.ErrNotFound) {
		t.Errorf("outcome = %s: %v", out.Status, out.Err)
	}
}

func TestResumeForeignTicketLeftUndecided(t *testing.T) {
	store := approval.NewMemoryStore()
	m, dev, _ := newTestMachine(t, WithApprovalStore(store))
	ctx := testutil.Context(t)

	foreign := approval.NewTicket("workflow", "rotate keys", "", "alice", 0)
	if err := store.Create(ctx, foreign); err != nil {
		t.Fatal(err)
	}

	out := m.Resume(ctx, foreign.ID, approval.Approve("bob"))
	if out.Status != Error || !strings.Contains(out.Message, "not a commit ticket") {
		t.Fatalf("outcome = %s: %s", out.Status, out.Message)
	}
	got, err := store.Get(ctx, foreign.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Decided() {
		t.Errorf("foreign ticket state = %s, want %s", got.State, approval.StatePending)
	}
	if len(dev.Calls()) != 0 {
		t.Errorf("device contacted: %+v", dev.Calls())
	}
}

func TestCommitCommand(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "description",
			req:  Request{Description: "a & b"},
			want: "<commit><description>a &amp; b</description></commit>",
		},
		{
			name: "partial",
			req:  Request{Description: "mine", PartialAdmins: []string{"alice", "bob"}},
			want: "<commit><description>mine</description><partial><admin><member>alice</member><member>bob</member></admin></partial></commit>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := commitCommand(tt.req)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("commitCommand = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		status, result string
		want           JobStatus
	}{
		{"PEND", "PEND", JobPending},
		{"ACT", "PEND", JobActive},
		{"FIN", "OK", JobFinished},
		{"FIN", "FAIL", JobFailed},
		{"fin", "ok", JobFinished},
		{"", "", JobPending},
	}
	for _, tt := range tests {
		if got := parseJobStatus(tt.status, tt.result); got != tt.want {
			t.Errorf("parseJobStatus(%q, %q) = %s, want %s", tt.status, tt.result, got, tt.want)
		}
	}
}

func TestCommitMetrics(t *testing.T) {
	mt := metrics.New()
	m, dev, _ := newTestMachine(t, WithMetrics(mt))
	dev.MarkPending(true)
	m.Run(testutil.Context(t), Request{})
	m.Run(testutil.Context(t), Request{})

	n, err := promtest.GatherAndCount(mt.Registry(), "fwauto_commits_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("commit series = %d, want 1 (both runs succeed)", n)
	}
}
