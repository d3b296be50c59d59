package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/beevik/etree"
)

// FakeKey is the API key a FakeDevice hands out and accepts.
const FakeKey = "FAKEKEY=="

// Call is one request received by a FakeDevice.
type Call struct {
	Type    string
	Action  string
	XPath   string
	Element string
	Cmd     string
}

// JobStep is one scripted answer to a job status poll.
type JobStep struct {
	Status   string // PEND, ACT, FIN
	Result   string // PEND, OK, FAIL
	Progress int
	Details  []string
}

// FakeDevice is an httptest server speaking enough of the device XML API
// for engine tests: config get/set/edit/delete, commit, job polling,
// keygen and "show system info".
type FakeDevice struct {
	*httptest.Server

	mu       sync.Mutex
	entries  map[string]map[string]string // collection xpath -> name -> <entry> XML
	calls    []Call
	pending  bool
	nextJob  int
	jobs     map[string][]JobStep
	polls    map[string]int
	failures int
	reject   *rejection

	// Model is returned by "show system info". Defaults to PA-VM.
	Model string

	// JobScript is consumed by polls of newly submitted jobs. When nil a
	// job finishes on its first poll.
	JobScript []JobStep
}

type rejection struct {
	code, msg string
}

var entryXPath = regexp.MustCompile(`^(.*)/entry\[@name='([^']*)'\]$`)

// NewFakeDevice starts a fake device and registers its shutdown with t.
func NewFakeDevice(t *testing.T) *FakeDevice {
	t.Helper()
	d := &FakeDevice{
		entries: make(map[string]map[string]string),
		jobs:    make(map[string][]JobStep),
		polls:   make(map[string]int),
		nextJob: 1,
		Model:   "PA-VM",
	}
	d.Server = httptest.NewServer(http.HandlerFunc(d.handle))
	t.Cleanup(d.Close)
	return d
}

// Seed stores an entry under a collection xpath, as if it were already
// configured.
func (d *FakeDevice) Seed(collection, entryXML string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name := entryName(entryXML)
	if d.entries[collection] == nil {
		d.entries[collection] = make(map[string]string)
	}
	d.entries[collection][name] = entryXML
}

// Has reports whether the named entry exists under collection.
func (d *FakeDevice) Has(collection, name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[collection][name]
	return ok
}

// Entry returns the stored XML of an entry, or "".
func (d *FakeDevice) Entry(collection, name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries[collection][name]
}

// Calls returns the requests received so far, keygen excluded.
func (d *FakeDevice) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// MutatingCalls counts set, edit, delete and commit requests.
func (d *FakeDevice) MutatingCalls() int {
	n := 0
	for _, c := range d.Calls() {
		if c.Type == "commit" || (c.Type == "config" && c.Action != "get") {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (d *FakeDevice) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// FailNext makes the next n requests fail with HTTP 503.
func (d *FakeDevice) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = n
}

// RejectNext makes the next request fail with an error envelope.
func (d *FakeDevice) RejectNext(code, msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reject = &rejection{code: code, msg: msg}
}

// Polls returns how many times a job was polled.
func (d *FakeDevice) Polls(jobID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls[jobID]
}

// MarkPending sets whether the candidate configuration has uncommitted
// changes. Mutations set it automatically.
func (d *FakeDevice) MarkPending(pending bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = pending
}

func (d *FakeDevice) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	call := Call{
		Type:    r.Form.Get("type"),
		Action:  r.Form.Get("action"),
		XPath:   r.Form.Get("xpath"),
		Element: r.Form.Get("element"),
		Cmd:     r.Form.Get("cmd"),
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if call.Type == "keygen" {
		if r.Form.Get("user") == "" || r.Form.Get("password") != "secret" {
			writeXML(w, http.StatusForbidden, errorEnvelope("403", "Invalid credentials."))
			return
		}
		writeXML(w, http.StatusOK, success("<key>"+FakeKey+"</key>"))
		return
	}

	d.calls = append(d.calls, call)

	if r.Form.Get("key") != FakeKey {
		writeXML(w, http.StatusForbidden, errorEnvelope("403", "Invalid credentials."))
		return
	}
	if d.failures > 0 {
		d.failures--
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if d.reject != nil {
		rej := d.reject
		d.reject = nil
		writeXML(w, http.StatusOK, errorEnvelope(rej.code, rej.msg))
		return
	}

	switch call.Type {
	case "config":
		d.handleConfig(w, call)
	case "commit":
		d.handleCommit(w)
	case "op":
		d.handleOp(w, call)
	default:
		writeXML(w, http.StatusOK, errorEnvelope("1", "unknown type "+call.Type))
	}
}

func (d *FakeDevice) handleConfig(w http.ResponseWriter, c Call) {
	collection, name := splitXPath(c.XPath)

	switch c.Action {
	case "get":
		if name != "" {
			entry, ok := d.entries[collection][name]
			if !ok {
				writeXML(w, http.StatusOK, `<response status="success"><result total-count="0" count="0"/></response>`)
				return
			}
			writeXML(w, http.StatusOK, fmt.Sprintf(`<response status="success"><result total-count="1" count="1">%s</result></response>`, entry))
			return
		}
		names := make([]string, 0, len(d.entries[c.XPath]))
		for n := range d.entries[c.XPath] {
			names = append(names, n)
		}
		sort.Strings(names)
		var b strings.Builder
		for _, n := range names {
			b.WriteString(d.entries[c.XPath][n])
		}
		seg := c.XPath[strings.LastIndex(c.XPath, "/")+1:]
		writeXML(w, http.StatusOK, fmt.Sprintf(`<response status="success"><result total-count="%d" count="%d"><%s>%s</%s></result></response>`,
			len(names), len(names), seg, b.String(), seg))

	case "set":
		n := entryName(c.Element)
		if n == "" {
			writeXML(w, http.StatusOK, errorEnvelope("12", "Invalid syntax."))
			return
		}
		if d.entries[c.XPath] == nil {
			d.entries[c.XPath] = make(map[string]string)
		}
		d.entries[c.XPath][n] = c.Element
		d.pending = true
		writeXML(w, http.StatusOK, `<response status="success" code="20"><msg>command succeeded</msg></response>`)

	case "edit":
		if name == "" || entryName(c.Element) != name {
			writeXML(w, http.StatusOK, errorEnvelope("12", "edit breaks config validity"))
			return
		}
		if d.entries[collection] == nil {
			d.entries[collection] = make(map[string]string)
		}
		d.entries[collection][name] = c.Element
		d.pending = true
		writeXML(w, http.StatusOK, `<response status="success" code="20"><msg>command succeeded</msg></response>`)

	case "delete":
		if _, ok := d.entries[collection][name]; ok {
			delete(d.entries[collection], name)
			d.pending = true
		}
		writeXML(w, http.StatusOK, `<response status="success" code="20"><msg>command succeeded</msg></response>`)

	default:
		writeXML(w, http.StatusOK, errorEnvelope("1", "unsupported action "+c.Action))
	}
}

func (d *FakeDevice) handleCommit(w http.ResponseWriter) {
	if !d.pending {
		writeXML(w, http.StatusOK, `<response status="success" code="19"><msg>There are no changes to commit.</msg></response>`)
		return
	}
	id := fmt.Sprint(d.nextJob)
	d.nextJob++
	d.pending = false
	if d.JobScript != nil {
		d.jobs[id] = append([]JobStep(nil), d.JobScript...)
	}
	writeXML(w, http.StatusOK, fmt.Sprintf(`<response status="success" code="19"><result><msg><line>Commit job enqueued with jobid %s</line></msg><job>%s</job></result></response>`, id, id))
}

var jobIDPattern = regexp.MustCompile(`<id>(\d+)</id>`)

func (d *FakeDevice) handleOp(w http.ResponseWriter, c Call) {
	switch {
	case strings.Contains(c.Cmd, "<system><info>"):
		writeXML(w, http.StatusOK, success(fmt.Sprintf(
			`<system><hostname>fake-fw</hostname><model>%s</model><serial>0001</serial><sw-version>11.1.0</sw-version><multi-vsys>off</multi-vsys></system>`, d.Model)))

	case strings.Contains(c.Cmd, "<jobs>"):
		m := jobIDPattern.FindStringSubmatch(c.Cmd)
		if m == nil {
			writeXML(w, http.StatusOK, errorEnvelope("17", "job id missing"))
			return
		}
		id := m[1]
		d.polls[id]++
		step := JobStep{Status: "FIN", Result: "OK", Progress: 100, Details: []string{"Configuration committed successfully"}}
		if script, ok := d.jobs[id]; ok && len(script) > 0 {
			step = script[0]
			if len(script) > 1 {
				d.jobs[id] = script[1:]
			}
		}
		var details strings.Builder
		for _, l := range step.Details {
			details.WriteString("<line>" + l + "</line>")
		}
		writeXML(w, http.StatusOK, success(fmt.Sprintf(
			`<job><id>%s</id><type>Commit</type><status>%s</status><result>%s</result><progress>%d</progress><details>%s</details></job>`,
			id, step.Status, step.Result, step.Progress, details.String())))

	default:
		writeXML(w, http.StatusOK, errorEnvelope("17", "Invalid command"))
	}
}

func splitXPath(xpath string) (collection, name string) {
	if m := entryXPath.FindStringSubmatch(xpath); m != nil {
		return m[1], m[2]
	}
	return xpath, ""
}

func entryName(entryXML string) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(entryXML); err != nil {
		return ""
	}
	root := doc.Root()
	if root == nil || root.Tag != "entry" {
		return ""
	}
	return root.SelectAttrValue("name", "")
}

func success(result string) string {
	return `<response status="success"><result>` + result + `</result></response>`
}

func errorEnvelope(code, msg string) string {
	return fmt.Sprintf(`<response status="error" code="%s"><msg><line>%s</line></msg></response>`, code, msg)
}

func writeXML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}
