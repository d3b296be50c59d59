package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fwauto/fwauto/pkg/fwauto/diff"
)

func newTestLogger(t *testing.T, rotation RotationConfig) (*FileLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewFileLogger(logPath, rotation)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, logPath
}

func TestEvent_New(t *testing.T) {
	event := NewEvent("alice", "fw1.example.net", EventTypeMutation, "create")

	if event.User != "alice" || event.Device != "fw1.example.net" {
		t.Errorf("User = %q, Device = %q", event.User, event.Device)
	}
	if event.Type != EventTypeMutation || event.Operation != "create" {
		t.Errorf("Type = %q, Operation = %q", event.Type, event.Operation)
	}
	if _, err := uuid.Parse(event.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", event.ID, err)
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if other := NewEvent("alice", "fw1", EventTypeMutation, "create"); other.ID == event.ID {
		t.Error("event ids should be unique")
	}
}

func TestEvent_Chaining(t *testing.T) {
	changes := []diff.FieldChange{
		{Field: "ip-netmask", OldValue: "10.0.0.1/32", NewValue: "10.0.0.2/32", Kind: diff.Modified},
	}

	event := NewEvent("alice", "fw1", EventTypeMutation, "update").
		WithScope("vsys1").
		WithObject("address", "web-1").
		WithChanges(changes).
		WithStatus("success", true).
		WithDuration(time.Second)

	if event.Scope != "vsys1" || event.ObjectType != "address" || event.ObjectName != "web-1" {
		t.Errorf("event = %+v", event)
	}
	if len(event.Changes) != 1 {
		t.Errorf("Expected 1 change, got %d", len(event.Changes))
	}
	if !event.Success || event.Status != "success" {
		t.Error("Success should be true")
	}
	if event.Duration != time.Second {
		t.Errorf("Duration = %v", event.Duration)
	}

	commit := NewEvent("bob", "fw1", EventTypeCommit, "commit").WithJob("42", "t-1").WithWorkflow("block_ip")
	if commit.JobID != "42" || commit.TicketID != "t-1" || commit.Workflow != "block_ip" {
		t.Errorf("commit event = %+v", commit)
	}
}

func TestEvent_WithError(t *testing.T) {
	event := NewEvent("alice", "fw1", EventTypeMutation, "delete").
		WithStatus("success", true).
		WithError(errors.New("device error (code 12): bad"))

	if event.Success {
		t.Error("Success should be false")
	}
	if event.Error != "device error (code 12): bad" {
		t.Errorf("Error = %q", event.Error)
	}

	event2 := NewEvent("alice", "fw1", EventTypeMutation, "delete").WithError(nil)
	if event2.Success || event2.Error != "" {
		t.Errorf("WithError(nil) = %+v", event2)
	}
}

func TestFileLogger_Basic(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})

	event := NewEvent("alice", "fw1", EventTypeMutation, "create").
		WithObject("address", "web-1").
		WithChanges([]diff.FieldChange{{Field: "ip-netmask", NewValue: "10.0.0.1/32", Kind: diff.Added}}).
		WithStatus("success", true)
	if err := logger.Log(event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.ID != event.ID || got.User != "alice" || got.ObjectName != "web-1" {
		t.Errorf("event = %+v", got)
	}
	if len(got.Changes) != 1 || got.Changes[0].Field != "ip-netmask" {
		t.Errorf("Changes = %+v", got.Changes)
	}
}

func TestFileLogger_QueryFilters(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})

	events := []*Event{
		NewEvent("alice", "fw1", EventTypeMutation, "create").WithObject("address", "web-1").WithStatus("success", true),
		NewEvent("bob", "fw1", EventTypeMutation, "delete").WithObject("tag", "old").WithStatus("skipped", true),
		NewEvent("alice", "fw2", EventTypeCommit, "commit").WithError(errors.New("failed")),
		NewEvent("carol", "fw2", EventTypeWorkflow, "run").WithWorkflow("block_ip").WithStatus("completed", true),
	}
	for _, e := range events {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by user", Filter{User: "alice"}, 2},
		{"by device", Filter{Device: "fw2"}, 2},
		{"by type", Filter{Type: EventTypeMutation}, 2},
		{"by operation", Filter{Operation: "commit"}, 1},
		{"by object type", Filter{ObjectType: "address"}, 1},
		{"by object name", Filter{ObjectName: "old"}, 1},
		{"success only", Filter{SuccessOnly: true}, 3},
		{"failure only", Filter{FailureOnly: true}, 1},
		{"combined", Filter{User: "alice", SuccessOnly: true}, 1},
		{"limit", Filter{Limit: 2}, 2},
		{"offset", Filter{Offset: 3}, 1},
		{"offset beyond", Filter{Offset: 10}, 0},
		{"future start", Filter{StartTime: time.Now().Add(time.Hour)}, 0},
		{"past end", Filter{EndTime: time.Now().Add(-time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := logger.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("got %d events, want %d", len(results), tt.want)
			}
		})
	}
}

func TestFileLogger_CreatesDirectories(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "audit.log")
	logger, err := NewFileLogger(logPath, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger should create directories: %v", err)
	}
	defer logger.Close()
}

func TestFileLogger_QueryMissingFile(t *testing.T) {
	logger, logPath := newTestLogger(t, RotationConfig{})
	os.Remove(logPath)

	results, err := logger.Query(Filter{})
	if err != nil {
		t.Errorf("Query on a missing file should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected 0 events, got %d", len(results))
	}
}

func TestDefaultLogger(t *testing.T) {
	SetDefaultLogger(nil)
	defer SetDefaultLogger(nil)

	if err := Log(NewEvent("test", "test", EventTypeMutation, "test")); err != nil {
		t.Errorf("Log with nil default should not error: %v", err)
	}
	results, err := Query(Filter{})
	if err != nil || len(results) != 0 {
		t.Errorf("Query with nil default = %d results, err %v", len(results), err)
	}

	logger, _ := newTestLogger(t, RotationConfig{})
	SetDefaultLogger(logger)

	if err := Log(NewEvent("alice", "fw1", EventTypeCommit, "commit").WithStatus("success", true)); err != nil {
		t.Errorf("Log failed: %v", err)
	}
	results, err = Query(Filter{})
	if err != nil || len(results) != 1 {
		t.Errorf("Query = %d results, err %v", len(results), err)
	}
}

func TestFileLogger_LogRotation(t *testing.T) {
	logger, logPath := newTestLogger(t, RotationConfig{MaxSize: 100, MaxBackups: 2})

	for i := 0; i < 5; i++ {
		event := NewEvent("alice", "fw1", EventTypeMutation, "create").WithObject("address", "web-1")
		if err := logger.Log(event); err != nil {
			t.Fatalf("Log failed on iteration %d: %v", i, err)
		}
	}

	matches, err := filepath.Glob(logPath + ".*")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(matches) == 0 {
		t.Error("Expected rotation to create backup files")
	}
	if len(matches) > 2 {
		t.Errorf("Expected at most 2 backup files, got %d", len(matches))
	}
}

func TestFileLogger_OpenErrors(t *testing.T) {
	if _, err := NewFileLogger("/dev/null/impossible/audit.log", RotationConfig{}); err == nil {
		t.Error("NewFileLogger should fail when directory creation fails")
	}

	logPath := filepath.Join(t.TempDir(), "audit.log")
	if err := os.Mkdir(logPath, 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileLogger(logPath, RotationConfig{}); err == nil {
		t.Error("NewFileLogger should fail when log path is a directory")
	}
}

func TestFileLogger_QueryMalformedJSON(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	content := `{"user":"alice","device":"fw1","operation":"create","success":true}
invalid json line
{"user":"bob","device":"fw2","operation":"delete","success":true}
`
	if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test data: %v", err)
	}

	logger, err := NewFileLogger(logPath, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	results, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 valid events (skipping malformed), got %d", len(results))
	}
}

func TestFileLogger_CloseNilFile(t *testing.T) {
	logger := &FileLogger{path: "/tmp/test.log"}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() with nil file should not error: %v", err)
	}
}

func TestFileLogger_QuerySpansBackupsNewestFirst(t *testing.T) {
	logger, logPath := newTestLogger(t, RotationConfig{MaxSize: 100, MaxBackups: 10})
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		event := NewEvent("alice", "fw1", EventTypeMutation, "create").WithObject("address", fmt.Sprintf("web-%d", i))
		event.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if err := logger.Log(event); err != nil {
			t.Fatalf("Log failed on iteration %d: %v", i, err)
		}
	}
	if matches, _ := filepath.Glob(logPath + ".*"); len(matches) != 3 {
		t.Fatalf("backups = %v, want 3", matches)
	}

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	var names []string
	for _, e := range events {
		names = append(names, e.ObjectName)
	}
	want := []string{"web-3", "web-2", "web-1", "web-0"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", names, want)
	}

	recent, err := logger.Query(Filter{Limit: 1})
	if err != nil || len(recent) != 1 || recent[0].ObjectName != "web-3" {
		t.Errorf("Limit 1 = %+v, err %v; want web-3", recent, err)
	}
	since, err := logger.Query(Filter{StartTime: base.Add(90 * time.Second)})
	if err != nil || len(since) != 2 {
		t.Errorf("StartTime filter = %d events, err %v; want 2", len(since), err)
	}
}

func TestFileLogger_FileIsPrivate(t *testing.T) {
	logger, logPath := newTestLogger(t, RotationConfig{})
	if err := logger.Log(NewEvent("alice", "fw1", EventTypeCommit, "commit")); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("mode = %o, want 600", perm)
	}
}

func TestFileLogger_LogAfterClose(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})
	logger.Close()
	if err := logger.Log(NewEvent("alice", "fw1", EventTypeCommit, "commit")); err == nil {
		t.Error("Log after Close should fail")
	}
}
