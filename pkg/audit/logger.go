package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fwauto/fwauto/pkg/util"
)

// Logger defines the interface for audit logging backends
type Logger interface {
	Log(event *Event) error
	Query(filter Filter) ([]*Event, error)
	Close() error
}

// RotationConfig configures log file rotation. A zero MaxSize never
// rotates; a zero MaxBackups keeps every backup.
type RotationConfig struct {
	MaxSize    int64
	MaxBackups int
}

// backupStamp sorts lexically in time order, so backups never need a stat.
const backupStamp = "20060102-150405.000"

// maxEventLine bounds one encoded event; mutations carry their field changes.
const maxEventLine = 1 << 20

// FileLogger appends audit events to a JSON-lines file. Rotated backups
// sit next to it as <path>.<stamp> and are searched by Query too.
type FileLogger struct {
	mu       sync.RWMutex
	path     string
	file     *os.File
	size     int64
	rotation RotationConfig
	now      func() time.Time
}

// NewFileLogger opens path for appending, creating it and its directory.
// The file is private to the user: events record device changes.
func NewFileLogger(path string, rotation RotationConfig) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	l := &FileLogger{path: path, rotation: rotation, now: time.Now}
	if err := l.open(); err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return l, nil
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	if info.IsDir() {
		file.Close()
		return fmt.Errorf("%s is a directory", l.path)
	}
	l.file, l.size = file, info.Size()
	return nil
}

// Log appends event as one line, rotating first when the line would push
// the file past MaxSize.
func (l *FileLogger) Log(event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("audit log %s is closed", l.path)
	}
	if limit := l.rotation.MaxSize; limit > 0 && l.size > 0 && l.size+int64(len(line)) > limit {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotating audit log: %w", err)
		}
	}
	n, err := l.file.Write(line)
	l.size += int64(n)
	return err
}

// Query returns matching events newest first, across the live file and
// its backups. Offset and Limit count from the newest match.
func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	files, err := l.backups()
	if err != nil {
		return nil, err
	}
	files = append(files, l.path)

	events := []*Event{}
	for _, path := range files {
		found, err := readEvents(path, filter)
		if err != nil {
			return nil, err
		}
		events = append(events, found...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(events) {
			return []*Event{}, nil
		}
		events = events[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(events) {
		events = events[:filter.Limit]
	}
	return events, nil
}

// readEvents scans one file in write order. A missing file has no events.
func readEvents(path string, filter Filter) ([]*Event, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []*Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for line := 1; scanner.Scan(); line++ {
		event := &Event{}
		if err := json.Unmarshal(scanner.Bytes(), event); err != nil {
			util.Warnf("audit: skipping malformed entry %s:%d: %v", filepath.Base(path), line, err)
			continue
		}
		if filter.matches(event) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("reading %s: %w", path, err)
	}
	return events, nil
}

// Close closes the log file. Later Logs fail; Query still works.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (f Filter) matches(e *Event) bool {
	switch {
	case f.Device != "" && e.Device != f.Device,
		f.User != "" && e.User != f.User,
		f.Type != "" && e.Type != f.Type,
		f.Operation != "" && e.Operation != f.Operation,
		f.ObjectType != "" && e.ObjectType != f.ObjectType,
		f.ObjectName != "" && e.ObjectName != f.ObjectName,
		!f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime),
		!f.EndTime.IsZero() && e.Timestamp.After(f.EndTime),
		f.SuccessOnly && !e.Success,
		f.FailureOnly && e.Success:
		return false
	}
	return true
}

// rotate must be called with mu held.
func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil

	stamp := l.path + "." + l.now().UTC().Format(backupStamp)
	backup := stamp
	for i := 1; ; i++ {
		if _, err := os.Lstat(backup); errors.Is(err, fs.ErrNotExist) {
			break
		}
		backup = stamp + "-" + strconv.Itoa(i)
	}
	if err := os.Rename(l.path, backup); err != nil {
		return err
	}
	if err := l.open(); err != nil {
		return err
	}
	return l.prune()
}

// backups lists rotated files oldest first.
func (l *FileLogger) backups() ([]string, error) {
	matches, err := filepath.Glob(l.path + ".*")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// prune removes the oldest backups beyond MaxBackups.
func (l *FileLogger) prune() error {
	if l.rotation.MaxBackups <= 0 {
		return nil
	}
	files, err := l.backups()
	if err != nil {
		return err
	}
	for len(files) > l.rotation.MaxBackups {
		if err := os.Remove(files[0]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		files = files[1:]
	}
	return nil
}

// loggerHolder wraps a Logger so a nil Logger can be stored.
type loggerHolder struct {
	logger Logger
}

var defaultLogger atomic.Pointer[loggerHolder]

// SetDefaultLogger sets the process-wide logger used by Log and Query.
func SetDefaultLogger(logger Logger) {
	defaultLogger.Store(&loggerHolder{logger: logger})
}

func getDefaultLogger() Logger {
	if h := defaultLogger.Load(); h != nil {
		return h.logger
	}
	return nil
}

// Log records event with the default logger, if one is set.
func Log(event *Event) error {
	if l := getDefaultLogger(); l != nil {
		return l.Log(event)
	}
	return nil
}

// Query searches the default logger; without one there are no events.
func Query(filter Filter) ([]*Event, error) {
	if l := getDefaultLogger(); l != nil {
		return l.Query(filter)
	}
	return []*Event{}, nil
}
