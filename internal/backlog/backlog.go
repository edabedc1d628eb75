// Package backlog implements the persisted Backlog task document of
// spec §3 ("Backlog task") and SPEC_FULL.md §12's supplemented
// `agent/backlog.rs` feature: a read/write/transition API over a
// structured text document, atomically persisted, exercised by the
// `finch agent` CLI subcommand's autonomous work loop.
//
// Grounded on internal/permission/store.go's atomic temp-file+rename
// JSON persistence idiom (document versioning, write-to-temp-then-rename
// in the same directory), adapted from a two-array approval document to
// a single task list.
package backlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Status tags a Task's lifecycle state (spec §3).
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Priority tags a Task's scheduling priority.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Task is a persisted unit of autonomous work (spec §3 "Backlog task").
type Task struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	Repo          string   `json:"repo,omitempty"`
	Status        Status   `json:"status"`
	Priority      Priority `json:"priority"`
	Notes         string   `json:"notes,omitempty"`
	FailureReason string   `json:"failure_reason,omitempty"`
}

const documentVersion = 1

type document struct {
	Version int    `json:"version"`
	Tasks   []Task `json:"tasks"`
}

// Store is the backlog's in-memory state plus its on-disk file.
type Store struct {
	mu    sync.Mutex
	path  string
	tasks []Task
}

// Open loads path, or returns an empty Store if the file does not yet
// exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("backlog: reading %s: %w", path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("backlog: parsing %s: %w", path, err)
	}
	s.tasks = doc.Tasks
	return s, nil
}

func (s *Store) save() error {
	doc := document{Version: documentVersion, Tasks: s.tasks}
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("backlog: marshaling: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".backlog-*.tmp")
	if err != nil {
		return fmt.Errorf("backlog: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("backlog: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("backlog: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("backlog: renaming into place: %w", err)
	}
	return nil
}

// Add appends a new pending task and persists the store.
func (s *Store) Add(id, description, repo string, priority Priority) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := Task{ID: id, Description: description, Repo: repo, Status: StatusPending, Priority: priority}
	s.tasks = append(s.tasks, t)
	if err := s.save(); err != nil {
		return Task{}, err
	}
	return t, nil
}

// transition updates the named task's status (and optional notes /
// failure reason) and persists the change.
func (s *Store) transition(id string, fn func(*Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		if s.tasks[i].ID == id {
			fn(&s.tasks[i])
			return s.save()
		}
	}
	return fmt.Errorf("backlog: task %q not found", id)
}

// MarkRunning transitions id to Running.
func (s *Store) MarkRunning(id string) error {
	return s.transition(id, func(t *Task) { t.Status = StatusRunning })
}

// MarkDone transitions id to Done, recording notes.
func (s *Store) MarkDone(id, notes string) error {
	return s.transition(id, func(t *Task) {
		t.Status = StatusDone
		t.Notes = notes
	})
}

// MarkFailed transitions id to Failed, recording the failure reason.
func (s *Store) MarkFailed(id, reason string) error {
	return s.transition(id, func(t *Task) {
		t.Status = StatusFailed
		t.FailureReason = reason
	})
}

// List returns tasks matching status, or every task if status is "".
func (s *Store) List(status Status) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == "" {
		return append([]Task(nil), s.tasks...)
	}
	var out []Task
	for _, t := range s.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// Next returns the highest-priority pending task, if any, preferring
// High over Normal over Low and otherwise insertion order.
func (s *Store) Next() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := -1
	bestRank := -1
	for i, t := range s.tasks {
		if t.Status != StatusPending {
			continue
		}
		rank := priorityRank(t.Priority)
		if rank > bestRank {
			bestRank = rank
			best = i
		}
	}
	if best < 0 {
		return Task{}, false
	}
	return s.tasks[best], true
}

func priorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}
