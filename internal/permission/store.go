package permission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// storeVersion is bumped whenever the on-disk document shape changes.
const storeVersion = 1

// document is the versioned JSON shape persisted to disk (spec §3/§4.4:
// "a versioned JSON document with two arrays... written atomically").
type document struct {
	Version  int             `json:"version"`
	Exact    []ExactApproval `json:"exact"`
	Patterns []Pattern       `json:"patterns"`
}

// Store holds exact approvals and wildcard patterns gating tool
// execution, persisted as a single JSON file via temp-file+rename.
type Store struct {
	mu       sync.Mutex
	path     string
	exact    []ExactApproval
	patterns []Pattern
}

// Open loads an existing store from path, or returns an empty store if
// the file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("permission: reading store %s: %w", path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("permission: parsing store %s: %w", path, err)
	}
	s.exact = doc.Exact
	s.patterns = doc.Patterns
	return s, nil
}

// save serializes the store and writes it atomically: write to a temp
// file in the same directory, then rename over the destination.
func (s *Store) save() error {
	doc := document{Version: storeVersion, Exact: s.exact, Patterns: s.patterns}
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("permission: marshaling store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, ".permissions-*.tmp")
	if err != nil {
		return fmt.Errorf("permission: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("permission: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("permission: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("permission: renaming into place: %w", err)
	}
	return nil
}

// Check resolves a Signature against exact approvals and then patterns,
// per spec §3's matching policy: exact approvals take priority over
// patterns; among matching patterns, fewer wildcards wins. Returns
// (Decision, true) if a standing approval was found, else (Decision{},
// false) so the caller can fall through to tool-level configuration.
func (s *Store) Check(sig Signature) (Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.exact {
		if a.Signature == sig {
			return Allow(), true
		}
	}

	var best *Pattern
	bestIdx := -1
	for i := range s.patterns {
		p := &s.patterns[i]
		if p.ToolName != sig.ToolName {
			continue
		}
		if !matchPattern(p.ContextPattern, sig.ContextKey) {
			continue
		}
		if best == nil || wildcardCount(p.ContextPattern) < wildcardCount(best.ContextPattern) {
			best = p
			bestIdx = i
		}
	}
	if best == nil {
		return Decision{}, false
	}
	s.patterns[bestIdx].MatchCount++
	return Allow(), true
}

// AllowExact records a one-shot-to-permanent exact approval for sig and
// persists it.
func (s *Store) AllowExact(sig Signature) error {
	s.mu.Lock()
	s.exact = append(s.exact, ExactApproval{Signature: sig, CreatedAt: time.Now()})
	err := s.save()
	s.mu.Unlock()
	return err
}

// AllowPattern records a wildcard approval scoped to toolName and
// persists it.
func (s *Store) AllowPattern(toolName, contextPattern string) error {
	s.mu.Lock()
	s.patterns = append(s.patterns, Pattern{
		ToolName:       toolName,
		ContextPattern: contextPattern,
		CreatedAt:      time.Now(),
	})
	err := s.save()
	s.mu.Unlock()
	return err
}

// Exact returns a copy of the current exact approvals, for inspection.
func (s *Store) Exact() []ExactApproval {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ExactApproval(nil), s.exact...)
}

// Patterns returns a copy of the current patterns, for inspection.
func (s *Store) Patterns() []Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Pattern(nil), s.patterns...)
}
