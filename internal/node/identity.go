// Package node manages the daemon's local identity file: a small JSON
// document ({id, name, version}) generated on first run and never
// rewritten afterward (spec §6 "The node identity is a small JSON file
// ({id, name, version}), generated on first run and never rewritten").
package node

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
)

// Version is the daemon's reported version string.
const Version = "0.1.0"

// Identity is the node's self-reported identity and capabilities, the
// payload behind GET /v1/node/info (spec §6).
type Identity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Info extends Identity with the runtime capability fields spec §6 asks
// GET /v1/node/info to report.
type Info struct {
	Identity
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	NumCPU     int    `json:"num_cpu"`
	LocalModel bool   `json:"local_model_present"`
	TeacherAPI bool   `json:"teacher_api_present"`
}

// LoadOrCreate reads path's identity document, creating one with a fresh
// uuid if it does not yet exist. An existing file is never rewritten,
// per spec §6.
func LoadOrCreate(path, name string) (Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		var id Identity
		if err := json.Unmarshal(data, &id); err != nil {
			return Identity{}, fmt.Errorf("node: parsing %s: %w", path, err)
		}
		return id, nil
	}
	if !os.IsNotExist(err) {
		return Identity{}, fmt.Errorf("node: reading %s: %w", path, err)
	}

	if name == "" {
		name = "finch-node"
	}
	id := Identity{ID: uuid.NewString(), Name: name, Version: Version}
	if err := write(path, id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func write(path string, id Identity) error {
	data, err := json.MarshalIndent(&id, "", "  ")
	if err != nil {
		return fmt.Errorf("node: marshaling identity: %w", err)
	}
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("node: creating %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("node: writing %s: %w", path, err)
	}
	return nil
}

// CurrentInfo builds an Info from id plus the live runtime environment.
func CurrentInfo(id Identity, localModelPresent, teacherAPIPresent bool) Info {
	return Info{
		Identity:   id,
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		NumCPU:     runtime.NumCPU(),
		LocalModel: localModelPresent,
		TeacherAPI: teacherAPIPresent,
	}
}
