package tool

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry is a name-indexed collection of Tool implementations.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas sync.Map // name -> *jsonschema.Schema, compiled lazily
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t to the registry, replacing any existing tool with the
// same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Snapshot returns every registered Tool, used by brain.Runner to build
// a per-session registry that extends a shared base registry with the
// two synthetic brain tools without mutating the shared instance.
func (r *Registry) Snapshot() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// ListAllTools returns every registered tool's Definition (spec §4.6
// list_all_tools).
func (r *Registry) ListAllTools() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Definition{Name: t.Name(), Description: t.Description(), InputSchema: t.Schema()})
	}
	return out
}

// ValidateInput checks input against t's declared JSON schema, compiling
// and caching the schema on first use.
func (r *Registry) ValidateInput(t Tool, input []byte) error {
	raw, ok := r.schemas.Load(t.Name())
	var compiled *jsonschema.Schema
	if ok {
		compiled = raw.(*jsonschema.Schema)
	} else {
		c, err := compileSchema(t.Name(), t.Schema())
		if err != nil {
			return fmt.Errorf("tool %s: compiling schema: %w", t.Name(), err)
		}
		compiled = c
		r.schemas.Store(t.Name(), compiled)
	}

	var decoded any
	if err := jsonUnmarshal(input, &decoded); err != nil {
		return fmt.Errorf("tool %s: decoding input: %w", t.Name(), err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("tool %s: input invalid: %w", t.Name(), err)
	}
	return nil
}

func compileSchema(name string, schema []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := name + ".schema.json"
	if err := compiler.AddResource(url, bytesReader(schema)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
