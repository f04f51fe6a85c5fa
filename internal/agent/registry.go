package agent

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry is a name-to-tool mapping: register, lookup, iterate (to build
// the per-turn catalog presented to the model), and schema export.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, returning an error if a tool with the same name is
// already registered or the tool's schema fails to compile.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("agent: cannot register nil tool")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("agent: tool has empty name")
	}

	compiler := jsonschema.NewCompiler()
	resourceName := name + ".schema.json"
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(t.InputSchema()))
	if err != nil {
		return fmt.Errorf("agent: tool %q schema is not valid JSON: %w", name, err)
	}
	if err := compiler.AddResource(resourceName, schemaDoc); err != nil {
		return fmt.Errorf("agent: tool %q schema rejected: %w", name, err)
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("agent: tool %q schema failed to compile: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("agent: tool %q already registered", name)
	}
	r.tools[name] = t
	r.schemas[name] = schema
	return nil
}

// Lookup returns the tool registered under name, or nil if absent.
func (r *Registry) Lookup(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// ValidateInput runs JSON-schema validation for a registered tool's input
// ahead of tool.Validate's semantic pre-check.
func (r *Registry) ValidateInput(name string, input []byte) error {
	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()
	if schema == nil {
		return fmt.Errorf("agent: no schema registered for tool %q", name)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(input))
	if err != nil {
		return fmt.Errorf("agent: tool %q input is not valid JSON: %w", name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("agent: tool %q input rejected by schema: %w", name, err)
	}
	return nil
}

// Names returns every registered tool name, sorted for deterministic
// catalog presentation.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog builds the list of tool descriptors presented to the model each
// turn: name, description, and schema, in a stable order.
func (r *Registry) Catalog() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ToolDescriptor, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		out = append(out, ToolDescriptor{
			Name:        name,
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return out
}

// ToolDescriptor is the provider-facing shape of a registered tool.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema []byte
}
