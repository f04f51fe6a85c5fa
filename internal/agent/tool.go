package agent

import (
	"context"
	"encoding/json"
)

// Capability is a coarse permission tag a tool declares. The Approval Gate
// decides on capability sets, never on tool names.
type Capability string

const (
	CapReadFiles         Capability = "read_files"
	CapWriteFiles        Capability = "write_files"
	CapExecuteShell      Capability = "execute_shell"
	CapNetwork           Capability = "network"
	CapSystemModification Capability = "system_modification"
)

// CapabilitySet is an unordered collection of Capability values.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a CapabilitySet from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether the set contains c.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Intersects reports whether the set shares any member with other.
func (s CapabilitySet) Intersects(other CapabilitySet) bool {
	for c := range other {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// writeCapabilities are the capabilities planning mode refuses (§4.G rule 7).
var writeCapabilities = NewCapabilitySet(CapWriteFiles, CapExecuteShell, CapSystemModification)

// ToolResult is the outcome of a tool Execute call.
type ToolResult struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ExecContext is borrowed for the duration of a single Execute call and must
// never be retained by the tool past that call.
type ExecContext struct {
	SessionID string
	WorkDir   string

	// Sudo retrieves a privilege-elevation secret on demand. Nil if the
	// shell attached no sudo callback. The returned string is never logged.
	Sudo func(ctx context.Context) (string, bool)

	// Progress emits best-effort progress events for long-running tools
	// that want intermediate feedback beyond ToolStarted/ToolCompleted.
	Progress ProgressSink
}

// Tool is the uniform capability-tagged interface every registered tool
// implements. There is no base class: dispatch is always by name lookup
// into the Registry.
type Tool interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	Capabilities() CapabilitySet
	RequiresApproval() bool

	// Validate is a cheap pre-check run before any side effects.
	Validate(input json.RawMessage) error

	// Execute performs the effectful operation. Implementations should be
	// idempotent-tolerant to the extent practical.
	Execute(ctx context.Context, input json.RawMessage, exec ExecContext) (*ToolResult, error)
}
