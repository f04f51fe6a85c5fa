package agent

import "errors"

// Internal-taxonomy sentinel errors (§7). Provider failures have their own
// typed errors in internal/providers/errors.go; these cover the tool,
// approval, and loop-control dispositions the Agent Loop itself raises.
var (
	// ErrInvalidInput marks a tool.Validate rejection (Tool.InvalidInput).
	ErrInvalidInput = errors.New("agent: invalid tool input")

	// ErrToolExecution marks a tool that ran and failed internally
	// (Tool.Execution).
	ErrToolExecution = errors.New("agent: tool execution failed")

	// ErrToolTimeout marks a tool that exceeded its execution budget
	// (Tool.Timeout).
	ErrToolTimeout = errors.New("agent: tool timed out")

	// ErrApprovalDenied marks an operator refusal (Approval.Denied).
	ErrApprovalDenied = errors.New("agent: approval denied")

	// ErrApprovalTimeout marks an operator non-response within the
	// approval deadline (Approval.Timeout).
	ErrApprovalTimeout = errors.New("agent: approval timed out")

	// ErrIterationCap marks a turn that hit max_iterations (Iteration.Cap).
	ErrIterationCap = errors.New("agent: iteration cap reached")

	// ErrCancelled marks a turn ended by cancellation.
	ErrCancelled = errors.New("agent: cancelled")

	// ErrChannelClosed marks an approval-response channel closed out from
	// under a pending request.
	ErrChannelClosed = errors.New("agent: approval channel closed")
)
