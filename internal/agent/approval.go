package agent

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Decision is an operator's answer to an approval request.
type Decision string

const (
	DecisionApproveOnce    Decision = "approve-once"
	DecisionApproveSession Decision = "approve-for-session"
	DecisionApproveForever Decision = "approve-forever"
	DecisionDeny           Decision = "deny"
)

// DefaultApprovalTimeout is the recommended operator response deadline.
// The spec requires at least 60s; 120s matches the source's own default.
const DefaultApprovalTimeout = 120 * time.Second

// MinApprovalTimeout is the floor the spec requires for the deadline.
const MinApprovalTimeout = 60 * time.Second

// ApprovalRequest is what the Agent Loop sends over the out-of-band
// channel when a decision cannot be made silently.
type ApprovalRequest struct {
	ID           string
	ToolName     string
	Description  string
	PrettyInput  string
	Capabilities []Capability
}

// ApprovalReply is the shell's answer, matched back to a request by ID.
// Mismatched IDs are discarded by the caller.
type ApprovalReply struct {
	RequestID string
	Decision  Decision
	Reason    string
}

// ApprovalChannel is the port the outer shell implements to prompt the
// operator. One method, exactly as the spec's design notes prescribe for
// ports: the Agent Loop holds it as an optional field, and its absence
// means "no shell attached" (requests then always time out, which is
// treated identically to an operator who never answers).
type ApprovalChannel interface {
	// Request sends req and blocks until the shell replies or ctx is done.
	// Implementations must respect ctx's deadline; the Gate also enforces
	// its own timeout independently so a misbehaving shell cannot hang a
	// turn past the configured deadline.
	Request(ctx context.Context, req ApprovalRequest) (ApprovalReply, error)
}

// ApprovalPolicy is the process-wide (auto_always, auto_session) pair.
// Invariant: auto_always implies auto_session.
type ApprovalPolicy struct {
	mu          sync.RWMutex
	autoAlways  bool
	autoSession bool
}

// Snapshot returns the current (autoAlways, autoSession) values.
func (p *ApprovalPolicy) Snapshot() (autoAlways, autoSession bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoAlways, p.autoSession
}

// setSession sets auto_session (used by approve-for-session).
func (p *ApprovalPolicy) setSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoSession = true
}

// setForever sets both flags (used by approve-forever).
func (p *ApprovalPolicy) setForever() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoAlways = true
	p.autoSession = true
}

// Gate is the Approval Gate: the policy step deciding, per tool call,
// whether to execute silently, prompt the operator, or refuse.
type Gate struct {
	Policy  *ApprovalPolicy
	Channel ApprovalChannel
	Timeout time.Duration
}

// NewGate creates an approval gate with the default 120s timeout. Policy
// must not be nil; Channel may be nil (no shell attached — every
// capability-gated call then denies on timeout).
func NewGate(policy *ApprovalPolicy, channel ApprovalChannel) *Gate {
	return &Gate{Policy: policy, Channel: channel, Timeout: DefaultApprovalTimeout}
}

// Check runs the §4.D decision procedure for one tool invocation and
// returns the disposition plus a human-readable reason. Denial is never an
// error of the Agent Loop; callers turn a denied Check into a ToolResult
// with IsError=true carrying reason.
func (g *Gate) Check(ctx context.Context, req ApprovalRequest, input json.RawMessage, capabilities CapabilitySet, requiresApproval bool) (allowed bool, reason string) {
	if len(capabilities) == 0 && !requiresApproval {
		return true, "no capabilities and approval not required"
	}

	autoAlways, autoSession := g.Policy.Snapshot()
	if autoAlways {
		return true, "auto_always"
	}
	if autoSession {
		return true, "auto_session"
	}

	if g.Channel == nil {
		return false, "approval timed out"
	}

	timeout := g.Timeout
	if timeout < MinApprovalTimeout {
		timeout = MinApprovalTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := g.Channel.Request(reqCtx, req)
	if err != nil {
		if reqCtx.Err() != nil {
			return false, "approval timed out"
		}
		return false, "channel closed"
	}
	if reply.RequestID != "" && reply.RequestID != req.ID {
		return false, "approval timed out"
	}

	switch reply.Decision {
	case DecisionApproveOnce:
		return true, "approved once"
	case DecisionApproveSession:
		g.Policy.setSession()
		return true, "approved for session"
	case DecisionApproveForever:
		g.Policy.setForever()
		return true, "approved forever"
	case DecisionDeny:
		if reply.Reason != "" {
			return false, reply.Reason
		}
		return false, "denied"
	default:
		return false, "approval timed out"
	}
}
