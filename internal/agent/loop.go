package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	agentcontext "github.com/opencrabs/opencrabs/internal/agent/context"
	"github.com/opencrabs/opencrabs/internal/backoff"
	"github.com/opencrabs/opencrabs/internal/observability"
	"github.com/opencrabs/opencrabs/internal/providers"
	"github.com/opencrabs/opencrabs/internal/sessions"
	"github.com/opencrabs/opencrabs/pkg/models"
)

// State names the Agent Loop's position in its state machine (§4.G). The
// loop is reentrant: each call to Run starts a fresh State sequence but may
// revisit Submitting/Streaming/ParsingResponse/DispatchingTools many times
// within one call before reaching a terminal state.
type State string

const (
	StateInit                State = "init"
	StateLoadingHistory      State = "loading_history"
	StateAssemblingContext   State = "assembling_context"
	StateSubmitting          State = "submitting"
	StateStreaming           State = "streaming"
	StateParsingResponse     State = "parsing_response"
	StateDispatchingTools    State = "dispatching_tools"
	StateAwaitingToolResults State = "awaiting_tool_results"
	StateCompacting          State = "compacting"
	StateCompleted           State = "completed"
	StateCancelled           State = "cancelled"
	StateFailed              State = "failed"
)

// DefaultMaxIterations is the soft convention from the source: the
// tool-dispatch/resubmit cycle breaks after this many rounds within a turn
// (§9 Open Questions — exposed as configuration, not hardcoded policy).
const DefaultMaxIterations = 20

// DefaultTemperature is the spec's default submission temperature (§4.G
// transition 3).
const DefaultTemperature = 0.2

// DefaultReserveTokens is subtracted from MaxTokens before the
// LoadingHistory->AssemblingContext pressure check (§4.G transition 2) to
// leave headroom for the model's own response.
const DefaultReserveTokens = 2000

// MaxOutputTokenFraction bounds a single tool result's output before
// truncation (§4.G edge cases: >25% of max_tokens).
const MaxOutputTokenFraction = 0.25

// streamRetryAttempts bounds how many times a single submission is retried
// on a retryable provider failure (§4.F: Network and RateLimited retry with
// exponential backoff + jitter and a bounded attempt count).
const streamRetryAttempts = 3

// MessageQueuePoll is the port the outer shell may implement so the Agent
// Loop can pick up an urgent operator correction typed mid-turn (§6). A nil
// poller means no shell is attached; the loop behaves as if it always
// returns ("", false).
type MessageQueuePoll interface {
	Poll(ctx context.Context, sessionID string) (text string, ok bool)
}

// Compactor runs the summarization pass a Loop uses to relieve token
// pressure (§4.H). Implementations submit a summarization request to a
// Provider and return the resulting text.
type Compactor interface {
	Summarize(ctx context.Context, provider providers.Provider, model string, toSummarize []*models.Message) (summary string, err error)
}

// Response is the terminal result of one call to Loop.Run (§4.G Outputs).
type Response struct {
	Text            string
	Usage           providers.Usage
	Cost            float64
	Model           string
	AssistantMsgID  string
	Truncated       bool
	IterationCapped bool
	State           State
}

// Loop is the Agent Loop: the reentrant state machine driving the Context
// Store, Provider Port, Tool Registry, and Approval Gate to a terminal
// answer (§4.G).
type Loop struct {
	Sessions  sessions.Store
	Provider  providers.Provider
	Registry  *Registry
	Gate      *Gate
	Compactor Compactor

	MaxTokens       int
	ReserveTokens   int
	MaxIterations   int
	Temperature     float64
	MaxOutputTokens int

	// MessageQueue polls for an operator correction between tool-result
	// ingestion and the next submission (§4.G transition 9). Optional.
	MessageQueue MessageQueuePoll

	// Sudo is forwarded into every tool's ExecContext. Optional.
	Sudo func(ctx context.Context) (string, bool)

	// WorkDir is the working directory handed to every tool invocation.
	WorkDir string

	// BuildSystemPrompt produces the per-turn system prompt (§4.E). Required;
	// the loop calls it once per AssemblingContext transition.
	BuildSystemPrompt func(ctx context.Context, session *models.Session) (string, error)

	// ToolTimeout bounds a single tool's Execute call when the tool itself
	// does not define one. Default 120s if zero.
	ToolTimeout time.Duration

	// Metrics records tool-dispatch and provider-request outcomes. Nil
	// disables recording (no-op), matching the rest of the loop's
	// optional-dependency pattern (MessageQueue, Sudo).
	Metrics *observability.Metrics
}

// Request is one turn's worth of input (§4.G Inputs).
type Request struct {
	SessionID string
	UserText  string
	ImageRefs []string
	ReadOnly  bool
	Cancel    context.Context
}

func (l *Loop) maxIterations() int {
	if l.MaxIterations > 0 {
		return l.MaxIterations
	}
	return DefaultMaxIterations
}

func (l *Loop) temperature() float64 {
	if l.Temperature > 0 {
		return l.Temperature
	}
	return DefaultTemperature
}

func (l *Loop) reserveTokens() int {
	if l.ReserveTokens > 0 {
		return l.ReserveTokens
	}
	return DefaultReserveTokens
}

func (l *Loop) toolTimeout() time.Duration {
	if l.ToolTimeout > 0 {
		return l.ToolTimeout
	}
	return 120 * time.Second
}

// pendingInvocation tracks one tool-use block while its ToolUseInputDelta
// fragments arrive during Streaming (§4.G transition 4).
type pendingInvocation struct {
	id          string
	name        string
	inputBuffer strings.Builder
}

// Run drives one full turn: LoadingHistory through Completed, Cancelled, or
// Failed. sink receives progress events along the way; a nil sink means no
// shell is attached and events are dropped.
func (l *Loop) Run(ctx context.Context, req Request, sink ProgressSink) (resp *Response, err error) {
	if l.Metrics != nil {
		defer func() {
			switch {
			case err != nil:
				l.Metrics.RecordError("agent_loop")
				l.Metrics.RecordRunAttempt(string(StateFailed))
			case resp != nil:
				l.Metrics.RecordRunAttempt(string(resp.State))
				l.Metrics.RecordLLMCost(resp.Model, resp.Cost)
			}
		}()
	}

	turnCtx := ctx
	if req.Cancel != nil {
		turnCtx = req.Cancel
	}
	emit := NewEmitter(req.SessionID, sink)
	state := StateInit
	fail := func(ferr error) (*Response, error) {
		return nil, fmt.Errorf("agent: %s: %w", state, ferr)
	}

	if cancelled(turnCtx) {
		return &Response{State: StateCancelled}, nil
	}

	// --- Init -> LoadingHistory ---
	state = StateLoadingHistory
	session, err := l.Sessions.GetSession(turnCtx, req.SessionID)
	if err != nil {
		return fail(fmt.Errorf("loading session: %w", err))
	}

	userBlocks := models.Blocks{models.TextBlock{Text: req.UserText}}
	for _, ref := range req.ImageRefs {
		userBlocks = append(userBlocks, models.ImageBlock{Source: ref})
	}
	if _, err := l.Sessions.AppendMessage(turnCtx, req.SessionID, models.RoleUser, userBlocks, 0, 0); err != nil {
		return fail(fmt.Errorf("persisting user message: %w", err))
	}

	history, err := l.Sessions.ListMessages(turnCtx, req.SessionID, sessions.HardHistoryCap)
	if err != nil {
		return fail(fmt.Errorf("loading history: %w", err))
	}

	if cancelled(turnCtx) {
		return &Response{State: StateCancelled}, nil
	}

	// --- LoadingHistory -> AssemblingContext ---
	state = StateAssemblingContext
	store := agentcontext.FromHistory(req.SessionID, history, l.MaxTokens)
	if l.BuildSystemPrompt != nil {
		prompt, err := l.BuildSystemPrompt(turnCtx, session)
		if err != nil {
			return fail(fmt.Errorf("building system prompt: %w", err))
		}
		store.WithSystemPrompt(prompt)
	}

	if l.MaxTokens > 0 && store.TokenTotal() > l.MaxTokens-l.reserveTokens() {
		if err := l.compact(turnCtx, store, emit); err != nil {
			store.TrimToTarget(l.MaxTokens - l.reserveTokens())
		}
	}

	iterations := 0
	var lastText string
	var totalUsage providers.Usage
	var totalCost float64
	var model string
	var truncatedOutput bool

	for {
		if cancelled(turnCtx) {
			return &Response{State: StateCancelled}, nil
		}

		// --- AssemblingContext/AwaitingToolResults -> Submitting ---
		state = StateSubmitting
		model = session.Model
		if model == "" {
			model = l.Provider.DefaultModel()
		}
		request := providers.Request{
			Model:       model,
			Messages:    toProviderMessages(store.Messages()),
			System:      store.SystemPrompt(),
			Tools:       toProviderTools(l.Registry.Catalog()),
			MaxTokens:   l.MaxOutputTokens,
			Temperature: l.temperature(),
		}

		if cancelled(turnCtx) {
			return &Response{State: StateCancelled}, nil
		}

		// --- Submitting -> Streaming ---
		state = StateStreaming
		emit.Thinking()
		streamStart := time.Now()
		events, err := l.openStream(turnCtx, request)
		if err != nil {
			if l.Metrics != nil {
				l.Metrics.RecordLLMRequest(model, "error", time.Since(streamStart))
			}
			if providers.ClassifyError(err) == providers.FailoverContextLength {
				if cerr := l.compact(turnCtx, store, emit); cerr == nil {
					continue
				}
			}
			return fail(fmt.Errorf("provider stream: %w", err))
		}

		assistantBlocks, toolResultBlocksFromParseErrors, usage, stopReason, streamErr := l.drainStream(turnCtx, events, emit)
		if l.Metrics != nil {
			status := "success"
			if streamErr != nil {
				status = "error"
			}
			l.Metrics.RecordLLMRequest(model, status, time.Since(streamStart))
			l.Metrics.RecordLLMTokens(model, usage.InputTokens, usage.OutputTokens, usage.CacheTokens)
		}
		if streamErr != nil {
			if errors.Is(streamErr, ErrCancelled) {
				return &Response{State: StateCancelled}, nil
			}
			return fail(fmt.Errorf("streaming response: %w", streamErr))
		}
		totalUsage.InputTokens += usage.InputTokens
		totalUsage.OutputTokens += usage.OutputTokens
		totalUsage.CacheTokens += usage.CacheTokens
		turnCost := providers.EstimateCost(model, usage)
		totalCost += turnCost

		// --- Streaming -> ParsingResponse ---
		state = StateParsingResponse
		if len(assistantBlocks) == 0 {
			emit.IntermediateText("")
		}
		assistantMsg, err := l.Sessions.AppendMessage(turnCtx, req.SessionID, models.RoleAssistant, assistantBlocks, usage.OutputTokens, turnCost)
		if err != nil {
			return fail(fmt.Errorf("persisting assistant message: %w", err))
		}
		store.AddMessage(assistantMsg)

		toolUses := assistantMsg.ToolUses()
		lastText = blocksText(assistantBlocks)

		if len(toolUses) == 0 && len(toolResultBlocksFromParseErrors) == 0 {
			if stopReason == providers.StopMaxTokens {
				return &Response{Text: lastText, Usage: totalUsage, Cost: totalCost, Model: model, AssistantMsgID: assistantMsg.ID, Truncated: true, State: StateCompleted}, nil
			}
			return &Response{Text: lastText, Usage: totalUsage, Cost: totalCost, Model: model, AssistantMsgID: assistantMsg.ID, Truncated: truncatedOutput, State: StateCompleted}, nil
		}

		// --- ParsingResponse -> DispatchingTools ---
		state = StateDispatchingTools
		resultBlocks := make([]models.ContentBlock, 0, len(toolUses)+len(toolResultBlocksFromParseErrors))
		resultBlocks = append(resultBlocks, toolResultBlocksFromParseErrors...)

		answered := make(map[string]bool, len(toolResultBlocksFromParseErrors))
		for _, b := range toolResultBlocksFromParseErrors {
			if tr, ok := b.(models.ToolResultBlock); ok {
				answered[tr.ToolUseID] = true
			}
		}

		for _, tu := range toolUses {
			if answered[tu.ID] {
				continue
			}
			if cancelled(turnCtx) {
				return &Response{State: StateCancelled}, nil
			}
			result := l.dispatch(turnCtx, req, tu, emit)
			if result.Metadata != nil {
				if _, ok := result.Metadata["truncated_output"]; ok {
					truncatedOutput = true
				}
			}
			content := result.Output
			if !result.Success && result.Error != "" {
				content = result.Error
			}
			resultBlocks = append(resultBlocks, models.ToolResultBlock{
				ToolUseID: tu.ID,
				Content:   content,
				IsError:   !result.Success,
			})
		}

		// --- DispatchingTools -> AwaitingToolResults ---
		state = StateAwaitingToolResults
		toolResultMsg, err := l.Sessions.AppendMessage(turnCtx, req.SessionID, models.RoleUser, resultBlocks, 0, 0)
		if err != nil {
			return fail(fmt.Errorf("persisting tool results: %w", err))
		}
		store.AddMessage(toolResultMsg)

		iterations++
		if iterations >= l.maxIterations() {
			return &Response{Text: lastText, Usage: totalUsage, Cost: totalCost, Model: model, IterationCapped: true, State: StateCompleted}, nil
		}

		if l.MessageQueue != nil {
			if text, ok := l.MessageQueue.Poll(turnCtx, req.SessionID); ok && text != "" {
				queued, err := l.Sessions.AppendMessage(turnCtx, req.SessionID, models.RoleUser, models.Blocks{models.TextBlock{Text: text}}, 0, 0)
				if err == nil {
					store.AddMessage(queued)
				}
			}
		}

		if l.Metrics != nil {
			l.Metrics.RecordContextWindow(req.SessionID, store.TokenTotal())
		}
		if l.MaxTokens > 0 && store.TokenTotal() > l.MaxTokens-l.reserveTokens() {
			if err := l.compact(turnCtx, store, emit); err != nil {
				store.TrimToTarget(l.MaxTokens - l.reserveTokens())
			}
		}
		// loop back to Submitting
	}
}

// compact runs the §4.H Compactor contract: summarize the oldest ~70% of
// the conversation, keep the rest verbatim. Falls back to lossy
// trim_to_target if the provider call fails, per §4.H's explicit fallback.
func (l *Loop) compact(ctx context.Context, store *agentcontext.Store, emit *Emitter) error {
	msgs := store.Messages()
	if len(msgs) < 3 {
		return nil
	}
	keepRecent := int(float64(len(msgs)) * 0.3)
	if keepRecent < 2 {
		keepRecent = 2
	}
	toSummarize := msgs[:len(msgs)-keepRecent]
	if len(toSummarize) == 0 {
		return nil
	}

	emit.Compacting()
	if l.Compactor == nil {
		return fmt.Errorf("agent: no compactor configured")
	}
	model := l.Provider.DefaultModel()
	summary, err := l.Compactor.Summarize(ctx, l.Provider, model, toSummarize)
	if err != nil {
		return err
	}
	store.CompactWithSummary(summary, keepRecent)
	emit.CompactionSummary(summary)
	return nil
}

// drainStream consumes a provider's event sequence until MessageStop or an
// error (§4.G transition 4). It returns the finalized assistant blocks in
// arrival order, any synthetic error ToolResult blocks produced by
// malformed tool-input JSON, the final usage, and the stop reason.
func (l *Loop) drainStream(ctx context.Context, events <-chan providers.StreamEvent, emit *Emitter) (models.Blocks, []models.ContentBlock, providers.Usage, providers.StopReason, error) {
	var blocks models.Blocks
	var parseErrorResults []models.ContentBlock
	var textBuf strings.Builder
	pending := map[string]*pendingInvocation{}
	order := []string{}
	var usage providers.Usage
	var stopReason providers.StopReason

	for {
		select {
		case <-ctx.Done():
			return nil, nil, usage, stopReason, ErrCancelled
		case ev, ok := <-events:
			if !ok {
				return blocks, parseErrorResults, usage, stopReason, nil
			}
			if ev.Err != nil {
				return nil, nil, usage, stopReason, ev.Err
			}
			switch ev.Type {
			case providers.StreamTextDelta:
				textBuf.WriteString(ev.Text)
				emit.StreamingChunk(ev.Text)
			case providers.StreamToolUseBlockStart:
				pending[ev.ToolUseID] = &pendingInvocation{id: ev.ToolUseID, name: ev.ToolUseName}
				order = append(order, ev.ToolUseID)
			case providers.StreamToolUseInputDelta:
				if p, ok := pending[ev.ToolUseID]; ok {
					p.inputBuffer.WriteString(ev.JSONFragment)
				}
			case providers.StreamBlockComplete:
				if textBuf.Len() > 0 {
					blocks = append(blocks, models.TextBlock{Text: textBuf.String()})
					textBuf.Reset()
				}
				for _, id := range order {
					p, ok := pending[id]
					if !ok {
						continue
					}
					raw := p.inputBuffer.String()
					if raw == "" {
						raw = "{}"
					}
					if !json.Valid([]byte(raw)) {
						blocks = append(blocks, models.ToolUseBlock{ID: p.id, Name: p.name, Input: json.RawMessage("{}")})
						parseErrorResults = append(parseErrorResults, models.ToolResultBlock{
							ToolUseID: p.id,
							Content:   fmt.Sprintf("tool input was not valid JSON: %q", raw),
							IsError:   true,
						})
					} else {
						blocks = append(blocks, models.ToolUseBlock{ID: p.id, Name: p.name, Input: json.RawMessage(raw)})
					}
					delete(pending, id)
				}
				order = order[:0]
			case providers.StreamMessageStop:
				stopReason = ev.StopReason
				usage = ev.Usage
				if textBuf.Len() > 0 {
					blocks = append(blocks, models.TextBlock{Text: textBuf.String()})
					textBuf.Reset()
				}
				// Any tool-use blocks whose stream terminated before a
				// BlockComplete are treated as the open question in §9
				// recommends: synthesize an error result and continue.
				for _, id := range order {
					p, ok := pending[id]
					if !ok {
						continue
					}
					blocks = append(blocks, models.ToolUseBlock{ID: p.id, Name: p.name, Input: json.RawMessage("{}")})
					parseErrorResults = append(parseErrorResults, models.ToolResultBlock{
						ToolUseID: p.id,
						Content:   "tool input stream ended before completion",
						IsError:   true,
					})
					delete(pending, id)
				}
				return blocks, parseErrorResults, usage, stopReason, nil
			}
		}
	}
}

// dispatch runs one tool-use block through planning-mode restriction,
// approval, validation, and execution (§4.G transition 7), always
// returning a ToolResult — never an error — so the caller can feed it back
// to the model.
func (l *Loop) dispatch(ctx context.Context, req Request, tu models.ToolUseBlock, emit *Emitter) (result *ToolResult) {
	start := time.Now()
	if l.Metrics != nil {
		defer func() {
			status := "success"
			if result != nil && !result.Success {
				status = "error"
				l.Metrics.RecordError("tool:" + tu.Name)
			}
			l.Metrics.RecordToolExecution(tu.Name, status, time.Since(start))
		}()
	}

	pretty := prettyInput(tu.Input)
	emit.ToolStarted(tu.Name, pretty)

	tool := l.Registry.Lookup(tu.Name)
	if tool == nil {
		result := &ToolResult{Success: false, Error: fmt.Sprintf("unknown tool %q; known tools: %s", tu.Name, strings.Join(l.Registry.Names(), ", "))}
		emit.ToolCompleted(tu.Name, pretty, false, result.Error)
		return result
	}

	if req.ReadOnly && tool.Capabilities().Intersects(writeCapabilities) {
		result := &ToolResult{Success: false, Error: "planning mode: this tool may modify files, run shell commands, or change system state and cannot run while only a plan is being drafted"}
		emit.ToolCompleted(tu.Name, pretty, false, result.Error)
		return result
	}

	allowed, reason := l.Gate.Check(ctx, ApprovalRequest{
		ID:           tu.ID,
		ToolName:     tu.Name,
		Description:  tool.Description(),
		PrettyInput:  pretty,
		Capabilities: setToSlice(tool.Capabilities()),
	}, tu.Input, tool.Capabilities(), tool.RequiresApproval())
	if !allowed {
		result := &ToolResult{Success: false, Error: reason}
		emit.ToolCompleted(tu.Name, pretty, false, result.Error)
		return result
	}

	if err := l.Registry.ValidateInput(tu.Name, tu.Input); err != nil {
		result := &ToolResult{Success: false, Error: err.Error()}
		emit.ToolCompleted(tu.Name, pretty, false, result.Error)
		return result
	}
	if err := tool.Validate(tu.Input); err != nil {
		result := &ToolResult{Success: false, Error: err.Error()}
		emit.ToolCompleted(tu.Name, pretty, false, result.Error)
		return result
	}

	execCtx := ExecContext{
		SessionID: req.SessionID,
		WorkDir:   l.WorkDir,
		Sudo:      l.Sudo,
		Progress:  emit.sink,
	}

	toolCtx, cancel := context.WithTimeout(ctx, l.toolTimeout())
	defer cancel()

	result, err := tool.Execute(toolCtx, tu.Input, execCtx)
	if err != nil {
		if toolCtx.Err() != nil {
			out := &ToolResult{Success: false, Error: fmt.Sprintf("timed out after %s", l.toolTimeout())}
			emit.ToolCompleted(tu.Name, pretty, false, out.Error)
			return out
		}
		out := &ToolResult{Success: false, Error: err.Error()}
		emit.ToolCompleted(tu.Name, pretty, false, out.Error)
		return out
	}
	if result == nil {
		result = &ToolResult{Success: true}
	}

	result = l.truncateIfHuge(result)

	summary := result.Output
	if !result.Success {
		summary = result.Error
	}
	emit.ToolCompleted(tu.Name, pretty, result.Success, summary)
	return result
}

// truncateIfHuge caps a tool's output at 25% of the max output token budget
// (§4.G edge cases), recording the original size in Metadata.
func (l *Loop) truncateIfHuge(result *ToolResult) *ToolResult {
	if l.MaxOutputTokens <= 0 || result.Output == "" {
		return result
	}
	limit := int(float64(l.MaxOutputTokens) * MaxOutputTokenFraction)
	if limit <= 0 {
		return result
	}
	// Approximate chars-per-token the way the rest of the estimator does
	// not need to: this is a hard byte cap, not a tokenizer call, since the
	// truncation only needs to be a conservative backstop.
	charLimit := limit * 4
	if len(result.Output) <= charLimit {
		return result
	}
	original := len(result.Output)
	truncated := *result
	truncated.Output = result.Output[:charLimit] + "\n[output truncated]"
	if truncated.Metadata == nil {
		truncated.Metadata = map[string]any{}
	}
	truncated.Metadata["truncated_output"] = true
	truncated.Metadata["original_size"] = original
	return &truncated
}

// openStream submits a request, retrying transient provider failures with
// jittered exponential backoff. Non-retryable failures (auth, invalid
// request, context length) surface immediately so the caller can apply the
// right disposition.
func (l *Loop) openStream(ctx context.Context, request providers.Request) (<-chan providers.StreamEvent, error) {
	policy := backoff.DefaultPolicy()
	var lastErr error
	for attempt := 1; attempt <= streamRetryAttempts; attempt++ {
		events, err := l.Provider.Stream(ctx, request)
		if err == nil {
			return events, nil
		}
		lastErr = err
		if !providers.IsRetryable(err) || attempt == streamRetryAttempts {
			return nil, err
		}
		if serr := backoff.SleepWithBackoff(ctx, policy, attempt); serr != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func blocksText(blocks models.Blocks) string {
	var sb strings.Builder
	for _, b := range blocks {
		if tb, ok := b.(models.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

func prettyInput(input json.RawMessage) string {
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return string(input)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(input)
	}
	return string(out)
}

func setToSlice(s CapabilitySet) []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	return out
}

func toProviderMessages(msgs []*models.Message) []providers.Message {
	out := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, providers.Message{Role: m.Role, Blocks: m.Blocks})
	}
	return out
}

func toProviderTools(catalog []ToolDescriptor) []providers.ToolDescriptor {
	out := make([]providers.ToolDescriptor, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, providers.ToolDescriptor{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out
}

