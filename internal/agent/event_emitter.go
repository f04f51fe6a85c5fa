package agent

import "sync/atomic"

// Emitter stamps outgoing events with a monotonic per-turn sequence number
// and forwards them to a ProgressSink. One Emitter is created per turn so
// sequence numbers reset at zero for each new run; the sink itself may be
// shared across turns.
type Emitter struct {
	sessionID string
	sink      ProgressSink
	sequence  uint64
}

// NewEmitter creates an Emitter for sessionID, forwarding to sink. A nil
// sink is replaced with NopSink so callers never need a nil check.
func NewEmitter(sessionID string, sink ProgressSink) *Emitter {
	if sink == nil {
		sink = NopSink{}
	}
	return &Emitter{sessionID: sessionID, sink: sink}
}

func (e *Emitter) base(t EventType) Event {
	return Event{
		Type:      t,
		Sequence:  atomic.AddUint64(&e.sequence, 1),
		SessionID: e.sessionID,
	}
}

// Thinking notifies that the model is composing a response with no
// streamed text yet (pre-first-token).
func (e *Emitter) Thinking() {
	e.sink.Emit(e.base(EventThinking))
}

// ToolStarted notifies that a tool invocation has begun.
func (e *Emitter) ToolStarted(name, prettyInput string) {
	ev := e.base(EventToolStarted)
	ev.ToolName = name
	ev.ToolInput = prettyInput
	e.sink.Emit(ev)
}

// ToolCompleted notifies that a tool invocation has finished, successfully
// or not, with a short human-readable summary of the outcome.
func (e *Emitter) ToolCompleted(name, prettyInput string, success bool, summary string) {
	ev := e.base(EventToolCompleted)
	ev.ToolName = name
	ev.ToolInput = prettyInput
	ev.Success = success
	ev.Summary = summary
	e.sink.Emit(ev)
}

// StreamingChunk forwards one incremental chunk of model output.
func (e *Emitter) StreamingChunk(text string) {
	ev := e.base(EventStreamingChunk)
	ev.Text = text
	e.sink.Emit(ev)
}

// IntermediateText notifies of a complete assistant text block that
// precedes further tool calls within the same turn.
func (e *Emitter) IntermediateText(text string) {
	ev := e.base(EventIntermediateText)
	ev.Text = text
	e.sink.Emit(ev)
}

// Compacting notifies that the Compactor has begun shrinking context.
func (e *Emitter) Compacting() {
	e.sink.Emit(e.base(EventCompacting))
}

// CompactionSummary forwards the summary text produced by a completed
// compaction pass.
func (e *Emitter) CompactionSummary(summary string) {
	ev := e.base(EventCompactionSummary)
	ev.Summary = summary
	e.sink.Emit(ev)
}

// RestartReady notifies that the loop has reached a state from which a
// crashed or reconnecting shell can safely resume (status describes which
// terminal or suspended state it is).
func (e *Emitter) RestartReady(status string) {
	ev := e.base(EventRestartReady)
	ev.Status = status
	e.sink.Emit(ev)
}
