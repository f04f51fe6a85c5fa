package agent

import "sync"

// EventType discriminates Event payloads on the Progress Channel.
type EventType string

const (
	EventThinking          EventType = "thinking"
	EventToolStarted       EventType = "tool_started"
	EventToolCompleted     EventType = "tool_completed"
	EventStreamingChunk    EventType = "streaming_chunk"
	EventIntermediateText  EventType = "intermediate_text"
	EventCompacting        EventType = "compacting"
	EventCompactionSummary EventType = "compaction_summary"
	EventRestartReady      EventType = "restart_ready"
)

// Event is one notification on the Progress Channel. Fields outside a
// given Type are left zero; consumers switch on Type before reading them.
type Event struct {
	Type      EventType
	Sequence  uint64
	SessionID string

	ToolName  string
	ToolInput string
	Success   bool
	Summary   string

	Text string

	Status string
}

// ProgressSink receives best-effort, non-blocking progress notifications.
// Emit must never block the caller and must never panic; a sink that can't
// keep up drops events rather than stall the Agent Loop.
type ProgressSink interface {
	Emit(Event)
}

// NopSink discards every event. It is the zero-value default when no
// shell has attached a progress channel.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// ChanSink delivers events to a buffered channel, dropping the event if
// the channel is full rather than blocking the emitter.
type ChanSink struct {
	ch chan Event
}

// NewChanSink creates a ChanSink with the given buffer size.
func NewChanSink(buffer int) *ChanSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChanSink{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the sink's channel.
func (s *ChanSink) Events() <-chan Event { return s.ch }

func (s *ChanSink) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
	}
}

// MultiSink fans an event out to every attached sink, each independently
// best-effort.
type MultiSink struct {
	mu    sync.RWMutex
	sinks []ProgressSink
}

// NewMultiSink creates a MultiSink wrapping the given sinks.
func NewMultiSink(sinks ...ProgressSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Add attaches another sink.
func (m *MultiSink) Add(s ProgressSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

func (m *MultiSink) Emit(e Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		s.Emit(e)
	}
}
