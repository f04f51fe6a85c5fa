// Package context owns the AgentContext: the in-memory, per-turn view of a
// session's system prompt, messages, and tracked files, together with a
// running token total that is always kept consistent with its contents.
package context

import (
	"github.com/opencrabs/opencrabs/internal/tokenizer"
	"github.com/opencrabs/opencrabs/pkg/models"
)

// SummaryMetadataKey marks a Message as a synthetic compaction-notice
// message rather than real conversation content.
const SummaryMetadataKey = "opencrabs_compaction_summary"

// compactionPreamble prefixes every summary produced by compact_with_summary,
// clearly delimiting it as an automated notice rather than operator text.
const compactionPreamble = "[CONTEXT COMPACTION — The conversation was automatically compacted. Below is a structured summary of everything before this point.]\n\n"

// Store owns an AgentContext for exactly one session and is never shared
// between concurrent turns.
type Store struct {
	sessionID    string
	maxTokens    int
	systemPrompt string
	messages     []*models.Message
	files        []models.TrackedFile
	tokenTotal   int
}

// New creates an empty context for a session with the given token budget.
func New(sessionID string, maxTokens int) *Store {
	return &Store{sessionID: sessionID, maxTokens: maxTokens}
}

// SessionID returns the owning session's identifier.
func (s *Store) SessionID() string { return s.sessionID }

// MaxTokens returns the configured token budget.
func (s *Store) MaxTokens() int { return s.maxTokens }

// Messages returns the current ordered message slice. Callers must not
// mutate the returned slice.
func (s *Store) Messages() []*models.Message { return s.messages }

// SystemPrompt returns the currently configured system prompt.
func (s *Store) SystemPrompt() string { return s.systemPrompt }

// TrackedFiles returns the tracked files in track order.
func (s *Store) TrackedFiles() []models.TrackedFile { return s.files }

// TokenTotal returns the running token total. It always equals the
// recomputed sum over current contents; callers never need to call Recount
// themselves after a Store method returns.
func (s *Store) TokenTotal() int { return s.tokenTotal }

// WithSystemPrompt sets the system prompt, replacing and recomputing the
// total if one was already set. Idempotent: setting the same text twice
// leaves the total unchanged only because the recomputation is exact.
func (s *Store) WithSystemPrompt(text string) {
	s.systemPrompt = text
	s.recount()
}

// AddMessage appends a message and updates the running total by exactly
// EstimateMessageTokens(m).
func (s *Store) AddMessage(m *models.Message) {
	if m == nil {
		return
	}
	s.messages = append(s.messages, m)
	s.tokenTotal += EstimateMessageTokens(m)
}

// TrackFile appends a tracked file and updates the total by its token count.
func (s *Store) TrackFile(f models.TrackedFile) {
	s.files = append(s.files, f)
	s.tokenTotal += f.TokenCount
}

// WouldExceed reports whether adding additionalTokens more would put the
// context over its configured budget.
func (s *Store) WouldExceed(additionalTokens int) bool {
	return s.tokenTotal+additionalTokens > s.maxTokens
}

// FromHistory builds a fresh context from persisted messages. Each message
// whose text content is non-empty becomes a single-TextBlock message;
// messages with empty content are skipped. Unrecognized roles coerce to
// RoleUser (ParseRole already performs that coercion on read).
func FromHistory(sessionID string, persisted []*models.Message, maxTokens int) *Store {
	s := New(sessionID, maxTokens)
	for _, pm := range persisted {
		if pm == nil {
			continue
		}
		text := pm.Text()
		if text == "" {
			continue
		}
		s.AddMessage(&models.Message{
			ID:        pm.ID,
			SessionID: sessionID,
			Sequence:  pm.Sequence,
			Role:      models.ParseRole(string(pm.Role)),
			Blocks:    models.Blocks{models.TextBlock{Text: text}},
			CreatedAt: pm.CreatedAt,
		})
	}
	return s
}

// TrimToTarget drops messages from the front until the running total is at
// or below target, always retaining at least the two most recent messages
// so a pending ToolUse/ToolResult pair is never orphaned. Returns true if
// the target is still exceeded after trimming as far as it can.
func (s *Store) TrimToTarget(target int) bool {
	for s.tokenTotal > target && len(s.messages) > 2 {
		dropped := s.messages[0]
		s.messages = s.messages[1:]
		s.tokenTotal -= EstimateMessageTokens(dropped)
	}
	return s.tokenTotal > target
}

// CompactWithSummary replaces every message except the last keepRecent with
// a single synthetic user-role message carrying summaryText behind a
// compaction-notice preamble, then recomputes the token total from scratch.
// The surviving message count is exactly min(priorCount, keepRecent) + 1.
func (s *Store) CompactWithSummary(summaryText string, keepRecent int) {
	if keepRecent < 0 {
		keepRecent = 0
	}
	tail := s.messages
	if len(tail) > keepRecent {
		tail = tail[len(tail)-keepRecent:]
	}

	notice := &models.Message{
		SessionID: s.sessionID,
		Role:      models.RoleUser,
		Blocks:    models.Blocks{models.TextBlock{Text: compactionPreamble + summaryText}},
		Metadata:  map[string]any{SummaryMetadataKey: true},
	}

	merged := make([]*models.Message, 0, len(tail)+1)
	merged = append(merged, notice)
	merged = append(merged, tail...)
	s.messages = merged
	s.recount()
}

// recount recomputes tokenTotal from scratch over the system prompt, every
// message, and every tracked file. Invariant: callers may rely on
// TokenTotal() reflecting current contents exactly after any mutation.
func (s *Store) recount() {
	total := 0
	if s.systemPrompt != "" {
		total += tokenizer.Count(s.systemPrompt)
	}
	for _, m := range s.messages {
		total += EstimateMessageTokens(m)
	}
	for _, f := range s.files {
		total += f.TokenCount
	}
	s.tokenTotal = total
}

// EstimateMessageTokens sums the estimator-reported tokens across a
// message's blocks plus the fixed per-message structural overhead. Image
// blocks are charged tokenizer.ImageTokens regardless of content, since the
// estimator itself has no notion of image payloads.
func EstimateMessageTokens(m *models.Message) int {
	if m == nil {
		return 0
	}
	total := tokenizer.CountMessage("")
	for _, b := range m.Blocks {
		switch block := b.(type) {
		case models.TextBlock:
			total += tokenizer.Count(block.Text)
		case models.ToolUseBlock:
			total += tokenizer.Count(block.Name) + tokenizer.Count(string(block.Input))
		case models.ToolResultBlock:
			total += tokenizer.Count(block.Content)
		case models.ImageBlock:
			total += tokenizer.ImageTokens
		}
	}
	return total
}
