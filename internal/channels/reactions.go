package channels

import (
	"context"
	"errors"
	"sync"
)

// ErrInvalidReactionEmoji is returned by ReactionConfig.Validate when acks
// are enabled but no emoji is configured to send.
var ErrInvalidReactionEmoji = errors.New("channels: reaction config enabled but no emoji set")

// AckReactionScope controls which inbound messages Router.Reactions acks
// with a reaction before the Agent Loop runs (§4.K). The ack is purely a
// receipt signal to the sender — it carries no information the Agent Loop
// itself produces, so its absence never changes what a turn does.
type AckReactionScope string

const (
	ScopeAll           AckReactionScope = "all"            // Always send
	ScopeDirect        AckReactionScope = "direct"         // Only in DMs
	ScopeGroupAll      AckReactionScope = "group-all"      // All group messages
	ScopeGroupMentions AckReactionScope = "group-mentions" // Only when mentioned in groups
	ScopeOff           AckReactionScope = "off"            // Never send
	ScopeNone          AckReactionScope = "none"           // Never send (alias)
)

// WhatsAppAckReactionMode narrows AckReactionScope for WhatsApp, whose
// group semantics (no reliable "mentionable group" signal) don't map
// cleanly onto the generic scopes.
type WhatsAppAckReactionMode string

const (
	WhatsAppAckAlways   WhatsAppAckReactionMode = "always"
	WhatsAppAckMentions WhatsAppAckReactionMode = "mentions"
	WhatsAppAckNever    WhatsAppAckReactionMode = "never"
)

// AckReactionGateParams is the full set of signals ShouldAckReaction gates
// on. Callers with a simpler conversation model (just IsDirect/IsGroup/
// WasMentioned) go through ReactionConfig.ShouldSendAck instead, which
// fills in the mention-detection fields with sensible defaults.
type AckReactionGateParams struct {
	Scope                 AckReactionScope
	IsDirect              bool
	IsGroup               bool
	IsMentionableGroup    bool
	RequireMention        bool
	CanDetectMention      bool
	EffectiveWasMentioned bool
	ShouldBypassMention   bool
}

// ShouldAckReaction applies scope against the message's conversation
// signals. An empty scope defaults to group-mentions, matching
// DefaultReactionConfig.
func ShouldAckReaction(params AckReactionGateParams) bool {
	scope := params.Scope
	if scope == "" {
		scope = ScopeGroupMentions
	}

	switch scope {
	case ScopeOff, ScopeNone:
		return false
	case ScopeAll:
		return true
	case ScopeDirect:
		return params.IsDirect
	case ScopeGroupAll:
		return params.IsGroup
	case ScopeGroupMentions:
		return params.IsMentionableGroup &&
			params.RequireMention &&
			params.CanDetectMention &&
			(params.EffectiveWasMentioned || params.ShouldBypassMention)
	default:
		return false
	}
}

// WhatsAppAckParams captures the conversation signals available on the
// WhatsApp adapter, which has a reliable own-message mention flag but no
// general "is this group mentionable" concept.
type WhatsAppAckParams struct {
	Emoji          string
	IsDirect       bool
	IsGroup        bool
	DirectEnabled  bool
	GroupMode      WhatsAppAckReactionMode
	WasMentioned   bool
	GroupActivated bool
}

// ShouldAckReactionForWhatsApp determines WhatsApp-specific ack behavior
func ShouldAckReactionForWhatsApp(params WhatsAppAckParams) bool {
	if params.Emoji == "" {
		return false
	}
	if params.IsDirect {
		return params.DirectEnabled
	}
	if !params.IsGroup {
		return false
	}
	if params.GroupMode == WhatsAppAckNever {
		return false
	}
	if params.GroupMode == WhatsAppAckAlways {
		return true
	}
	return ShouldAckReaction(AckReactionGateParams{
		Scope:                 ScopeGroupMentions,
		IsDirect:              false,
		IsGroup:               true,
		IsMentionableGroup:    true,
		RequireMention:        true,
		CanDetectMention:      true,
		EffectiveWasMentioned: params.WasMentioned,
		ShouldBypassMention:   params.GroupActivated,
	})
}

// AckReactionTracker records which sent message IDs carry an outstanding
// ack reaction, so a transport adapter's Router.Ack implementation can
// remove the reaction once the real reply has gone out
// (ReactionConfig.RemoveAfterReply) without re-deriving that state itself.
type AckReactionTracker struct {
	mu      sync.Mutex
	pending map[string]*pendingReaction
}

type pendingReaction struct {
	emoji     string
	acked     bool
	removed   bool
	removeErr error
}

// NewAckReactionTracker creates a new tracker
func NewAckReactionTracker() *AckReactionTracker {
	return &AckReactionTracker{
		pending: make(map[string]*pendingReaction),
	}
}

// Track starts tracking a reaction
func (t *AckReactionTracker) Track(messageID, emoji string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[messageID] = &pendingReaction{
		emoji:   emoji,
		acked:   false,
		removed: false,
	}
}

// MarkAcked marks a reaction as acknowledged
func (t *AckReactionTracker) MarkAcked(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pr, ok := t.pending[messageID]; ok {
		pr.acked = true
	}
}

// RemoveAfterReply schedules removal after reply is sent
func (t *AckReactionTracker) RemoveAfterReply(messageID string, removeAfter bool, removeFn func(ctx context.Context) error) {
	t.mu.Lock()
	pr, ok := t.pending[messageID]
	if !ok {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	if !removeAfter {
		return
	}

	// Execute removal function
	if removeFn != nil {
		err := removeFn(context.Background())
		t.mu.Lock()
		pr.removed = true
		pr.removeErr = err
		t.mu.Unlock()
	}
}

// Get returns the pending reaction for a message ID if it exists
func (t *AckReactionTracker) Get(messageID string) (emoji string, exists bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pr, ok := t.pending[messageID]; ok {
		return pr.emoji, true
	}
	return "", false
}

// IsAcked returns whether a reaction has been acknowledged
func (t *AckReactionTracker) IsAcked(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pr, ok := t.pending[messageID]; ok {
		return pr.acked
	}
	return false
}

// IsRemoved returns whether a reaction has been removed
func (t *AckReactionTracker) IsRemoved(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pr, ok := t.pending[messageID]; ok {
		return pr.removed
	}
	return false
}

// RemoveError returns any error from removing a reaction
func (t *AckReactionTracker) RemoveError(messageID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pr, ok := t.pending[messageID]; ok {
		return pr.removeErr
	}
	return nil
}

// Clear removes a message from tracking
func (t *AckReactionTracker) Clear(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, messageID)
}

// ClearAll removes all tracked messages
func (t *AckReactionTracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = make(map[string]*pendingReaction)
}

// Count returns the number of tracked reactions
func (t *AckReactionTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// ReactionConfig for configuring ack reactions
type ReactionConfig struct {
	Enabled          bool
	Emoji            string // Default emoji to use (e.g., "eyes", "hourglass")
	RemoveAfterReply bool
	Scope            AckReactionScope
	DirectEnabled    bool
	GroupMode        WhatsAppAckReactionMode
}

// DefaultReactionConfig returns sensible defaults
func DefaultReactionConfig() *ReactionConfig {
	return &ReactionConfig{
		Enabled:          true,
		Emoji:            "eyes",
		RemoveAfterReply: true,
		Scope:            ScopeGroupMentions,
		DirectEnabled:    true,
		GroupMode:        WhatsAppAckMentions,
	}
}

// Validate checks if the config is valid
func (c *ReactionConfig) Validate() error {
	if c.Emoji == "" && c.Enabled {
		return ErrInvalidReactionEmoji
	}
	return nil
}

// ShouldSendAck determines if an ack should be sent based on this config
func (c *ReactionConfig) ShouldSendAck(isDirect, isGroup, isMentionableGroup, wasMentioned bool) bool {
	if !c.Enabled {
		return false
	}
	return ShouldAckReaction(AckReactionGateParams{
		Scope:                 c.Scope,
		IsDirect:              isDirect,
		IsGroup:               isGroup,
		IsMentionableGroup:    isMentionableGroup,
		RequireMention:        true,
		CanDetectMention:      true,
		EffectiveWasMentioned: wasMentioned,
		ShouldBypassMention:   false,
	})
}
