package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/opencrabs/opencrabs/internal/agent"
	"github.com/opencrabs/opencrabs/internal/observability"
	"github.com/opencrabs/opencrabs/internal/sessions"
	"github.com/opencrabs/opencrabs/pkg/models"
)

// Participant identifies one inbound sender on a transport: the channel it
// arrived on plus a transport-local user identifier.
type Participant struct {
	Channel models.ChannelType
	ID      string
}

// TurnRunner is the slice of *agent.Loop the Router depends on. A narrow
// interface keeps the Router testable without a real Provider/Registry.
type TurnRunner interface {
	Run(ctx context.Context, req agent.Request, sink agent.ProgressSink) (*agent.Response, error)
}

// Transcriber is the speech-to-text port the Router calls to normalize an
// inbound audio payload into text before it reaches the Agent Loop (§4.K
// rule 5). Optional: a nil Transcriber turns every audio message into a
// placeholder notice instead of failing the turn.
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef string) (text string, err error)
}

// Inbound is one normalized-or-not message arriving from a transport
// adapter, before the Router applies owner/extra-session routing and
// non-text normalization.
type Inbound struct {
	Channel     models.ChannelType
	ParticipantID string
	Text        string
	AudioRef    string // opaque handle/URI; normalized via Transcriber
	ImageRef    string // opaque handle/URI; normalized to an <<IMG:uri>> marker
	ReadOnly    bool

	// IsDirect, IsGroup, IsMentionableGroup, and WasMentioned describe the
	// conversation this message arrived in; they only affect whether
	// Reactions gates an ack reaction on. A transport that has no concept
	// of groups (the terminal channel, email) leaves these false, which
	// ReactionConfig.ShouldSendAck treats as "neither direct nor group".
	IsDirect           bool
	IsGroup            bool
	IsMentionableGroup bool
	WasMentioned       bool
}

// Outbound is the Router's delivery of a turn's final text back to the
// transport it arrived on — never cross-delivered to another transport
// (§4.K rule 6).
type Outbound struct {
	Channel       models.ChannelType
	ParticipantID string
	Response      *agent.Response
	Err           error

	// Chunks is Response.Text split to fit the destination channel's
	// registered message-length limit (empty when Response is nil/empty,
	// or a single element when the text already fits). A Deliver that
	// wants multi-message delivery sends these in order; a Deliver that
	// doesn't care can keep reading Response.Text directly.
	Chunks []string
}

// OwnerAllowlist reports, for a given channel, the participant ID that is
// this process's privileged "owner" on that transport — the TUI operator's
// identity on the terminal channel, or the first entry of a messaging
// channel's configured allowlist (§4.K rule 1). A channel absent from the
// allowlist has no owner, so every participant on it gets an extra session.
type OwnerAllowlist map[models.ChannelType]string

// IsOwner reports whether participant p is the owner on its channel.
func (a OwnerAllowlist) IsOwner(p Participant) bool {
	owner, ok := a[p.Channel]
	return ok && owner == p.ID
}

// Router implements the Channel Router (§4.K): it resolves each inbound
// message to a session — the single process-wide shared session for the
// owner, or a per-(channel,participant) extra session for everyone else —
// then serializes delivery into the Agent Loop one turn at a time per
// session, and routes the reply back to the originating transport only.
type Router struct {
	Sessions    sessions.Store
	Loop        TurnRunner
	Owners      OwnerAllowlist
	Transcriber Transcriber
	Deliver     func(ctx context.Context, out Outbound)

	// Metrics records inbound/outbound message counts. Nil disables
	// recording.
	Metrics *observability.Metrics

	// Activity records per-(channel,participant) last-seen timestamps,
	// independent of Metrics' aggregate counters. Nil disables recording.
	Activity *ActivityTracker

	// Reactions gates whether Route acks an inbound message with a
	// reaction before running the turn. Nil disables acks entirely.
	Reactions *ReactionConfig

	// Ack is invoked synchronously, before the Agent Loop runs, when
	// Reactions decides this message should be acked. A nil Ack makes the
	// ack decision a no-op (useful for channels/tests with no reaction
	// support).
	Ack func(ctx context.Context, in Inbound, emoji string)

	mu             sync.Mutex
	sharedSession  string
	extraSessions  map[Participant]string
	turnLocks      map[string]*sync.Mutex
	turnLocksGuard sync.Mutex
}

// NewRouter creates a Router. Owners may be nil (no participant is ever an
// owner; every participant gets its own extra session).
func NewRouter(store sessions.Store, loop TurnRunner, owners OwnerAllowlist) *Router {
	if owners == nil {
		owners = OwnerAllowlist{}
	}
	return &Router{
		Sessions:      store,
		Loop:          loop,
		Owners:        owners,
		extraSessions: map[Participant]string{},
		turnLocks:     map[string]*sync.Mutex{},
	}
}

// Route spawns one task per inbound message (§4.K concurrency contract) —
// callers invoke it with `go router.Route(...)` per message, or rely on its
// own goroutine by calling RouteAsync. Route blocks until the turn and
// delivery complete; it never returns an error directly, instead handing
// failures to Deliver so a broken transport can't wedge the caller.
func (r *Router) Route(ctx context.Context, in Inbound) {
	if r.Metrics != nil {
		r.Metrics.MessageReceived(string(in.Channel))
	}
	if r.Activity != nil {
		r.Activity.Record(string(in.Channel), in.ParticipantID, DirectionInbound)
	}
	if r.Reactions != nil && r.Ack != nil && r.Reactions.ShouldSendAck(in.IsDirect, in.IsGroup, in.IsMentionableGroup, in.WasMentioned) {
		r.Ack(ctx, in, r.Reactions.Emoji)
	}

	resp, err := r.RunTurn(ctx, in)

	if r.Metrics != nil {
		if err != nil {
			r.Metrics.RecordError("channel_router")
		} else {
			r.Metrics.MessageSent(string(in.Channel))
		}
	}
	if err == nil && r.Activity != nil {
		r.Activity.Record(string(in.Channel), in.ParticipantID, DirectionOutbound)
	}

	out := Outbound{Channel: in.Channel, ParticipantID: in.ParticipantID, Response: resp, Err: err}
	if err == nil && resp != nil && resp.Text != "" {
		out.Chunks = chunkForChannel(in.Channel, resp.Text)
	}
	r.deliver(ctx, out)
}

// RunTurn resolves in's session, normalizes its payload, and runs one agent
// turn under that session's turn lock, returning the loop's response. Route
// wraps it with metrics, ack handling, and delivery; callers that need the
// response directly — the cron bridge's agent jobs — use it on its own.
func (r *Router) RunTurn(ctx context.Context, in Inbound) (*agent.Response, error) {
	p := Participant{Channel: in.Channel, ID: in.ParticipantID}
	sessionID, err := r.resolveSession(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("channels: resolving session: %w", err)
	}

	text, imageRefs, err := r.normalize(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("channels: normalizing message: %w", err)
	}

	lock := r.turnLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return r.Loop.Run(ctx, agent.Request{
		SessionID: sessionID,
		UserText:  text,
		ImageRefs: imageRefs,
		ReadOnly:  in.ReadOnly,
		Cancel:    ctx,
	}, nil)
}

// chunkForChannel splits text to fit the message-length limit registered for
// channel in registry.go's channelCapabilities table, falling back to
// ChunkerFromCapabilities' unlimited-channel default when the channel isn't
// registered.
func chunkForChannel(channel models.ChannelType, text string) []string {
	var caps Capabilities
	if cc := GetChannelCapabilities(FromModelChannelType(channel)); cc != nil {
		caps.MaxMessageLength = cc.MaxMessageLength
	}
	return ChunkerFromCapabilities(caps).Chunk(text)
}

// RouteAsync spawns Route on its own goroutine, matching the "one task per
// inbound message" concurrency contract (§5) literally.
func (r *Router) RouteAsync(ctx context.Context, in Inbound) {
	go r.Route(ctx, in)
}

func (r *Router) deliver(ctx context.Context, out Outbound) {
	if r.Deliver != nil {
		r.Deliver(ctx, out)
	}
}

// resolveSession implements §4.K rules 1, 2, and 4: the owner always maps
// to the single shared session (created lazily and memoized on first use);
// every other participant gets its own extra session keyed by
// (channel, participant_id), created lazily and memoized for the life of
// the process.
func (r *Router) resolveSession(ctx context.Context, p Participant) (string, error) {
	if r.Owners.IsOwner(p) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.sharedSession != "" {
			return r.sharedSession, nil
		}
		s, err := r.Sessions.CreateSession(ctx, "shared")
		if err != nil {
			return "", err
		}
		r.sharedSession = s.ID
		return s.ID, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.extraSessions[p]; ok {
		return id, nil
	}
	s, err := r.Sessions.CreateSession(ctx, fmt.Sprintf("%s:%s", p.Channel, p.ID))
	if err != nil {
		return "", err
	}
	r.extraSessions[p] = s.ID
	return s.ID, nil
}

func (r *Router) turnLock(sessionID string) *sync.Mutex {
	r.turnLocksGuard.Lock()
	defer r.turnLocksGuard.Unlock()
	l, ok := r.turnLocks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		r.turnLocks[sessionID] = l
	}
	return l
}

// normalize implements §4.K rule 5: audio is transcribed to text via the
// Transcriber port; an image reference is turned into an inline
// `<<IMG:uri>>` marker in the user text so an image-capable tool can fetch
// it on demand, rather than being attached as a block the provider must
// render directly.
func (r *Router) normalize(ctx context.Context, in Inbound) (text string, imageRefs []string, err error) {
	text = in.Text

	if in.AudioRef != "" {
		if r.Transcriber == nil {
			text = joinNonEmpty(text, "[audio message received; no transcription available]")
		} else {
			transcript, terr := r.Transcriber.Transcribe(ctx, in.AudioRef)
			if terr != nil {
				return "", nil, fmt.Errorf("transcribing audio: %w", terr)
			}
			text = joinNonEmpty(text, transcript)
		}
	}

	if in.ImageRef != "" {
		text = joinNonEmpty(text, fmt.Sprintf("<<IMG:%s>>", in.ImageRef))
		imageRefs = append(imageRefs, in.ImageRef)
	}

	return text, imageRefs, nil
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n" + b
}
