package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opencrabs/opencrabs/internal/agent"
	"github.com/opencrabs/opencrabs/internal/config"
	"github.com/opencrabs/opencrabs/internal/cron"
	"github.com/opencrabs/opencrabs/pkg/models"
)

// ScheduleBridge connects the cron Scheduler's job ports to the Router.
// Message jobs deliver their rendered content straight to a transport
// without running an agent turn; agent jobs run a full turn through the
// Agent Loop and deliver the reply to the job's channel, or run headless
// against the owner's shared session when the job names no channel.
//
// It implements both cron.MessageSender and cron.AgentRunner, so one value
// satisfies cron.WithMessageSender and cron.WithAgentRunner.
type ScheduleBridge struct {
	Router *Router

	// OwnerChannel names the transport whose configured owner a headless
	// agent job (no channel in the payload) impersonates, so its turn runs
	// on the shared session. Required only when such jobs are configured.
	OwnerChannel models.ChannelType
}

var _ cron.MessageSender = (*ScheduleBridge)(nil)
var _ cron.AgentRunner = (*ScheduleBridge)(nil)

// Send implements cron.MessageSender: deliver message.Content to
// (message.Channel, message.ChannelID) as-is. The scheduler has already
// rendered any template into Content before calling.
func (b *ScheduleBridge) Send(ctx context.Context, message *config.CronMessageConfig) error {
	if b.Router == nil {
		return errors.New("channels: schedule bridge has no router")
	}
	if message == nil {
		return errors.New("channels: message job has no payload")
	}
	if b.Router.Deliver == nil {
		return errors.New("channels: no delivery hook attached")
	}

	ch := models.ChannelType(strings.ToLower(strings.TrimSpace(message.Channel)))
	b.Router.deliver(ctx, Outbound{
		Channel:       ch,
		ParticipantID: strings.TrimSpace(message.ChannelID),
		Response:      &agent.Response{Text: message.Content, State: agent.StateCompleted},
		Chunks:        chunkForChannel(ch, message.Content),
	})
	return nil
}

// Run implements cron.AgentRunner: run the job's rendered content as one
// agent turn. With a channel in the payload the turn runs on that
// participant's session and the reply is delivered back to it; without one
// the turn runs on the owner's shared session and the reply is discarded
// (the session history still records it).
func (b *ScheduleBridge) Run(ctx context.Context, job *cron.Job) error {
	if b.Router == nil {
		return errors.New("channels: schedule bridge has no router")
	}
	if job == nil || job.Message == nil {
		return errors.New("channels: agent job has no payload")
	}

	in := Inbound{
		Channel:       models.ChannelType(strings.ToLower(strings.TrimSpace(job.Message.Channel))),
		ParticipantID: strings.TrimSpace(job.Message.ChannelID),
		Text:          job.Message.Content,
	}
	headless := in.Channel == "" && in.ParticipantID == ""
	if headless {
		in.Channel = b.OwnerChannel
		in.ParticipantID = b.Router.Owners[b.OwnerChannel]
	}

	resp, err := b.Router.RunTurn(ctx, in)
	if err != nil {
		return fmt.Errorf("channels: agent job %s: %w", job.ID, err)
	}
	if headless {
		return nil
	}

	out := Outbound{Channel: in.Channel, ParticipantID: in.ParticipantID, Response: resp}
	if resp != nil && resp.Text != "" {
		out.Chunks = chunkForChannel(in.Channel, resp.Text)
	}
	b.Router.deliver(ctx, out)
	return nil
}
