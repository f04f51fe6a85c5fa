package models

import "time"

// ChannelType identifies a messaging transport a Channel Router can fan
// inbound messages in from and deliver outbound replies to (§4.K).
type ChannelType string

const (
	ChannelTelegram      ChannelType = "telegram"
	ChannelDiscord       ChannelType = "discord"
	ChannelSlack         ChannelType = "slack"
	ChannelWhatsApp      ChannelType = "whatsapp"
	ChannelSignal        ChannelType = "signal"
	ChannelIMessage      ChannelType = "imessage"
	ChannelMatrix        ChannelType = "matrix"
	ChannelTeams         ChannelType = "teams"
	ChannelEmail         ChannelType = "email"
	ChannelMattermost    ChannelType = "mattermost"
	ChannelNextcloudTalk ChannelType = "nextcloud_talk"
	ChannelNostr         ChannelType = "nostr"
	ChannelZalo          ChannelType = "zalo"
	ChannelBlueBubbles   ChannelType = "bluebubbles"
	ChannelGoogleChat    ChannelType = "googlechat"
	ChannelWeb           ChannelType = "web"
	ChannelAPI           ChannelType = "api"
	ChannelCLI           ChannelType = "cli"
)

// Direction marks whether a transport-carried Message moved into the
// agent (from a channel) or out of it (a reply dispatched to a channel).
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Attachment is a binary payload (image, document, audio) carried
// alongside a Message by a channel adapter. Channel Router code resolves
// the URL/ID into bytes on demand; attachments are never persisted to the
// Session Service inline with message content.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ConnectionStatus is the lifecycle state of one ChannelConnection.
type ConnectionStatus string

const (
	ConnectionPending      ConnectionStatus = "pending"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionError        ConnectionStatus = "error"
)

// ChannelConnection records one operator's link between a ChannelType and
// the Channel Router, independent of any particular session: a Telegram
// bot token pairing, a Discord guild install, a Slack workspace install.
type ChannelConnection struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	ChannelType    ChannelType       `json:"channel_type"`
	ChannelID      string            `json:"channel_id"`
	Status         ConnectionStatus  `json:"status"`
	Config         map[string]string `json:"config,omitempty"`
	ConnectedAt    time.Time         `json:"connected_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
}
