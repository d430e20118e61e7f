package gateway

// Event is one inbound platform occurrence delivered by the bridge. Exactly
// one of the payload pointers is set, matching Type.
type Event struct {
	Type           EventType       `json:"type"`
	DirectMessage  *InboundMessage `json:"direct_message,omitempty"`
	ChannelMessage *InboundMessage `json:"channel_message,omitempty"`
	Membership     *MemberEvent    `json:"membership,omitempty"`
}

type EventType string

const (
	EventDirectMessage  EventType = "direct_message"
	EventChannelMessage EventType = "channel_message"
	EventMemberJoin     EventType = "member_join"
	EventMemberRemove   EventType = "member_remove"
	EventMemberBan      EventType = "member_ban"
)

// InboundMessage is a message observed by the bridge, either a user DM or
// staff chatter in a thread channel.
type InboundMessage struct {
	MessageID     string   `json:"message_id"`
	ChannelID     string   `json:"channel_id,omitempty"`
	CategoryID    string   `json:"category_id,omitempty"`
	AuthorID      string   `json:"author_id"`
	AuthorName    string   `json:"author_name"`
	Discriminator string   `json:"discriminator,omitempty"`
	Avatar        string   `json:"avatar_url,omitempty"`
	Content       string   `json:"content"`
	Attachments   []string `json:"attachments,omitempty"`
	// IsCommand marks staff messages that were consumed as slash commands;
	// those never become internal transcript entries.
	IsCommand bool `json:"is_command,omitempty"`
}

// MemberEvent reports a guild membership change for a user.
type MemberEvent struct {
	GuildID       string `json:"guild_id"`
	UserID        string `json:"user_id"`
	UserName      string `json:"user_name"`
	Discriminator string `json:"discriminator,omitempty"`
	Avatar        string `json:"avatar_url,omitempty"`
}
