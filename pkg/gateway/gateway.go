// Package gateway defines the chat-platform collaborator the mail core
// talks to. The actual platform connection (Discord-style gateway,
// websocket session, shard management) runs out of process; this package
// only owns the calling interface and a REST adapter to the bridge.
package gateway

import (
	"context"
	"errors"
)

// ErrDelivery is the generic failure for any gateway call.
var ErrDelivery = errors.New("gateway delivery failed")

// ErrUnreachable indicates a direct message to an end user could not be
// established (DMs closed, user left, bot blocked).
var ErrUnreachable = errors.New("recipient unreachable")

// ErrMemberNotFound indicates the user is not a member of the queried guild.
var ErrMemberNotFound = errors.New("member not found")

// MessageRef identifies a message the gateway delivered.
type MessageRef struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// ChannelRef identifies a channel the gateway created.
type ChannelRef struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id"`
	Name    string `json:"name"`
}

// Member is the resolved guild-membership view of a user.
type Member struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Discriminator string `json:"discriminator,omitempty"`
	Avatar        string `json:"avatar_url,omitempty"`
}

// Client is the outbound half of the collaborator. All calls may block on
// network I/O and honor ctx cancellation.
type Client interface {
	// SendDirectMessage delivers content to a user's DM channel. Returns
	// ErrUnreachable when the DM cannot be established.
	SendDirectMessage(ctx context.Context, userID, content string, attachments []string) (MessageRef, error)
	// PostToChannel posts to a staff-side channel.
	PostToChannel(ctx context.Context, channelID, content string, attachments []string) (MessageRef, error)
	// CreateChannel creates a thread channel under the modmail category.
	CreateChannel(ctx context.Context, guildID, name, reason string) (ChannelRef, error)
	// DeleteChannel tears down (or archives) a thread channel.
	DeleteChannel(ctx context.Context, channelID, reason string) error
	// ResolveMember looks a user up in a guild. Returns ErrMemberNotFound
	// when they are not a member.
	ResolveMember(ctx context.Context, guildID, userID string) (Member, error)
}
