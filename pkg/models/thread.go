package models

// ThreadKind describes how a thread came to exist. It affects which close
// path is allowed (ban appeals may only be closed through an accept/deny
// decision) but not how messages are relayed.
type ThreadKind string

const (
	KindUser      ThreadKind = "user"
	KindModerator ThreadKind = "moderator"
	KindBanAppeal ThreadKind = "ban_appeal"
	KindReport    ThreadKind = "message_report"
)

// UserRef identifies one side of a conversation. Avatar is an opaque
// reference owned by the chat platform.
type UserRef struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Discriminator string `json:"discriminator,omitempty"`
	Avatar        string `json:"avatar_url,omitempty"`
	Mod           bool   `json:"mod"`
}

// Thread is one persisted modmail conversation. The messages log lives
// under separate per-message keys (see pkg/store); it is append-only and
// never reordered.
type Thread struct {
	ID   string     `json:"id"`
	Open bool       `json:"open"`
	Kind ThreadKind `json:"kind"`
	// CreatedTS / ClosedTS are UTC nanoseconds. ClosedTS is zero while open.
	CreatedTS int64 `json:"created_ts"`
	ClosedTS  int64 `json:"closed_ts,omitempty"`
	// ChannelID / GuildID locate the staff-side channel; both are opaque
	// identifiers owned by the gateway.
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`

	Recipient UserRef  `json:"recipient"`
	Creator   UserRef  `json:"creator"`
	Closer    *UserRef `json:"closer,omitempty"`
	// CloseReason is an optional annotation set at close time.
	CloseReason string `json:"close_reason,omitempty"`
}
