package models

// MessageType selects downstream display/relay treatment. Persistence does
// not vary by type.
type MessageType string

const (
	TypeThreadMessage MessageType = "thread_message"
	TypeAnonymous     MessageType = "anonymous"
	TypeInternal      MessageType = "internal"
	TypeMention       MessageType = "mention"
	TypeReport        MessageType = "report"
)

// Message is a single transcript entry inside a thread.
type Message struct {
	Thread string      `json:"thread"`
	TS     int64       `json:"ts"`
	Type   MessageType `json:"type"`
	// ExternalID is the origin platform's message id, kept for correlation
	// and debugging. It is not used for dedup.
	ExternalID string  `json:"message_id,omitempty"`
	Content    string  `json:"content"`
	Author     UserRef `json:"author"`
	// Attachments are opaque URL references; the underlying bytes are owned
	// by the platform's CDN.
	Attachments []string `json:"attachments,omitempty"`
}
