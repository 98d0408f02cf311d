package chat

import "time"

// Message types supported on the wire.
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// Message represents a chat message as it travels over the wire.
// Deleted messages are tombstones: the record survives with Deleted set and
// the content blanked, so clients keep it in the view history.
type Message struct {
	ID          string     `json:"id"`
	CommunityID string     `json:"communityId"`
	UserID      string     `json:"userId"`
	Username    string     `json:"username,omitempty"`
	Content     string     `json:"content"`
	MessageType string     `json:"messageType"`
	FileURL     string     `json:"fileUrl,omitempty"`
	ReplyTo     *string    `json:"replyTo,omitempty"`
	Edited      bool       `json:"edited"`
	EditedAt    *time.Time `json:"editedAt,omitempty"`
	Deleted     bool       `json:"deleted"`
	CreatedAt   time.Time  `json:"createdAt"`
	Reactions   []Reaction `json:"reactions"`
}

// Reaction is a single user's emoji reaction to a message, keyed by
// (message, user, emoji). Servers always broadcast the full reaction set for
// a message; clients replace their copy rather than patching it.
type Reaction struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// OnlineUser is one entry in a community's presence snapshot.
type OnlineUser struct {
	UserID   string    `json:"userId"`
	Username string    `json:"username,omitempty"`
	LastSeen time.Time `json:"lastSeen"`
}
