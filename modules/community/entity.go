package community

import (
	"time"

	"github.com/quitmate/realtime/domain/chat"
)

// MessageRecord is the stored form of a chat message. Deletion is a
// tombstone: the row stays, Deleted flips and the content is blanked, so
// history pagination keeps returning it.
type MessageRecord struct {
	ID          string  `gorm:"primarykey;size:36"`
	CommunityID string  `gorm:"size:64;not null;index"`
	UserID      string  `gorm:"size:64;not null"`
	Username    string  `gorm:"size:50"`
	Content     string  `gorm:"size:5000"`
	MessageType string  `gorm:"size:16;not null"`
	FileURL     string  `gorm:"size:512"`
	ReplyTo     *string `gorm:"size:36"`
	Edited      bool    `gorm:"not null;default:false"`
	EditedAt    *time.Time
	Deleted     bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"index"`
}

// TableName returns the table name for MessageRecord.
func (MessageRecord) TableName() string {
	return "messages"
}

// ReactionRecord is one (message, user, emoji) reaction row. The composite
// unique index makes re-adding the same reaction a no-op at the store level.
type ReactionRecord struct {
	ID        string    `gorm:"primarykey;size:36"`
	MessageID string    `gorm:"size:36;not null;uniqueIndex:idx_reaction_key"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_reaction_key"`
	Emoji     string    `gorm:"size:32;not null;uniqueIndex:idx_reaction_key"`
	CreatedAt time.Time
}

// TableName returns the table name for ReactionRecord.
func (ReactionRecord) TableName() string {
	return "reactions"
}

func (r *MessageRecord) toWire(reactions []chat.Reaction) chat.Message {
	if reactions == nil {
		reactions = []chat.Reaction{}
	}
	return chat.Message{
		ID:          r.ID,
		CommunityID: r.CommunityID,
		UserID:      r.UserID,
		Username:    r.Username,
		Content:     r.Content,
		MessageType: r.MessageType,
		FileURL:     r.FileURL,
		ReplyTo:     r.ReplyTo,
		Edited:      r.Edited,
		EditedAt:    r.EditedAt,
		Deleted:     r.Deleted,
		CreatedAt:   r.CreatedAt,
		Reactions:   reactions,
	}
}

func (r *ReactionRecord) toWire() chat.Reaction {
	return chat.Reaction{
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji,
		CreatedAt: r.CreatedAt,
	}
}
