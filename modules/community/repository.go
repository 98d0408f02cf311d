package community

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ErrMessageNotFound is returned when a message does not exist.
var ErrMessageNotFound = errors.New("message not found")

// ErrNotAuthor is returned when a user tries to edit or delete someone
// else's message.
var ErrNotAuthor = errors.New("not the message author")

// Repository provides access to message and reaction storage.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new message repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate runs the schema migrations for the chat tables.
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&MessageRecord{}, &ReactionRecord{}); err != nil {
		return fmt.Errorf("failed to migrate chat tables: %w", err)
	}
	return nil
}

// CreateMessage saves a new message.
func (r *Repository) CreateMessage(msg *MessageRecord) error {
	if err := r.db.Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// FindMessage retrieves a message by ID, tombstones included.
func (r *Repository) FindMessage(id string) (*MessageRecord, error) {
	var msg MessageRecord
	if err := r.db.First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to find message: %w", err)
	}
	return &msg, nil
}

// EditMessage rewrites a message's content if userID is its author. The
// edited flag and timestamp are set; tombstoned messages cannot be edited.
func (r *Repository) EditMessage(id, userID, content string) (*MessageRecord, error) {
	msg, err := r.FindMessage(id)
	if err != nil {
		return nil, err
	}
	if msg.UserID != userID {
		return nil, ErrNotAuthor
	}
	if msg.Deleted {
		return nil, ErrMessageNotFound
	}

	now := time.Now()
	msg.Content = content
	msg.Edited = true
	msg.EditedAt = &now
	if err := r.db.Model(&MessageRecord{}).Where("id = ?", id).Updates(map[string]any{
		"content":   content,
		"edited":    true,
		"edited_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to edit message: %w", err)
	}
	return msg, nil
}

// DeleteMessage turns a message into a tombstone if userID is its author.
// The row is kept; only the deleted flag and blanked content change.
func (r *Repository) DeleteMessage(id, userID string) (*MessageRecord, error) {
	msg, err := r.FindMessage(id)
	if err != nil {
		return nil, err
	}
	if msg.UserID != userID {
		return nil, ErrNotAuthor
	}

	msg.Deleted = true
	msg.Content = ""
	if err := r.db.Model(&MessageRecord{}).Where("id = ?", id).Updates(map[string]any{
		"deleted": true,
		"content": "",
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to delete message: %w", err)
	}
	return msg, nil
}

// AddReaction inserts a (message, user, emoji) reaction. Re-adding an
// existing reaction is a no-op thanks to the unique index.
func (r *Repository) AddReaction(rec *ReactionRecord) error {
	if err := r.db.Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("failed to add reaction: %w", err)
	}
	return nil
}

// RemoveReaction deletes a (message, user, emoji) reaction. Removing a
// reaction that does not exist is a no-op.
func (r *Repository) RemoveReaction(messageID, userID, emoji string) error {
	err := r.db.
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&ReactionRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove reaction: %w", err)
	}
	return nil
}

// ReactionsFor returns the full current reaction set for a message, oldest
// first.
func (r *Repository) ReactionsFor(messageID string) ([]ReactionRecord, error) {
	var reactions []ReactionRecord
	err := r.db.
		Where("message_id = ?", messageID).
		Order("created_at asc, id asc").
		Find(&reactions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load reactions: %w", err)
	}
	return reactions, nil
}

// History returns up to limit messages for a community, newest last. When
// beforeID is set, only messages accepted before that message are returned
// (cursor pagination for initial state loads).
func (r *Repository) History(communityID, beforeID string, limit int) ([]MessageRecord, error) {
	q := r.db.Where("community_id = ?", communityID)

	if beforeID != "" {
		anchor, err := r.FindMessage(beforeID)
		if err != nil {
			return nil, err
		}
		q = q.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			anchor.CreatedAt, anchor.CreatedAt, anchor.ID,
		)
	}

	var page []MessageRecord
	err := q.Order("created_at desc, id desc").Limit(limit).Find(&page).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	// Reverse to chronological order for the caller.
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
