package community

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/go-monolith/mono"
	"github.com/google/uuid"

	"github.com/quitmate/realtime/domain/chat"
)

// Validation constants.
const (
	MaxContentLength = 5000
	MaxEmojiLength   = 32
	MaxHistoryLimit  = 100
)

// Validation errors.
var (
	ErrContentEmpty   = errors.New("message content cannot be empty")
	ErrContentTooLong = errors.New("message content exceeds maximum length")
	ErrContentInvalid = errors.New("message content contains invalid characters")
	ErrBadMessageType = errors.New("unknown message type")
	ErrEmojiEmpty     = errors.New("emoji cannot be empty")
	ErrEmojiTooLong   = errors.New("emoji exceeds maximum length")
	ErrCommunityEmpty = errors.New("community id is required")
)

// PostMessageParams carries everything needed to post a message.
type PostMessageParams struct {
	CommunityID string
	UserID      string
	Username    string
	Content     string
	MessageType string
	FileURL     string
	ReplyTo     *string
}

// Service provides the chat message operations behind the gateway. All
// mutations publish a domain event on the bus so sibling modules (cache
// invalidation, future consumers) see them; publishing is best-effort and
// never fails the operation.
type Service struct {
	repo   *Repository
	bus    mono.EventBus
	logger logger
}

// logger is the subset of mono's types.Logger the service needs.
type logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

// NewService creates a new community service. bus may be nil; events are
// then skipped. log may be nil.
func NewService(repo *Repository, bus mono.EventBus, log logger) *Service {
	if log == nil {
		log = nopLogger{}
	}
	return &Service{repo: repo, bus: bus, logger: log}
}

// PostMessage validates and stores a new message and returns its wire form.
func (s *Service) PostMessage(p PostMessageParams) (*chat.Message, error) {
	if p.CommunityID == "" {
		return nil, ErrCommunityEmpty
	}
	if err := ValidateContent(p.Content); err != nil {
		return nil, err
	}
	msgType := p.MessageType
	if msgType == "" {
		msgType = chat.MessageTypeText
	}
	if err := ValidateMessageType(msgType); err != nil {
		return nil, err
	}

	// Weak reference only: a dangling replyTo is allowed to go stale when
	// the referenced message is deleted, but it must exist at post time.
	if p.ReplyTo != nil {
		if _, err := s.repo.FindMessage(*p.ReplyTo); err != nil {
			return nil, err
		}
	}

	rec := &MessageRecord{
		ID:          uuid.New().String(),
		CommunityID: p.CommunityID,
		UserID:      p.UserID,
		Username:    p.Username,
		Content:     p.Content,
		MessageType: msgType,
		FileURL:     p.FileURL,
		ReplyTo:     p.ReplyTo,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.CreateMessage(rec); err != nil {
		return nil, err
	}
	s.logger.Debug("Message stored", "communityID", rec.CommunityID, "messageID", rec.ID)

	msg := rec.toWire(nil)
	if s.bus != nil {
		event := MessageEvent{CommunityID: msg.CommunityID, Message: msg}
		s.warnPublish("MessagePosted", MessagePostedV1.Publish(s.bus, event, nil))
	}
	return &msg, nil
}

// EditMessage rewrites a message's content on behalf of its author.
func (s *Service) EditMessage(messageID, userID, content string) (*chat.Message, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}

	rec, err := s.repo.EditMessage(messageID, userID, content)
	if err != nil {
		return nil, err
	}

	reactions, err := s.wireReactions(messageID)
	if err != nil {
		return nil, err
	}
	msg := rec.toWire(reactions)
	if s.bus != nil {
		event := MessageEvent{CommunityID: msg.CommunityID, Message: msg}
		s.warnPublish("MessageEdited", MessageEditedV1.Publish(s.bus, event, nil))
	}
	return &msg, nil
}

// DeleteMessage tombstones a message on behalf of its author.
func (s *Service) DeleteMessage(messageID, userID string) (*chat.Message, error) {
	rec, err := s.repo.DeleteMessage(messageID, userID)
	if err != nil {
		return nil, err
	}

	msg := rec.toWire(nil)
	if s.bus != nil {
		event := MessageEvent{CommunityID: msg.CommunityID, Message: msg}
		s.warnPublish("MessageDeleted", MessageDeletedV1.Publish(s.bus, event, nil))
	}
	return &msg, nil
}

// AddReaction records a reaction and returns the message's full current
// reaction set.
func (s *Service) AddReaction(messageID, userID, emoji string) (*chat.Message, []chat.Reaction, error) {
	if err := ValidateEmoji(emoji); err != nil {
		return nil, nil, err
	}

	rec, err := s.repo.FindMessage(messageID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.AddReaction(&ReactionRecord{
		ID:        uuid.New().String(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, nil, err
	}

	return s.reactionsChanged(rec)
}

// RemoveReaction removes a reaction and returns the message's full current
// reaction set.
func (s *Service) RemoveReaction(messageID, userID, emoji string) (*chat.Message, []chat.Reaction, error) {
	if err := ValidateEmoji(emoji); err != nil {
		return nil, nil, err
	}

	rec, err := s.repo.FindMessage(messageID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.RemoveReaction(messageID, userID, emoji); err != nil {
		return nil, nil, err
	}

	return s.reactionsChanged(rec)
}

// History returns up to limit messages for a community in chronological
// order, each carrying its full reaction set. Tombstones are included.
func (s *Service) History(communityID, beforeID string, limit int) ([]chat.Message, error) {
	if communityID == "" {
		return nil, ErrCommunityEmpty
	}
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	records, err := s.repo.History(communityID, beforeID, limit)
	if err != nil {
		return nil, err
	}

	messages := make([]chat.Message, 0, len(records))
	for i := range records {
		reactions, err := s.wireReactions(records[i].ID)
		if err != nil {
			return nil, err
		}
		messages = append(messages, records[i].toWire(reactions))
	}
	return messages, nil
}

func (s *Service) reactionsChanged(rec *MessageRecord) (*chat.Message, []chat.Reaction, error) {
	reactions, err := s.wireReactions(rec.ID)
	if err != nil {
		return nil, nil, err
	}

	msg := rec.toWire(reactions)
	if s.bus != nil {
		event := ReactionEvent{
			CommunityID: rec.CommunityID,
			MessageID:   rec.ID,
			Reactions:   reactions,
		}
		s.warnPublish("ReactionsChanged", ReactionsChangedV1.Publish(s.bus, event, nil))
	}
	return &msg, reactions, nil
}

func (s *Service) wireReactions(messageID string) ([]chat.Reaction, error) {
	records, err := s.repo.ReactionsFor(messageID)
	if err != nil {
		return nil, err
	}
	reactions := make([]chat.Reaction, 0, len(records))
	for i := range records {
		reactions = append(reactions, records[i].toWire())
	}
	return reactions, nil
}

func (s *Service) warnPublish(event string, err error) {
	if err != nil {
		s.logger.Warn("Failed to publish event", "event", event, "error", err)
	}
}

// ValidateContent validates message content.
func ValidateContent(content string) error {
	if content == "" {
		return ErrContentEmpty
	}
	if len(content) > MaxContentLength {
		return ErrContentTooLong
	}
	if !utf8.ValidString(content) {
		return ErrContentInvalid
	}
	return nil
}

// ValidateMessageType checks the type against the wire vocabulary.
func ValidateMessageType(msgType string) error {
	switch msgType {
	case chat.MessageTypeText, chat.MessageTypeImage, chat.MessageTypeFile, chat.MessageTypeSystem:
		return nil
	default:
		return ErrBadMessageType
	}
}

// ValidateEmoji validates a reaction emoji.
func ValidateEmoji(emoji string) error {
	if emoji == "" {
		return ErrEmojiEmpty
	}
	if len(emoji) > MaxEmojiLength {
		return ErrEmojiTooLong
	}
	return nil
}
