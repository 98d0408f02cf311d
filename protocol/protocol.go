// Package protocol defines the websocket event vocabulary shared by the
// gateway and the client SDK. Every frame is a JSON text message holding an
// Envelope; the event name selects the payload type. Field names are part of
// the compatibility contract and must not change.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/quitmate/realtime/domain/chat"
)

// Client-to-server events.
const (
	EventAuthenticate   = "authenticate"
	EventJoinCommunity  = "join_community"
	EventLeaveCommunity = "leave_community"
	EventSendMessage    = "send_message"
	EventEditMessage    = "edit_message"
	EventDeleteMessage  = "delete_message"
	EventAddReaction    = "add_reaction"
	EventRemoveReaction = "remove_reaction"
	EventTypingStart    = "typing_start"
	EventTypingStop     = "typing_stop"
)

// Server-to-client events.
const (
	EventAuthenticated       = "authenticated"
	EventAuthenticationError = "authentication_error"
	EventJoinedCommunity     = "joined_community"
	EventNewMessage          = "new_message"
	EventMessageEdited       = "message_edited"
	EventMessageDeleted      = "message_deleted"
	EventReactionAdded       = "reaction_added"
	EventReactionRemoved     = "reaction_removed"
	EventOnlineUsersUpdated  = "online_users_updated"
	EventUserJoined          = "user_joined"
	EventUserLeft            = "user_left"
	EventUserTyping          = "user_typing"
	EventUserStopTyping      = "user_stop_typing"
	EventError               = "error"
)

// Envelope frames every message on the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Authenticate is the handshake sent after every (re)connect.
type Authenticate struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// AuthResult answers an authenticate handshake.
type AuthResult struct {
	Status string `json:"status"`
	UserID string `json:"userId,omitempty"`
}

// CommunityRef addresses a single community. Used by join/leave, their
// confirmations, and typing sends.
type CommunityRef struct {
	CommunityID string `json:"communityId"`
}

// SendMessage asks the server to post a message to a community.
type SendMessage struct {
	CommunityID string  `json:"communityId"`
	Content     string  `json:"content"`
	MessageType string  `json:"messageType"`
	FileURL     string  `json:"fileUrl,omitempty"`
	ReplyTo     *string `json:"replyTo,omitempty"`
}

// EditMessage rewrites the content of an existing message.
type EditMessage struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// MessageRef addresses a single message (delete).
type MessageRef struct {
	MessageID string `json:"messageId"`
}

// MessageDeleted notifies subscribers that a message became a tombstone.
// CommunityID is included so clients can route without a message index.
type MessageDeleted struct {
	MessageID   string `json:"messageId"`
	CommunityID string `json:"communityId"`
}

// ReactionChange adds or removes one (user, emoji) pair on a message.
type ReactionChange struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// ReactionUpdate carries the full current reaction set for a message after
// any change. Receivers replace their stored set; there is no partial-update
// path.
type ReactionUpdate struct {
	MessageID   string          `json:"messageId"`
	CommunityID string          `json:"communityId"`
	Reactions   []chat.Reaction `json:"reactions"`
}

// OnlineUsers is the authoritative presence snapshot for one community.
type OnlineUsers struct {
	CommunityID string            `json:"communityId"`
	Users       []chat.OnlineUser `json:"users"`
}

// UserEvent announces a user joining or leaving a community.
type UserEvent struct {
	UserID      string `json:"userId"`
	Username    string `json:"username,omitempty"`
	CommunityID string `json:"communityId"`
}

// Typing announces transient typing state for a user in a community.
type Typing struct {
	UserID      string `json:"userId"`
	Username    string `json:"username,omitempty"`
	CommunityID string `json:"communityId"`
}

// ErrorEvent is the generic protocol-level application error. It is
// forwarded to subscribers; it never terminates the connection.
type ErrorEvent struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Encode wraps a payload into an envelope frame.
func Encode(event string, payload any) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if payload != nil {
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode parses a raw frame into an envelope.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("decode frame: missing event name")
	}
	return &env, nil
}

// Payload unmarshals an envelope's data into dest.
func (e *Envelope) Payload(dest any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, dest); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Event, err)
	}
	return nil
}
