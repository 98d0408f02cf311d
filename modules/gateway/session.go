package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/quitmate/realtime/domain/chat"
	"github.com/quitmate/realtime/modules/community"
	"github.com/quitmate/realtime/protocol"
)

const (
	// authTimeout bounds how long an unauthenticated connection may idle.
	authTimeout = 10 * time.Second
	// sendBuffer is the per-session outbound queue depth.
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

// session is a single WebSocket connection. Outbound frames go through the
// send channel so only writePump touches the connection for writes.
type session struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time

	mu       sync.Mutex
	userID   string
	username string
	closed   bool
}

func newSession(conn *websocket.Conn) *session {
	return &session{
		id:          uuid.New().String(),
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		connectedAt: time.Now(),
	}
}

func (s *session) identity() (userID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.username
}

func (s *session) authenticate(userID, username string) {
	s.mu.Lock()
	s.userID = userID
	s.username = username
	s.mu.Unlock()
}

func (s *session) authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID != ""
}

// enqueue queues a frame for delivery. It reports false when the session's
// buffer is full or the session is closed.
func (s *session) enqueue(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// writePump drains the send channel onto the connection.
func (s *session) writePump() {
	for data := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// handleConnection runs the read loop for one connection.
func (h *Handlers) handleConnection(c *websocket.Conn) {
	s := newSession(c)
	h.hub.Register(s)
	go s.writePump()

	defer func() {
		communities := h.hub.Communities(s.id)
		h.hub.Unregister(s)
		userID, username := s.identity()
		for _, communityID := range communities {
			h.announceLeave(communityID, userID, username)
		}
		c.Close()
	}()

	h.logger.Info("websocket connected", "sessionID", s.id)

	// Unauthenticated connections only get a short grace period.
	_ = c.SetReadDeadline(time.Now().Add(authTimeout))

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("websocket read error", "sessionID", s.id, "error", err)
			}
			break
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			h.sendError(s, "bad_request", "invalid frame")
			continue
		}

		h.dispatch(s, env)
	}

	h.logger.Info("websocket disconnected", "sessionID", s.id)
}

func (h *Handlers) dispatch(s *session, env *protocol.Envelope) {
	if env.Event == protocol.EventAuthenticate {
		h.handleAuthenticate(s, env)
		return
	}
	if !s.authenticated() {
		h.sendError(s, "unauthenticated", "authenticate first")
		return
	}

	switch env.Event {
	case protocol.EventJoinCommunity:
		h.handleJoin(s, env)
	case protocol.EventLeaveCommunity:
		h.handleLeave(s, env)
	case protocol.EventSendMessage:
		h.handleSendMessage(s, env)
	case protocol.EventEditMessage:
		h.handleEditMessage(s, env)
	case protocol.EventDeleteMessage:
		h.handleDeleteMessage(s, env)
	case protocol.EventAddReaction:
		h.handleReaction(s, env, true)
	case protocol.EventRemoveReaction:
		h.handleReaction(s, env, false)
	case protocol.EventTypingStart:
		h.handleTyping(s, env, protocol.EventUserTyping)
	case protocol.EventTypingStop:
		h.handleTyping(s, env, protocol.EventUserStopTyping)
	default:
		h.sendError(s, "unknown_event", "unknown event: "+env.Event)
	}
}

func (h *Handlers) handleAuthenticate(s *session, env *protocol.Envelope) {
	var req protocol.Authenticate
	if err := env.Payload(&req); err != nil {
		h.sendError(s, "bad_request", "invalid authenticate payload")
		return
	}

	claims, err := h.jwt.ValidateToken(req.Token)
	if err != nil || (req.UserID != "" && req.UserID != claims.UserID) {
		// The connection stays open so the client can retry with a
		// fresh token.
		h.sendEvent(s, protocol.EventAuthenticationError, protocol.AuthResult{Status: "error"})
		h.logger.Warn("authentication failed", "sessionID", s.id, "error", err)
		return
	}

	s.authenticate(claims.UserID, claims.Username)
	_ = s.conn.SetReadDeadline(time.Time{})
	h.sendEvent(s, protocol.EventAuthenticated, protocol.AuthResult{Status: "ok", UserID: claims.UserID})
	h.logger.Info("session authenticated", "sessionID", s.id, "userID", claims.UserID)
}

func (h *Handlers) handleJoin(s *session, env *protocol.Envelope) {
	var req protocol.CommunityRef
	if err := env.Payload(&req); err != nil || req.CommunityID == "" {
		h.sendError(s, "bad_request", "communityId is required")
		return
	}

	userID, username := s.identity()
	h.hub.Join(s.id, req.CommunityID)
	h.sendEvent(s, protocol.EventJoinedCommunity, protocol.CommunityRef{CommunityID: req.CommunityID})

	h.hub.BroadcastExcept(req.CommunityID, s.id, protocol.EventUserJoined, protocol.UserEvent{
		UserID: userID, Username: username, CommunityID: req.CommunityID,
	})
	h.broadcastPresence(req.CommunityID)
}

func (h *Handlers) handleLeave(s *session, env *protocol.Envelope) {
	var req protocol.CommunityRef
	if err := env.Payload(&req); err != nil || req.CommunityID == "" {
		h.sendError(s, "bad_request", "communityId is required")
		return
	}

	userID, username := s.identity()
	h.hub.Leave(s.id, req.CommunityID)
	h.announceLeave(req.CommunityID, userID, username)
}

func (h *Handlers) announceLeave(communityID, userID, username string) {
	h.hub.Broadcast(communityID, protocol.EventUserLeft, protocol.UserEvent{
		UserID: userID, Username: username, CommunityID: communityID,
	})
	h.broadcastPresence(communityID)
}

// broadcastPresence sends the full presence snapshot to a community.
// Receivers replace their previous state wholesale.
func (h *Handlers) broadcastPresence(communityID string) {
	h.hub.Broadcast(communityID, protocol.EventOnlineUsersUpdated, protocol.OnlineUsers{
		CommunityID: communityID,
		Users:       h.hub.OnlineUsers(communityID),
	})
}

func (h *Handlers) handleSendMessage(s *session, env *protocol.Envelope) {
	var req protocol.SendMessage
	if err := env.Payload(&req); err != nil {
		h.sendError(s, "bad_request", "invalid message payload")
		return
	}

	userID, username := s.identity()
	msg, err := h.svc.PostMessage(community.PostMessageParams{
		CommunityID: req.CommunityID,
		UserID:      userID,
		Username:    username,
		Content:     req.Content,
		MessageType: req.MessageType,
		FileURL:     req.FileURL,
		ReplyTo:     req.ReplyTo,
	})
	if err != nil {
		h.sendError(s, "send_failed", err.Error())
		return
	}

	h.hub.Broadcast(msg.CommunityID, protocol.EventNewMessage, msg)
}

func (h *Handlers) handleEditMessage(s *session, env *protocol.Envelope) {
	var req protocol.EditMessage
	if err := env.Payload(&req); err != nil {
		h.sendError(s, "bad_request", "invalid edit payload")
		return
	}

	userID, _ := s.identity()
	msg, err := h.svc.EditMessage(req.MessageID, userID, req.Content)
	if err != nil {
		h.sendError(s, editErrorCode(err), err.Error())
		return
	}

	h.hub.Broadcast(msg.CommunityID, protocol.EventMessageEdited, msg)
}

func (h *Handlers) handleDeleteMessage(s *session, env *protocol.Envelope) {
	var req protocol.MessageRef
	if err := env.Payload(&req); err != nil {
		h.sendError(s, "bad_request", "invalid delete payload")
		return
	}

	userID, _ := s.identity()
	msg, err := h.svc.DeleteMessage(req.MessageID, userID)
	if err != nil {
		h.sendError(s, editErrorCode(err), err.Error())
		return
	}

	h.hub.Broadcast(msg.CommunityID, protocol.EventMessageDeleted, protocol.MessageDeleted{
		MessageID:   msg.ID,
		CommunityID: msg.CommunityID,
	})
}

func (h *Handlers) handleReaction(s *session, env *protocol.Envelope, add bool) {
	var req protocol.ReactionChange
	if err := env.Payload(&req); err != nil {
		h.sendError(s, "bad_request", "invalid reaction payload")
		return
	}

	userID, _ := s.identity()
	event := protocol.EventReactionAdded
	var (
		msg       *chat.Message
		reactions []chat.Reaction
		err       error
	)
	if add {
		msg, reactions, err = h.svc.AddReaction(req.MessageID, userID, req.Emoji)
	} else {
		msg, reactions, err = h.svc.RemoveReaction(req.MessageID, userID, req.Emoji)
		event = protocol.EventReactionRemoved
	}
	if err != nil {
		h.sendError(s, "reaction_failed", err.Error())
		return
	}

	// Receivers get the complete reaction set, not a delta.
	h.hub.Broadcast(msg.CommunityID, event, protocol.ReactionUpdate{
		MessageID:   msg.ID,
		CommunityID: msg.CommunityID,
		Reactions:   reactions,
	})
}

func (h *Handlers) handleTyping(s *session, env *protocol.Envelope, outEvent string) {
	var req protocol.CommunityRef
	if err := env.Payload(&req); err != nil || req.CommunityID == "" {
		h.sendError(s, "bad_request", "communityId is required")
		return
	}

	userID, username := s.identity()
	h.hub.BroadcastExcept(req.CommunityID, s.id, outEvent, protocol.Typing{
		UserID:      userID,
		Username:    username,
		CommunityID: req.CommunityID,
	})
}

func editErrorCode(err error) string {
	switch {
	case errors.Is(err, community.ErrMessageNotFound):
		return "not_found"
	case errors.Is(err, community.ErrNotAuthor):
		return "forbidden"
	default:
		return "bad_request"
	}
}

func (h *Handlers) sendEvent(s *session, event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}
	if !s.enqueue(data) {
		h.logger.Warn("dropping event for slow session", "sessionID", s.id, "event", event)
	}
}

func (h *Handlers) sendError(s *session, code, message string) {
	h.sendEvent(s, protocol.EventError, protocol.ErrorEvent{Code: code, Message: message})
}
