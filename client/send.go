package client

import (
	"time"

	"github.com/quitmate/realtime/domain/chat"
	"github.com/quitmate/realtime/protocol"
)

// JoinCommunity asks the server to add this client to a community and makes
// it the current room. The previous room stays joined until LeaveCommunity.
// When called before authentication completes, the join is parked: it fires
// as soon as the handshake finishes, or is dropped after the deferred wait.
// A newer parked join replaces an older one.
func (c *Client) JoinCommunity(communityID string) {
	if c.State() == StateAuthenticated {
		c.rooms.Join(communityID)
		if err := c.sendFrame(protocol.EventJoinCommunity, protocol.CommunityRef{CommunityID: communityID}); err != nil {
			c.logger.Warn("failed to send join", "communityId", communityID, "error", err)
		}
		return
	}

	c.pendMu.Lock()
	if c.pendingJoin != nil {
		c.pendingJoin.timer.Stop()
		c.logger.Debug("replacing parked join", "communityId", c.pendingJoin.value)
	}
	op := &deferredOp[string]{value: communityID}
	op.timer = time.AfterFunc(c.opts.DeferredWait, func() { c.dropDeferredJoin(op) })
	c.pendingJoin = op
	c.pendMu.Unlock()
}

func (c *Client) dropDeferredJoin(op *deferredOp[string]) {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	if c.pendingJoin == op {
		c.pendingJoin = nil
		c.logger.Warn("dropping join, authentication did not complete in time", "communityId", op.value)
	}
}

// LeaveCommunity removes this client from a community.
func (c *Client) LeaveCommunity(communityID string) {
	c.rooms.Leave(communityID)
	if c.State() != StateAuthenticated {
		return
	}
	if err := c.sendFrame(protocol.EventLeaveCommunity, protocol.CommunityRef{CommunityID: communityID}); err != nil {
		c.logger.Warn("failed to send leave", "communityId", communityID, "error", err)
	}
}

// SendMessage posts a message to a community. Delivery is best effort:
// there is no per-message acknowledgement. When called before
// authentication completes, the message is parked in a single slot; a
// newer send replaces an older parked one, and the slot is dropped after
// the deferred wait.
func (c *Client) SendMessage(msg protocol.SendMessage) {
	if msg.MessageType == "" {
		msg.MessageType = "text"
	}
	if c.State() == StateAuthenticated {
		if err := c.sendFrame(protocol.EventSendMessage, msg); err != nil {
			c.logger.Warn("failed to send message", "communityId", msg.CommunityID, "error", err)
		}
		return
	}

	c.pendMu.Lock()
	if c.pendingSend != nil {
		c.pendingSend.timer.Stop()
		c.logger.Debug("replacing parked message", "communityId", c.pendingSend.value.CommunityID)
	}
	op := &deferredOp[protocol.SendMessage]{value: msg}
	op.timer = time.AfterFunc(c.opts.DeferredWait, func() { c.dropDeferredSend(op) })
	c.pendingSend = op
	c.pendMu.Unlock()
}

func (c *Client) dropDeferredSend(op *deferredOp[protocol.SendMessage]) {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	if c.pendingSend == op {
		c.pendingSend = nil
		c.logger.Warn("dropping message, authentication did not complete in time", "communityId", op.value.CommunityID)
	}
}

// EditMessage rewrites one of this user's messages. No-op when not
// authenticated.
func (c *Client) EditMessage(messageID, content string) {
	c.sendOrSkip(protocol.EventEditMessage, protocol.EditMessage{MessageID: messageID, Content: content})
}

// DeleteMessage tombstones one of this user's messages. No-op when not
// authenticated.
func (c *Client) DeleteMessage(messageID string) {
	c.sendOrSkip(protocol.EventDeleteMessage, protocol.MessageRef{MessageID: messageID})
}

// AddReaction adds this user's reaction to a message. Adding the same
// emoji twice is harmless. No-op when not authenticated.
func (c *Client) AddReaction(messageID, emoji string) {
	c.sendOrSkip(protocol.EventAddReaction, protocol.ReactionChange{MessageID: messageID, Emoji: emoji})
}

// RemoveReaction removes this user's reaction from a message. No-op when
// not authenticated.
func (c *Client) RemoveReaction(messageID, emoji string) {
	c.sendOrSkip(protocol.EventRemoveReaction, protocol.ReactionChange{MessageID: messageID, Emoji: emoji})
}

// StartTyping announces that this user is typing in a community. No-op
// when not authenticated.
func (c *Client) StartTyping(communityID string) {
	c.sendOrSkip(protocol.EventTypingStart, protocol.CommunityRef{CommunityID: communityID})
}

// StopTyping clears this user's typing announcement. No-op when not
// authenticated.
func (c *Client) StopTyping(communityID string) {
	c.sendOrSkip(protocol.EventTypingStop, protocol.CommunityRef{CommunityID: communityID})
}

// sendOrSkip covers the operations that are meaningless without a live
// session and therefore have no deferred path.
func (c *Client) sendOrSkip(event string, payload any) {
	if c.State() != StateAuthenticated {
		c.logger.Debug("skipping while not authenticated", "event", event)
		return
	}
	if err := c.sendFrame(event, payload); err != nil {
		c.logger.Warn("failed to send", "event", event, "error", err)
	}
}

// OnStateChange registers a listener for connection state transitions.
func (c *Client) OnStateChange(fn func(State)) func() { return c.onState.on(fn) }

// OnJoined registers a listener for join confirmations.
func (c *Client) OnJoined(fn func(communityID string)) func() { return c.onJoined.on(fn) }

// OnMessage registers a listener for new messages. Delivery from the
// server is at-least-once; listeners should treat the message ID as the
// deduplication key.
func (c *Client) OnMessage(fn func(chat.Message)) func() { return c.onMessage.on(fn) }

// OnMessageEdited registers a listener for message edits.
func (c *Client) OnMessageEdited(fn func(chat.Message)) func() { return c.onMessageEdited.on(fn) }

// OnMessageDeleted registers a listener for message deletions.
func (c *Client) OnMessageDeleted(fn func(protocol.MessageDeleted)) func() {
	return c.onMessageDeleted.on(fn)
}

// OnReactionsChanged registers a listener for reaction updates. Each
// update carries the complete reaction set for the message.
func (c *Client) OnReactionsChanged(fn func(protocol.ReactionUpdate)) func() {
	return c.onReactions.on(fn)
}

// OnPresenceChanged registers a listener for online user snapshots.
func (c *Client) OnPresenceChanged(fn func(protocol.OnlineUsers)) func() {
	return c.onPresence.on(fn)
}

// OnTyping registers a listener for typing starts.
func (c *Client) OnTyping(fn func(protocol.Typing)) func() { return c.onTyping.on(fn) }

// OnStopTyping registers a listener for typing stops, including local
// expiry of typing indicators.
func (c *Client) OnStopTyping(fn func(protocol.Typing)) func() { return c.onStopTyping.on(fn) }

// OnUserJoined registers a listener for join announcements.
func (c *Client) OnUserJoined(fn func(protocol.UserEvent)) func() { return c.onUserJoined.on(fn) }

// OnUserLeft registers a listener for leave announcements.
func (c *Client) OnUserLeft(fn func(protocol.UserEvent)) func() { return c.onUserLeft.on(fn) }

// OnServerError registers a listener for server-side application errors.
func (c *Client) OnServerError(fn func(protocol.ErrorEvent)) func() { return c.onServerError.on(fn) }
