// Package client is the Go SDK for the realtime community chat gateway. It
// owns the WebSocket connection, re-authenticates and re-joins tracked
// communities after reconnects, and maintains local presence, typing, and
// unread state from server broadcasts.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	ws "github.com/fasthttp/websocket"

	"github.com/quitmate/realtime/domain/chat"
	"github.com/quitmate/realtime/protocol"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected    // socket open, not yet authenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("client is closed")
	// ErrAuthFailed is returned when the server rejects the token.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrAlreadyConnected is returned when Connect is called with a
	// different user while a connection exists.
	ErrAlreadyConnected = errors.New("already connected as another user")
	// ErrNotConnected is returned by operations that need a live
	// authenticated connection and have no deferred path.
	ErrNotConnected = errors.New("not connected")
)

// Options configures a Client. Zero values take the defaults below.
type Options struct {
	URL               string // e.g. ws://localhost:8080/ws
	Logger            *slog.Logger
	ReconnectAttempts int           // default 5
	ReconnectBase     time.Duration // default 500ms, doubles per attempt
	ReconnectMax      time.Duration // default 30s
	HandshakeTimeout  time.Duration // default 10s, covers dial and auth
	DeferredWait      time.Duration // default 5s
}

func (o *Options) withDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.ReconnectAttempts == 0 {
		o.ReconnectAttempts = 5
	}
	if o.ReconnectBase == 0 {
		o.ReconnectBase = 500 * time.Millisecond
	}
	if o.ReconnectMax == 0 {
		o.ReconnectMax = 30 * time.Second
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.DeferredWait == 0 {
		o.DeferredWait = 5 * time.Second
	}
}

// Client is a realtime chat client. All server events are routed on a
// single goroutine, so listeners for the same community observe events in
// server order. Listener callbacks must not block.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	conn       *ws.Conn
	generation int // bumps per physical connection, stale pumps exit
	userID     string
	token      string
	closed     bool
	authWait   chan error

	writeMu sync.Mutex

	rooms    *RoomTracker
	presence *PresenceTracker
	unread   *UnreadStore

	pendMu      sync.Mutex
	pendingJoin *deferredOp[string]
	pendingSend *deferredOp[protocol.SendMessage]

	onState          emitter[State]
	onJoined         emitter[string]
	onMessage        emitter[chat.Message]
	onMessageEdited  emitter[chat.Message]
	onMessageDeleted emitter[protocol.MessageDeleted]
	onReactions      emitter[protocol.ReactionUpdate]
	onPresence       emitter[protocol.OnlineUsers]
	onTyping         emitter[protocol.Typing]
	onStopTyping     emitter[protocol.Typing]
	onUserJoined     emitter[protocol.UserEvent]
	onUserLeft       emitter[protocol.UserEvent]
	onServerError    emitter[protocol.ErrorEvent]
}

// deferredOp is a single-slot holding area for an operation issued before
// authentication completed. A later operation of the same kind replaces it;
// the timer drops it when authentication does not arrive in time.
type deferredOp[T any] struct {
	value T
	timer *time.Timer
}

// New creates a client. Connect must be called before any operation
// reaches the server.
func New(opts Options) *Client {
	opts.withDefaults()
	c := &Client{
		opts:     opts,
		logger:   opts.Logger,
		rooms:    NewRoomTracker(),
		presence: NewPresenceTracker(),
		unread:   NewUnreadStore(),
	}
	c.presence.onExpire = func(communityID, userID string) {
		c.onStopTyping.emit(protocol.Typing{UserID: userID, CommunityID: communityID})
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Rooms exposes the community membership tracker.
func (c *Client) Rooms() *RoomTracker { return c.rooms }

// Presence exposes the presence and typing tracker.
func (c *Client) Presence() *PresenceTracker { return c.presence }

// Unread exposes the unread count store.
func (c *Client) Unread() *UnreadStore { return c.unread }

// Connect dials the gateway and authenticates. It blocks until the server
// answers the handshake or ctx expires. Calling Connect again with the
// same user while connected is a no-op.
func (c *Client) Connect(ctx context.Context, userID, token string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateDisconnected {
		same := c.userID == userID
		c.mu.Unlock()
		if same {
			return nil
		}
		return ErrAlreadyConnected
	}
	c.userID = userID
	c.token = token
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return fmt.Errorf("failed to dial %s: %w", c.opts.URL, err)
	}

	wait := c.attach(conn)
	if err := c.sendAuthenticate(); err != nil {
		c.teardown(conn)
		return err
	}

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		c.teardown(conn)
		return ctx.Err()
	case <-time.After(c.opts.HandshakeTimeout):
		c.teardown(conn)
		return fmt.Errorf("authentication timed out")
	}
}

// Close shuts the client down. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.pendMu.Lock()
	if c.pendingJoin != nil {
		c.pendingJoin.timer.Stop()
		c.pendingJoin = nil
	}
	if c.pendingSend != nil {
		c.pendingSend.timer.Stop()
		c.pendingSend = nil
	}
	c.pendMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*ws.Conn, error) {
	dialer := ws.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.opts.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// attach installs a new connection and starts its read pump. It returns the
// channel the handshake result will arrive on.
func (c *Client) attach(conn *ws.Conn) chan error {
	c.mu.Lock()
	c.conn = conn
	c.generation++
	gen := c.generation
	c.setStateLocked(StateConnected)
	wait := make(chan error, 1)
	c.authWait = wait
	c.mu.Unlock()

	go c.readPump(conn, gen)
	return wait
}

// teardown abandons a connection that failed mid-handshake. Bumping the
// generation keeps its read pump from starting a reconnect.
func (c *Client) teardown(conn *ws.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.authWait = nil
		c.generation++
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()
}

func (c *Client) sendAuthenticate() error {
	c.mu.Lock()
	userID, token := c.userID, c.token
	c.mu.Unlock()
	return c.sendFrame(protocol.EventAuthenticate, protocol.Authenticate{UserID: userID, Token: token})
}

func (c *Client) sendFrame(event string, payload any) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(ws.TextMessage, data)
}

// readPump reads frames until the connection dies, then hands off to the
// reconnect path. It is the only goroutine that routes events.
func (c *Client) readPump(conn *ws.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, gen, err)
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			c.logger.Debug("discarding malformed frame", "error", err)
			continue
		}
		c.route(env)
	}
}

func (c *Client) handleDisconnect(conn *ws.Conn, gen int, cause error) {
	_ = conn.Close()

	c.mu.Lock()
	println("DEBUG handleDisconnect closed:", c.closed, "gen:", gen, "cur:", c.generation)
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if wait := c.authWait; wait != nil {
		c.authWait = nil
		wait <- fmt.Errorf("connection lost during handshake: %w", cause)
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	// Stale presence would otherwise linger until the next snapshot.
	c.presence.Reset()
	c.logger.Warn("connection lost, reconnecting", "error", cause)
	go c.reconnectLoop()
}

func (c *Client) reconnectLoop() {
	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		delay := c.opts.ReconnectBase << (attempt - 1)
		if delay > c.opts.ReconnectMax {
			delay = c.opts.ReconnectMax
		}
		time.Sleep(delay)

		c.mu.Lock()
		if c.closed || c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
		conn, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		wait := c.attach(conn)
		if err := c.sendAuthenticate(); err != nil {
			c.teardownToConnecting(conn)
			continue
		}
		select {
		case err := <-wait:
			if err != nil {
				// The token was rejected; retrying with the
				// same one cannot help.
				c.logger.Error("re-authentication failed", "error", err)
				return
			}
			c.logger.Info("reconnected", "attempt", attempt)
			return
		case <-time.After(c.opts.HandshakeTimeout):
			c.teardownToConnecting(conn)
		}
	}

	c.mu.Lock()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	c.logger.Error("giving up on reconnect", "attempts", c.opts.ReconnectAttempts)
}

// teardownToConnecting drops a half-open reconnect attempt while keeping
// the loop alive.
func (c *Client) teardownToConnecting(conn *ws.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.authWait = nil
		c.generation++
		c.setStateLocked(StateConnecting)
	}
	c.mu.Unlock()
}

// setStateLocked updates the state and fires listeners. Callers hold c.mu.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	go c.onState.emit(s)
}

// route dispatches one server frame. Runs on the read pump goroutine.
func (c *Client) route(env *protocol.Envelope) {
	switch env.Event {
	case protocol.EventAuthenticated:
		c.handleAuthenticated(env)
	case protocol.EventAuthenticationError:
		c.handleAuthError()
	case protocol.EventJoinedCommunity:
		var ref protocol.CommunityRef
		if env.Payload(&ref) == nil {
			c.onJoined.emit(ref.CommunityID)
		}
	case protocol.EventNewMessage:
		var msg chat.Message
		if env.Payload(&msg) != nil {
			return
		}
		// The active community never accumulates unread counts; this
		// is the only place that decides.
		c.unread.Observe(msg.CommunityID)
		c.onMessage.emit(msg)
	case protocol.EventMessageEdited:
		var msg chat.Message
		if env.Payload(&msg) == nil {
			c.onMessageEdited.emit(msg)
		}
	case protocol.EventMessageDeleted:
		var del protocol.MessageDeleted
		if env.Payload(&del) == nil {
			c.onMessageDeleted.emit(del)
		}
	case protocol.EventReactionAdded, protocol.EventReactionRemoved:
		var update protocol.ReactionUpdate
		if env.Payload(&update) == nil {
			c.onReactions.emit(update)
		}
	case protocol.EventOnlineUsersUpdated:
		var snapshot protocol.OnlineUsers
		if env.Payload(&snapshot) == nil {
			c.presence.SetSnapshot(snapshot.CommunityID, snapshot.Users)
			c.onPresence.emit(snapshot)
		}
	case protocol.EventUserTyping:
		var typing protocol.Typing
		if env.Payload(&typing) == nil {
			c.presence.StartTyping(typing.CommunityID, typing.UserID)
			c.onTyping.emit(typing)
		}
	case protocol.EventUserStopTyping:
		var typing protocol.Typing
		if env.Payload(&typing) == nil {
			c.presence.StopTyping(typing.CommunityID, typing.UserID)
			c.onStopTyping.emit(typing)
		}
	case protocol.EventUserJoined:
		var evt protocol.UserEvent
		if env.Payload(&evt) == nil {
			c.onUserJoined.emit(evt)
		}
	case protocol.EventUserLeft:
		var evt protocol.UserEvent
		if env.Payload(&evt) == nil {
			c.onUserLeft.emit(evt)
		}
	case protocol.EventError:
		var evt protocol.ErrorEvent
		if env.Payload(&evt) == nil {
			c.logger.Warn("server error", "code", evt.Code, "message", evt.Message)
			c.onServerError.emit(evt)
		}
	default:
		c.logger.Debug("ignoring unknown event", "event", env.Event)
	}
}

func (c *Client) handleAuthenticated(env *protocol.Envelope) {
	var result protocol.AuthResult
	if err := env.Payload(&result); err != nil {
		c.logger.Debug("malformed auth result", "error", err)
		return
	}

	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return
	}
	wait := c.authWait
	c.authWait = nil
	c.setStateLocked(StateAuthenticated)
	c.mu.Unlock()

	// Membership intent survives the socket: every tracked community is
	// re-joined on each (re)authentication.
	for _, communityID := range c.rooms.Joined() {
		if err := c.sendFrame(protocol.EventJoinCommunity, protocol.CommunityRef{CommunityID: communityID}); err != nil {
			c.logger.Warn("failed to re-join community", "communityId", communityID, "error", err)
		}
	}
	c.flushDeferred()

	if wait != nil {
		wait <- nil
	}
}

func (c *Client) handleAuthError() {
	c.mu.Lock()
	wait := c.authWait
	c.authWait = nil
	conn := c.conn
	c.conn = nil
	c.generation++
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if wait != nil {
		wait <- ErrAuthFailed
	}
	c.logger.Error("authentication rejected by server")
}

// flushDeferred sends any operation that was parked while unauthenticated.
func (c *Client) flushDeferred() {
	c.pendMu.Lock()
	join := c.pendingJoin
	send := c.pendingSend
	c.pendingJoin = nil
	c.pendingSend = nil
	c.pendMu.Unlock()

	if join != nil {
		join.timer.Stop()
		c.rooms.Join(join.value)
		if err := c.sendFrame(protocol.EventJoinCommunity, protocol.CommunityRef{CommunityID: join.value}); err != nil {
			c.logger.Warn("failed to send deferred join", "communityId", join.value, "error", err)
		}
	}
	if send != nil {
		send.timer.Stop()
		if err := c.sendFrame(protocol.EventSendMessage, send.value); err != nil {
			c.logger.Warn("failed to send deferred message", "communityId", send.value.CommunityID, "error", err)
		}
	}
}

var runtimeStack = stackFn

func stackFn(buf []byte, all bool) int {
	return runtime.Stack(buf, all)
}
