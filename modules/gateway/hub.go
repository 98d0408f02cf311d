package gateway

import (
	"context"
	"sort"
	"sync"

	"github.com/go-monolith/mono/pkg/types"

	"github.com/quitmate/realtime/domain/chat"
	"github.com/quitmate/realtime/protocol"
)

// frame is a single encoded event queued for delivery to a community.
type frame struct {
	communityID string
	exclude     string // session ID to skip, empty for none
	data        []byte
}

// Hub tracks connected sessions, their community memberships, and fans
// events out to them. All broadcasts flow through a single loop so events
// for the same community are delivered in the order they were enqueued.
type Hub struct {
	sessions   map[string]*session
	rooms      map[string]map[string]bool // communityID -> set of session IDs
	register   chan *session
	unregister chan *session
	broadcast  chan *frame
	done       chan struct{}
	mu         sync.RWMutex
	logger     types.Logger
}

// NewHub creates a new Hub.
func NewHub(logger types.Logger) *Hub {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Hub{
		sessions:   make(map[string]*session),
		rooms:      make(map[string]map[string]bool),
		register:   make(chan *session),
		unregister: make(chan *session),
		broadcast:  make(chan *frame, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop. It accepts a context for graceful shutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case s := <-h.register:
			h.addSession(s)
		case s := <-h.unregister:
			h.removeSession(s)
		case f := <-h.broadcast:
			h.deliver(f)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

// Register adds a session to the hub.
func (h *Hub) Register(s *session) {
	h.register <- s
}

// Unregister removes a session and its memberships from the hub.
func (h *Hub) Unregister(s *session) {
	h.unregister <- s
}

// Broadcast encodes an event and queues it for every session in the
// community.
func (h *Hub) Broadcast(communityID, event string, payload any) {
	h.enqueue(communityID, "", event, payload)
}

// BroadcastExcept behaves like Broadcast but skips one session, used for
// relays the sender should not receive back.
func (h *Hub) BroadcastExcept(communityID, excludeID, event string, payload any) {
	h.enqueue(communityID, excludeID, event, payload)
}

func (h *Hub) enqueue(communityID, excludeID, event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		h.logger.Error("failed to encode broadcast", "event", event, "error", err)
		return
	}
	h.broadcast <- &frame{communityID: communityID, exclude: excludeID, data: data}
}

// Join adds a session to a community. Memberships are additive; a session
// stays in its previous communities until it leaves them explicitly.
func (h *Hub) Join(sessionID, communityID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[sessionID]; !ok {
		return
	}
	if h.rooms[communityID] == nil {
		h.rooms[communityID] = make(map[string]bool)
	}
	h.rooms[communityID][sessionID] = true
}

// Leave removes a session from a community.
func (h *Hub) Leave(sessionID, communityID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropMembership(sessionID, communityID)
}

// Communities returns the communities a session currently belongs to.
func (h *Hub) Communities(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ids []string
	for communityID, members := range h.rooms {
		if members[sessionID] {
			ids = append(ids, communityID)
		}
	}
	sort.Strings(ids)
	return ids
}

// OnlineUsers returns the full presence snapshot for a community. Users
// connected through several sessions appear once.
func (h *Hub) OnlineUsers(communityID string) []chat.OnlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	users := make([]chat.OnlineUser, 0)
	for sessionID := range h.rooms[communityID] {
		s, ok := h.sessions[sessionID]
		if !ok {
			continue
		}
		userID, username := s.identity()
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		users = append(users, chat.OnlineUser{UserID: userID, Username: username, LastSeen: s.connectedAt})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users
}

// SessionCount returns the total number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RoomSessionCount returns the number of sessions in a community.
func (h *Hub) RoomSessionCount(communityID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[communityID])
}

func (h *Hub) addSession(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.id] = s
	h.logger.Debug("session registered", "sessionID", s.id)
}

func (h *Hub) removeSession(s *session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.id)
	for communityID := range h.rooms {
		h.dropMembership(s.id, communityID)
	}
	h.mu.Unlock()

	s.closeSend()
	h.logger.Debug("session unregistered", "sessionID", s.id)
}

// dropMembership removes a membership entry. Callers hold h.mu.
func (h *Hub) dropMembership(sessionID, communityID string) {
	if h.rooms[communityID] == nil {
		return
	}
	delete(h.rooms[communityID], sessionID)
	if len(h.rooms[communityID]) == 0 {
		delete(h.rooms, communityID)
	}
}

func (h *Hub) deliver(f *frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sessionID := range h.rooms[f.communityID] {
		if sessionID == f.exclude {
			continue
		}
		s, ok := h.sessions[sessionID]
		if !ok {
			continue
		}
		if !s.enqueue(f.data) {
			h.logger.Warn("dropping frame for slow session", "sessionID", sessionID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	println("DEBUG closeAll sessions:", len(h.sessions))
	for _, s := range h.sessions {
		s.closeSend()
		_ = s.conn.Close()
	}
	h.sessions = make(map[string]*session)
	h.rooms = make(map[string]map[string]bool)
}

// noopLogger satisfies types.Logger when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any)                {}
func (noopLogger) Info(string, ...any)                 {}
func (noopLogger) Warn(string, ...any)                 {}
func (noopLogger) Error(string, ...any)                {}
func (n noopLogger) With(...any) types.Logger          { return n }
func (n noopLogger) WithModule(string) types.Logger    { return n }
func (n noopLogger) WithError(error) types.Logger      { return n }
