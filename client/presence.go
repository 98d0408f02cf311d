package client

import (
	"sort"
	"sync"
	"time"

	"github.com/quitmate/realtime/domain/chat"
)

// typingTTL is how long a typing indicator stays alive without a stop
// event. Server stop events usually arrive first; the timer covers lost
// ones.
const typingTTL = 4 * time.Second

// PresenceTracker holds per-community online users and transient typing
// state. Online lists arrive as authoritative snapshots and replace the
// previous list wholesale. Typing entries expire locally after typingTTL.
type PresenceTracker struct {
	mu     sync.Mutex
	online map[string][]chat.OnlineUser // communityID -> snapshot
	typing map[string]map[string]time.Time
	now    func() time.Time
	ttl    time.Duration

	// onExpire, when set, fires after a typing entry lapses without a
	// stop event. Called outside the lock.
	onExpire func(communityID, userID string)
}

// NewPresenceTracker creates an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		online: make(map[string][]chat.OnlineUser),
		typing: make(map[string]map[string]time.Time),
		now:    time.Now,
		ttl:    typingTTL,
	}
}

// SetSnapshot replaces the online list for a community.
func (p *PresenceTracker) SetSnapshot(communityID string, users []chat.OnlineUser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[communityID] = append([]chat.OnlineUser(nil), users...)
}

// OnlineUsers returns the last snapshot received for a community.
func (p *PresenceTracker) OnlineUsers(communityID string) []chat.OnlineUser {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chat.OnlineUser(nil), p.online[communityID]...)
}

// StartTyping records a typing indicator for a user. Repeated starts renew
// the expiry.
func (p *PresenceTracker) StartTyping(communityID, userID string) {
	p.mu.Lock()
	expiry := p.now().Add(p.ttl)
	if p.typing[communityID] == nil {
		p.typing[communityID] = make(map[string]time.Time)
	}
	p.typing[communityID][userID] = expiry
	p.mu.Unlock()

	time.AfterFunc(p.ttl, func() { p.expire(communityID, userID) })
}

// expire drops a typing entry whose deadline has passed. Renewed entries
// survive; the renewal scheduled its own expiry check.
func (p *PresenceTracker) expire(communityID, userID string) {
	p.mu.Lock()
	deadline, ok := p.typing[communityID][userID]
	if !ok || deadline.After(p.now()) {
		p.mu.Unlock()
		return
	}
	delete(p.typing[communityID], userID)
	if len(p.typing[communityID]) == 0 {
		delete(p.typing, communityID)
	}
	cb := p.onExpire
	p.mu.Unlock()

	if cb != nil {
		cb(communityID, userID)
	}
}

// StopTyping clears a typing indicator for a user.
func (p *PresenceTracker) StopTyping(communityID, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.typing[communityID], userID)
	if len(p.typing[communityID]) == 0 {
		delete(p.typing, communityID)
	}
}

// TypingUsers returns the users currently typing in a community. Expired
// entries are pruned on read.
func (p *PresenceTracker) TypingUsers(communityID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var users []string
	for userID, expiry := range p.typing[communityID] {
		if expiry.After(now) {
			users = append(users, userID)
			continue
		}
		delete(p.typing[communityID], userID)
	}
	if len(p.typing[communityID]) == 0 {
		delete(p.typing, communityID)
	}
	sort.Strings(users)
	return users
}

// Reset drops all presence and typing state, used when a connection is
// lost; fresh snapshots arrive after re-join.
func (p *PresenceTracker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = make(map[string][]chat.OnlineUser)
	p.typing = make(map[string]map[string]time.Time)
}
