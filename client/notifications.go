package client

import "sync"

// UnreadStore tracks per-community unread counts and the active community.
// Messages for the active community never increment its count; that
// suppression decision lives in Observe and nowhere else.
type UnreadStore struct {
	mu     sync.Mutex
	counts map[string]int
	active string
}

// NewUnreadStore creates an empty unread store.
func NewUnreadStore() *UnreadStore {
	return &UnreadStore{counts: make(map[string]int)}
}

// Observe records an incoming message for a community. It returns true when
// the message counted as unread, false when the active community suppressed
// it.
func (u *UnreadStore) Observe(communityID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if communityID == u.active {
		return false
	}
	u.counts[communityID]++
	return true
}

// Increment adds one unread message unconditionally, bypassing active-room
// suppression. Most callers want Observe.
func (u *UnreadStore) Increment(communityID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.counts[communityID]++
}

// SetCount overwrites the count for a community. Negative values clamp to
// zero.
func (u *UnreadStore) SetCount(communityID string, n int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if n <= 0 {
		delete(u.counts, communityID)
		return
	}
	u.counts[communityID] = n
}

// Count returns the unread count for a community.
func (u *UnreadStore) Count(communityID string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[communityID]
}

// MarkRead zeroes the count for a community.
func (u *UnreadStore) MarkRead(communityID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.counts, communityID)
}

// SetActiveRoom marks a community as currently viewed. Pass the empty
// string when no community is open. Switching does not retroactively clear
// the new active community's count; call MarkRead for that.
func (u *UnreadStore) SetActiveRoom(communityID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.active = communityID
}

// ActiveRoom returns the currently viewed community, or "".
func (u *UnreadStore) ActiveRoom() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active
}

// Total returns the sum of all per-community counts.
func (u *UnreadStore) Total() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	total := 0
	for _, n := range u.counts {
		total += n
	}
	return total
}

// Snapshot returns a copy of all non-zero counts.
func (u *UnreadStore) Snapshot() map[string]int {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make(map[string]int, len(u.counts))
	for id, n := range u.counts {
		out[id] = n
	}
	return out
}
