package client

import (
	"sort"
	"sync"
)

// RoomTracker records which communities the client intends to be in. The
// current room is the most recently joined one; joining a new room does not
// leave the previous one, callers leave explicitly. Intent survives
// reconnects: the tracked rooms are re-joined after every re-authentication.
type RoomTracker struct {
	mu      sync.Mutex
	current string
	joined  map[string]bool
}

// NewRoomTracker creates an empty tracker.
func NewRoomTracker() *RoomTracker {
	return &RoomTracker{joined: make(map[string]bool)}
}

// Join records intent to be in a community and makes it current.
func (r *RoomTracker) Join(communityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined[communityID] = true
	r.current = communityID
}

// Leave removes a community. If it was current, there is no current room
// afterwards.
func (r *RoomTracker) Leave(communityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.joined, communityID)
	if r.current == communityID {
		r.current = ""
	}
}

// Current returns the most recently joined community, or "".
func (r *RoomTracker) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Joined returns all tracked communities in sorted order.
func (r *RoomTracker) Joined() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.joined))
	for id := range r.joined {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// In reports whether a community is tracked.
func (r *RoomTracker) In(communityID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joined[communityID]
}
