package client

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/quitmate/realtime/domain/chat"
)

// fakeClock lets tests move typing expiry forward without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTrackerWithClock() (*PresenceTracker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	p := NewPresenceTracker()
	p.now = clock.Now
	return p, clock
}

func TestPresenceTracker_SnapshotReplacesWholesale(t *testing.T) {
	p := NewPresenceTracker()

	p.SetSnapshot("c1", []chat.OnlineUser{
		{UserID: "u1", Username: "alice"},
		{UserID: "u2", Username: "bob"},
	})
	p.SetSnapshot("c1", []chat.OnlineUser{
		{UserID: "u3", Username: "carol"},
	})

	got := p.OnlineUsers("c1")
	if len(got) != 1 || got[0].UserID != "u3" {
		t.Errorf("OnlineUsers() = %+v, want only u3", got)
	}

	// Other communities are untouched.
	p.SetSnapshot("c2", []chat.OnlineUser{{UserID: "u9"}})
	if got := p.OnlineUsers("c2"); len(got) != 1 {
		t.Errorf("OnlineUsers(c2) = %+v", got)
	}
}

func TestPresenceTracker_TypingExpires(t *testing.T) {
	p, clock := newTrackerWithClock()

	p.StartTyping("c1", "u1")
	p.StartTyping("c1", "u2")

	if got := p.TypingUsers("c1"); !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Fatalf("TypingUsers() = %v, want [u1 u2]", got)
	}

	// A renewal pushes one user's deadline out.
	clock.Advance(3 * time.Second)
	p.StartTyping("c1", "u1")

	clock.Advance(2 * time.Second) // u2 is now past its deadline
	if got := p.TypingUsers("c1"); !reflect.DeepEqual(got, []string{"u1"}) {
		t.Errorf("TypingUsers() = %v, want [u1]", got)
	}

	clock.Advance(5 * time.Second)
	if got := p.TypingUsers("c1"); got != nil {
		t.Errorf("TypingUsers() = %v, want none", got)
	}
}

func TestPresenceTracker_StopTypingClearsImmediately(t *testing.T) {
	p, _ := newTrackerWithClock()

	p.StartTyping("c1", "u1")
	p.StopTyping("c1", "u1")
	if got := p.TypingUsers("c1"); got != nil {
		t.Errorf("TypingUsers() = %v, want none", got)
	}

	// Stopping an unknown user is a no-op.
	p.StopTyping("c1", "u9")
}

func TestPresenceTracker_ExpiryCallback(t *testing.T) {
	p := NewPresenceTracker()
	p.ttl = 20 * time.Millisecond

	expired := make(chan string, 1)
	p.onExpire = func(communityID, userID string) {
		expired <- communityID + "/" + userID
	}

	p.StartTyping("c1", "u1")

	select {
	case got := <-expired:
		if got != "c1/u1" {
			t.Errorf("expired %s, want c1/u1", got)
		}
	case <-time.After(time.Second):
		t.Fatal("expiry callback never fired")
	}
}

func TestPresenceTracker_Reset(t *testing.T) {
	p, _ := newTrackerWithClock()
	p.SetSnapshot("c1", []chat.OnlineUser{{UserID: "u1"}})
	p.StartTyping("c1", "u1")

	p.Reset()

	if got := p.OnlineUsers("c1"); len(got) != 0 {
		t.Errorf("OnlineUsers() after Reset = %+v", got)
	}
	if got := p.TypingUsers("c1"); got != nil {
		t.Errorf("TypingUsers() after Reset = %v", got)
	}
}

func TestRoomTracker_JoinDoesNotAutoLeave(t *testing.T) {
	r := NewRoomTracker()

	r.Join("c1")
	r.Join("c2")

	if got := r.Current(); got != "c2" {
		t.Errorf("Current() = %q, want c2", got)
	}
	if !r.In("c1") || !r.In("c2") {
		t.Error("joining c2 should not remove c1")
	}

	r.Leave("c2")
	if got := r.Current(); got != "" {
		t.Errorf("Current() after leaving current = %q, want empty", got)
	}
	if !r.In("c1") {
		t.Error("leaving c2 should not remove c1")
	}

	r.Leave("c1")
	if got := r.Joined(); len(got) != 0 {
		t.Errorf("Joined() = %v, want empty", got)
	}
}
