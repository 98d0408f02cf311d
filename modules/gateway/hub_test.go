package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/quitmate/realtime/protocol"
)

// startTestHub runs a hub for the duration of the test. Sessions must be
// unregistered before the test ends so shutdown has no live connections.
func startTestHub(t *testing.T) *Hub {
	t.Helper()

	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		h.Wait()
	})
	return h
}

// addTestSession registers a session without a network connection.
func addTestSession(t *testing.T, h *Hub, userID, username string) *session {
	t.Helper()

	s := newSession(nil)
	if userID != "" {
		s.authenticate(userID, username)
	}
	h.Register(s)
	waitFor(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.sessions[s.id] != nil
	})
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func recvFrame(t *testing.T, s *session) []byte {
	t.Helper()
	select {
	case data := <-s.send:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received before deadline")
		return nil
	}
}

func TestHub_MembershipIsAdditive(t *testing.T) {
	h := startTestHub(t)
	s := addTestSession(t, h, "u1", "alice")
	defer h.Unregister(s)

	h.Join(s.id, "c1")
	h.Join(s.id, "c2")

	got := h.Communities(s.id)
	if len(got) != 2 || got[0] != "c1" || got[1] != "c2" {
		t.Errorf("Communities() = %v, want [c1 c2]", got)
	}

	h.Leave(s.id, "c1")
	if n := h.RoomSessionCount("c1"); n != 0 {
		t.Errorf("RoomSessionCount(c1) = %d, want 0", n)
	}
	if n := h.RoomSessionCount("c2"); n != 1 {
		t.Errorf("RoomSessionCount(c2) = %d, want 1", n)
	}
}

func TestHub_OnlineUsersDeduplicates(t *testing.T) {
	h := startTestHub(t)
	s1 := addTestSession(t, h, "u1", "alice")
	s2 := addTestSession(t, h, "u1", "alice") // second device
	s3 := addTestSession(t, h, "", "")        // not authenticated
	defer func() {
		h.Unregister(s1)
		h.Unregister(s2)
		h.Unregister(s3)
	}()

	h.Join(s1.id, "c1")
	h.Join(s2.id, "c1")
	h.Join(s3.id, "c1")

	users := h.OnlineUsers("c1")
	if len(users) != 1 {
		t.Fatalf("OnlineUsers() returned %d users, want 1", len(users))
	}
	if users[0].UserID != "u1" || users[0].Username != "alice" {
		t.Errorf("OnlineUsers()[0] = %+v", users[0])
	}
}

func TestHub_BroadcastOrderingAndExclusion(t *testing.T) {
	h := startTestHub(t)
	sender := addTestSession(t, h, "u1", "alice")
	receiver := addTestSession(t, h, "u2", "bob")
	defer func() {
		h.Unregister(sender)
		h.Unregister(receiver)
	}()

	h.Join(sender.id, "c1")
	h.Join(receiver.id, "c1")

	for _, id := range []string{"m1", "m2", "m3"} {
		h.Broadcast("c1", protocol.EventMessageDeleted, protocol.MessageDeleted{MessageID: id, CommunityID: "c1"})
	}

	// Both members see all three frames in publish order.
	for _, s := range []*session{sender, receiver} {
		for _, want := range []string{"m1", "m2", "m3"} {
			env, err := protocol.Decode(recvFrame(t, s))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			var payload protocol.MessageDeleted
			if err := env.Payload(&payload); err != nil {
				t.Fatalf("Payload() error = %v", err)
			}
			if payload.MessageID != want {
				t.Errorf("got message %s, want %s", payload.MessageID, want)
			}
		}
	}

	h.BroadcastExcept("c1", sender.id, protocol.EventUserTyping, protocol.Typing{UserID: "u1", CommunityID: "c1"})

	env, err := protocol.Decode(recvFrame(t, receiver))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if env.Event != protocol.EventUserTyping {
		t.Errorf("event = %s, want %s", env.Event, protocol.EventUserTyping)
	}
	select {
	case data := <-sender.send:
		t.Errorf("sender received excluded frame: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterCleansMemberships(t *testing.T) {
	h := startTestHub(t)
	s := addTestSession(t, h, "u1", "alice")

	h.Join(s.id, "c1")
	h.Unregister(s)
	waitFor(t, func() bool { return h.SessionCount() == 0 })

	if n := h.RoomSessionCount("c1"); n != 0 {
		t.Errorf("RoomSessionCount(c1) = %d, want 0", n)
	}
	if s.enqueue([]byte("x")) {
		t.Error("enqueue() on closed session should report false")
	}
}
