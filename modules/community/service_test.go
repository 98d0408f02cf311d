package community

import (
	"errors"
	"testing"

	"github.com/quitmate/realtime/domain/chat"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(setupTestRepo(t), nil, nil)
}

func TestService_PostMessage(t *testing.T) {
	svc := setupTestService(t)

	tests := []struct {
		name    string
		params  PostMessageParams
		wantErr error
	}{
		{
			name: "valid text message",
			params: PostMessageParams{
				CommunityID: "42", UserID: "u1", Username: "Ana",
				Content: "hello", MessageType: chat.MessageTypeText,
			},
		},
		{
			name: "type defaults to text",
			params: PostMessageParams{
				CommunityID: "42", UserID: "u1", Content: "hi",
			},
		},
		{
			name: "empty content",
			params: PostMessageParams{
				CommunityID: "42", UserID: "u1", Content: "",
			},
			wantErr: ErrContentEmpty,
		},
		{
			name: "missing community",
			params: PostMessageParams{
				UserID: "u1", Content: "hello",
			},
			wantErr: ErrCommunityEmpty,
		},
		{
			name: "unknown type",
			params: PostMessageParams{
				CommunityID: "42", UserID: "u1", Content: "hello", MessageType: "carrier-pigeon",
			},
			wantErr: ErrBadMessageType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := svc.PostMessage(tt.params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("PostMessage() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("PostMessage() error = %v", err)
			}
			if msg.ID == "" {
				t.Error("message ID should not be empty")
			}
			if msg.MessageType != chat.MessageTypeText {
				t.Errorf("messageType = %q, want %q", msg.MessageType, chat.MessageTypeText)
			}
			if msg.Reactions == nil {
				t.Error("reactions should be an empty set, not nil")
			}
		})
	}
}

func TestService_PostMessage_ReplyTo(t *testing.T) {
	svc := setupTestService(t)

	parent, err := svc.PostMessage(PostMessageParams{
		CommunityID: "42", UserID: "u1", Content: "parent",
	})
	if err != nil {
		t.Fatalf("PostMessage(parent) error = %v", err)
	}

	reply, err := svc.PostMessage(PostMessageParams{
		CommunityID: "42", UserID: "u2", Content: "reply", ReplyTo: &parent.ID,
	})
	if err != nil {
		t.Fatalf("PostMessage(reply) error = %v", err)
	}
	if reply.ReplyTo == nil || *reply.ReplyTo != parent.ID {
		t.Errorf("replyTo = %v, want %s", reply.ReplyTo, parent.ID)
	}

	missing := "no-such-message"
	if _, err := svc.PostMessage(PostMessageParams{
		CommunityID: "42", UserID: "u2", Content: "dangling", ReplyTo: &missing,
	}); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("PostMessage(dangling replyTo) error = %v, want ErrMessageNotFound", err)
	}

	// Deleting the parent leaves the reply's weak reference dangling; the
	// reply itself is untouched.
	if _, err := svc.DeleteMessage(parent.ID, "u1"); err != nil {
		t.Fatalf("DeleteMessage(parent) error = %v", err)
	}
	history, err := svc.History("42", "", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d messages, want 2", len(history))
	}
	if !history[0].Deleted {
		t.Error("parent should be a tombstone")
	}
	if history[1].ReplyTo == nil || *history[1].ReplyTo != parent.ID {
		t.Error("reply's weak reference should survive the delete")
	}
}

func TestService_EditMessage(t *testing.T) {
	svc := setupTestService(t)
	msg, _ := svc.PostMessage(PostMessageParams{CommunityID: "42", UserID: "u1", Content: "v1"})

	edited, err := svc.EditMessage(msg.ID, "u1", "v2")
	if err != nil {
		t.Fatalf("EditMessage() error = %v", err)
	}
	if edited.Content != "v2" || !edited.Edited || edited.EditedAt == nil {
		t.Errorf("edit not applied: %+v", edited)
	}

	if _, err := svc.EditMessage(msg.ID, "u2", "hijack"); !errors.Is(err, ErrNotAuthor) {
		t.Errorf("EditMessage(other user) error = %v, want ErrNotAuthor", err)
	}
	if _, err := svc.EditMessage(msg.ID, "u1", ""); !errors.Is(err, ErrContentEmpty) {
		t.Errorf("EditMessage(empty) error = %v, want ErrContentEmpty", err)
	}
}

func TestService_Reactions_FullSetSemantics(t *testing.T) {
	svc := setupTestService(t)
	msg, _ := svc.PostMessage(PostMessageParams{CommunityID: "42", UserID: "u1", Content: "hi"})

	_, set, err := svc.AddReaction(msg.ID, "u1", "👍")
	if err != nil {
		t.Fatalf("AddReaction() error = %v", err)
	}
	if len(set) != 1 {
		t.Fatalf("set size = %d, want 1", len(set))
	}

	_, set, err = svc.AddReaction(msg.ID, "u2", "🎉")
	if err != nil {
		t.Fatalf("AddReaction() error = %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("set size = %d, want 2", len(set))
	}

	// Every change returns the complete current set, never a delta.
	_, set, err = svc.RemoveReaction(msg.ID, "u1", "👍")
	if err != nil {
		t.Fatalf("RemoveReaction() error = %v", err)
	}
	if len(set) != 1 || set[0].UserID != "u2" || set[0].Emoji != "🎉" {
		t.Errorf("set after removal = %+v", set)
	}

	if _, _, err := svc.AddReaction("missing", "u1", "👍"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("AddReaction(unknown message) error = %v, want ErrMessageNotFound", err)
	}
	if _, _, err := svc.AddReaction(msg.ID, "u1", ""); !errors.Is(err, ErrEmojiEmpty) {
		t.Errorf("AddReaction(empty emoji) error = %v, want ErrEmojiEmpty", err)
	}
}

func TestService_History_IncludesReactions(t *testing.T) {
	svc := setupTestService(t)
	msg, _ := svc.PostMessage(PostMessageParams{CommunityID: "42", UserID: "u1", Content: "hi"})
	_, _, _ = svc.AddReaction(msg.ID, "u2", "👍")

	history, err := svc.History("42", "", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d messages, want 1", len(history))
	}
	if len(history[0].Reactions) != 1 {
		t.Errorf("reactions = %+v, want the full set inlined", history[0].Reactions)
	}
}
