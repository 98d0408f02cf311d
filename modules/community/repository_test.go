package community

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupTestRepo creates an in-memory SQLite repository for testing.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	repo := NewRepository(db)
	if err := repo.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return repo
}

func newTestMessage(communityID, userID, content string) *MessageRecord {
	return &MessageRecord{
		ID:          uuid.New().String(),
		CommunityID: communityID,
		UserID:      userID,
		Username:    "Tester",
		Content:     content,
		MessageType: "text",
		CreatedAt:   time.Now(),
	}
}

func TestRepository_CreateAndFindMessage(t *testing.T) {
	repo := setupTestRepo(t)

	msg := newTestMessage("42", "u1", "hello")
	if err := repo.CreateMessage(msg); err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}

	found, err := repo.FindMessage(msg.ID)
	if err != nil {
		t.Fatalf("FindMessage() error = %v", err)
	}
	if found.Content != "hello" {
		t.Errorf("content = %q, want %q", found.Content, "hello")
	}

	if _, err := repo.FindMessage("nope"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("FindMessage(unknown) error = %v, want ErrMessageNotFound", err)
	}
}

func TestRepository_EditMessage(t *testing.T) {
	repo := setupTestRepo(t)
	msg := newTestMessage("42", "u1", "original")
	_ = repo.CreateMessage(msg)

	tests := []struct {
		name    string
		id      string
		userID  string
		wantErr error
	}{
		{name: "author edits", id: msg.ID, userID: "u1", wantErr: nil},
		{name: "other user", id: msg.ID, userID: "u2", wantErr: ErrNotAuthor},
		{name: "unknown message", id: "missing", userID: "u1", wantErr: ErrMessageNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edited, err := repo.EditMessage(tt.id, tt.userID, "updated")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("EditMessage() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("EditMessage() error = %v", err)
			}
			if !edited.Edited || edited.EditedAt == nil {
				t.Error("edited flag/timestamp not set")
			}
			if edited.Content != "updated" {
				t.Errorf("content = %q, want %q", edited.Content, "updated")
			}
		})
	}
}

func TestRepository_DeleteMessage_Tombstone(t *testing.T) {
	repo := setupTestRepo(t)
	msg := newTestMessage("42", "u1", "secret")
	_ = repo.CreateMessage(msg)

	if _, err := repo.DeleteMessage(msg.ID, "u2"); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("DeleteMessage(wrong user) error = %v, want ErrNotAuthor", err)
	}

	deleted, err := repo.DeleteMessage(msg.ID, "u1")
	if err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}
	if !deleted.Deleted {
		t.Error("deleted flag not set")
	}
	if deleted.Content != "" {
		t.Errorf("content = %q, want blank tombstone", deleted.Content)
	}

	// The row survives as a tombstone; it is not physically removed.
	found, err := repo.FindMessage(msg.ID)
	if err != nil {
		t.Fatalf("FindMessage(tombstone) error = %v", err)
	}
	if !found.Deleted {
		t.Error("tombstone not persisted")
	}

	// Tombstones cannot be edited.
	if _, err := repo.EditMessage(msg.ID, "u1", "resurrect"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("EditMessage(tombstone) error = %v, want ErrMessageNotFound", err)
	}
}

func TestRepository_Reactions(t *testing.T) {
	repo := setupTestRepo(t)
	msg := newTestMessage("42", "u1", "react to me")
	_ = repo.CreateMessage(msg)

	add := func(userID, emoji string) {
		t.Helper()
		err := repo.AddReaction(&ReactionRecord{
			ID:        uuid.New().String(),
			MessageID: msg.ID,
			UserID:    userID,
			Emoji:     emoji,
			CreatedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("AddReaction() error = %v", err)
		}
	}

	add("u1", "👍")
	add("u2", "👍")
	add("u2", "🎉")
	// Duplicate (message, user, emoji) is a no-op, not an error.
	add("u1", "👍")

	reactions, err := repo.ReactionsFor(msg.ID)
	if err != nil {
		t.Fatalf("ReactionsFor() error = %v", err)
	}
	if len(reactions) != 3 {
		t.Fatalf("got %d reactions, want 3", len(reactions))
	}

	if err := repo.RemoveReaction(msg.ID, "u2", "👍"); err != nil {
		t.Fatalf("RemoveReaction() error = %v", err)
	}
	// Removing a reaction that is not there is a no-op.
	if err := repo.RemoveReaction(msg.ID, "u3", "👍"); err != nil {
		t.Fatalf("RemoveReaction(absent) error = %v", err)
	}

	reactions, _ = repo.ReactionsFor(msg.ID)
	if len(reactions) != 2 {
		t.Errorf("got %d reactions after removal, want 2", len(reactions))
	}
}

func TestRepository_History(t *testing.T) {
	repo := setupTestRepo(t)

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		msg := newTestMessage("42", "u1", "msg")
		msg.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_ = repo.CreateMessage(msg)
		ids = append(ids, msg.ID)
	}
	// A message in another community must not leak in.
	other := newTestMessage("7", "u1", "elsewhere")
	_ = repo.CreateMessage(other)

	page, err := repo.History("42", "", 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("got %d messages, want 3", len(page))
	}
	// Newest 3, chronological order.
	if page[0].ID != ids[2] || page[2].ID != ids[4] {
		t.Errorf("unexpected page order: %s..%s", page[0].ID, page[2].ID)
	}

	// Cursor: everything before the third message.
	older, err := repo.History("42", ids[2], 10)
	if err != nil {
		t.Fatalf("History(before) error = %v", err)
	}
	if len(older) != 2 {
		t.Fatalf("got %d older messages, want 2", len(older))
	}
	if older[0].ID != ids[0] || older[1].ID != ids[1] {
		t.Errorf("unexpected older page: %s, %s", older[0].ID, older[1].ID)
	}

	if _, err := repo.History("42", "missing", 10); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("History(bad cursor) error = %v, want ErrMessageNotFound", err)
	}
}
