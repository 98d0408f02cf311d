package community

import (
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/quitmate/realtime/domain/chat"
)

// MessageEvent is published whenever a message is posted, edited or
// tombstoned. Message carries the full record as it should appear on the
// wire.
type MessageEvent struct {
	CommunityID string       `json:"community_id"`
	Message     chat.Message `json:"message"`
}

// ReactionEvent is published after any reaction change and carries the full
// current set for the message.
type ReactionEvent struct {
	CommunityID string          `json:"community_id"`
	MessageID   string          `json:"message_id"`
	Reactions   []chat.Reaction `json:"reactions"`
}

// Event definitions for the community module.
var (
	// MessagePostedV1 is published when a user posts a message.
	MessagePostedV1 = helper.EventDefinition[MessageEvent](
		"community",
		"MessagePosted",
		"v1",
	)

	// MessageEditedV1 is published when an author edits a message.
	MessageEditedV1 = helper.EventDefinition[MessageEvent](
		"community",
		"MessageEdited",
		"v1",
	)

	// MessageDeletedV1 is published when a message becomes a tombstone.
	MessageDeletedV1 = helper.EventDefinition[MessageEvent](
		"community",
		"MessageDeleted",
		"v1",
	)

	// ReactionsChangedV1 is published after a reaction is added or removed.
	ReactionsChangedV1 = helper.EventDefinition[ReactionEvent](
		"community",
		"ReactionsChanged",
		"v1",
	)
)
