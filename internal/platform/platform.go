// ABOUTME: Platform client abstraction for the chat operations the bot needs
// ABOUTME: Message type, error sentinels, and the Client interface implemented by Matrix

package platform

import (
	"context"
	"errors"
	"time"

	"maunium.net/go/mautrix/id"
)

// ErrMessageGone is returned by DeleteMessage when the target message no
// longer exists on the platform. Callers treat it as success: the goal of
// every deletion is for the message to be gone.
var ErrMessageGone = errors.New("message already gone")

// Message is a read-only view of a platform message. The bot never
// mutates messages except by deleting them.
type Message struct {
	ID        id.EventID
	RoomID    id.RoomID
	Sender    id.UserID
	Body      string
	Timestamp time.Time
}

// PermissionReport describes whether the bot may redact messages in a
// room, in terms of Matrix power levels.
type PermissionReport struct {
	BotLevel    int
	RedactLevel int
}

// CanRedact reports whether the bot's power level meets the room's
// redaction threshold.
func (r PermissionReport) CanRedact() bool {
	return r.BotLevel >= r.RedactLevel
}

// Client is the set of platform operations the moderation core depends
// on. The production implementation is Matrix; tests substitute fakes.
type Client interface {
	// DeleteMessage removes a message. Returns ErrMessageGone if the
	// message was already deleted.
	DeleteMessage(ctx context.Context, room id.RoomID, eventID id.EventID, reason string) error

	// HistoryAfter fetches room history strictly after the given event,
	// oldest to newest, invoking page for each page until the history is
	// exhausted. A non-nil error from page stops the walk.
	HistoryAfter(ctx context.Context, room id.RoomID, after id.EventID, page func([]Message) error) error

	// RecentMessages fetches the most recent messages in the room,
	// returned oldest to newest.
	RecentMessages(ctx context.Context, room id.RoomID, limit int) ([]Message, error)

	// SendNotice posts a notice (non-triggering bot output) to the room.
	SendNotice(ctx context.Context, room id.RoomID, text string) error

	// CheckPermissions probes the room's power levels for redaction rights.
	CheckPermissions(ctx context.Context, room id.RoomID) (PermissionReport, error)
}
