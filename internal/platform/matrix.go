// ABOUTME: Matrix implementation of the platform Client using mautrix
// ABOUTME: Maps redaction, /messages pagination, and power-level probes onto the interface

package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// networkTimeout bounds individual Matrix API calls so a hung request
// cannot stall the scheduler worker or the catch-up scan.
const networkTimeout = 30 * time.Second

// historyPageSize is the page size for /messages pagination.
const historyPageSize = 50

// Matrix implements Client over a mautrix client.
type Matrix struct {
	client *mautrix.Client
	logger *slog.Logger
}

// NewMatrix wraps an existing mautrix client. The caller keeps ownership
// of the client and its sync loop.
func NewMatrix(client *mautrix.Client) *Matrix {
	return &Matrix{
		client: client,
		logger: slog.Default().With("component", "platform"),
	}
}

// DeleteMessage redacts the event. M_NOT_FOUND from the homeserver maps
// to ErrMessageGone so callers can treat an already-deleted message as
// settled rather than retrying forever.
func (m *Matrix) DeleteMessage(ctx context.Context, room id.RoomID, eventID id.EventID, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	_, err := m.client.RedactEvent(ctx, room, eventID, mautrix.ReqRedact{Reason: reason})
	if err != nil {
		if errors.Is(err, mautrix.MNotFound) {
			return ErrMessageGone
		}
		return fmt.Errorf("redacting event %s: %w", eventID, err)
	}
	return nil
}

// HistoryAfter walks room history forward from the event using a
// /context token, one page at a time, until the server returns an empty
// page. Only text messages survive the conversion; state events and
// non-text content are skipped.
func (m *Matrix) HistoryAfter(ctx context.Context, room id.RoomID, after id.EventID, page func([]Message) error) error {
	filter := messageFilter()

	// Resolve a pagination token positioned just after the mark.
	tokCtx, cancel := context.WithTimeout(ctx, networkTimeout)
	resp, err := m.client.Context(tokCtx, room, after, filter, 1)
	cancel()
	if err != nil {
		return fmt.Errorf("resolving history token for %s: %w", after, err)
	}
	token := resp.End

	for token != "" {
		pageCtx, cancel := context.WithTimeout(ctx, networkTimeout)
		chunk, err := m.client.Messages(pageCtx, room, token, "", mautrix.DirectionForward, filter, historyPageSize)
		cancel()
		if err != nil {
			return fmt.Errorf("fetching history page: %w", err)
		}
		if len(chunk.Chunk) == 0 {
			break
		}

		msgs := make([]Message, 0, len(chunk.Chunk))
		for _, evt := range chunk.Chunk {
			if msg, ok := FromEvent(evt); ok {
				msgs = append(msgs, msg)
			}
		}
		if len(msgs) > 0 {
			if err := page(msgs); err != nil {
				return err
			}
		}
		token = chunk.End
	}
	return nil
}

// RecentMessages fetches the newest messages in the room. Matrix returns
// them newest-first; the slice is reversed so callers always see history
// oldest to newest.
func (m *Matrix) RecentMessages(ctx context.Context, room id.RoomID, limit int) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	resp, err := m.client.Messages(ctx, room, "", "", mautrix.DirectionBackward, messageFilter(), limit)
	if err != nil {
		return nil, fmt.Errorf("fetching recent messages: %w", err)
	}

	msgs := make([]Message, 0, len(resp.Chunk))
	for i := len(resp.Chunk) - 1; i >= 0; i-- {
		if msg, ok := FromEvent(resp.Chunk[i]); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

// SendNotice posts an m.notice so other bots do not react to our output.
func (m *Matrix) SendNotice(ctx context.Context, room id.RoomID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	if _, err := m.client.SendNotice(ctx, room, text); err != nil {
		return fmt.Errorf("sending notice: %w", err)
	}
	return nil
}

// CheckPermissions reads the room's power levels and compares the bot's
// level against the redaction threshold.
func (m *Matrix) CheckPermissions(ctx context.Context, room id.RoomID) (PermissionReport, error) {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	var levels event.PowerLevelsEventContent
	if err := m.client.StateEvent(ctx, room, event.StatePowerLevels, "", &levels); err != nil {
		return PermissionReport{}, fmt.Errorf("fetching power levels: %w", err)
	}

	return PermissionReport{
		BotLevel:    levels.GetUserLevel(m.client.UserID),
		RedactLevel: levels.Redact(),
	}, nil
}

// messageFilter restricts history fetches to m.room.message events.
func messageFilter() *mautrix.FilterPart {
	return &mautrix.FilterPart{Types: []event.Type{event.EventMessage}}
}

// FromEvent converts a raw timeline event into a Message.
// Returns false for anything that is not a plain text message.
func FromEvent(evt *event.Event) (Message, bool) {
	if evt.Type != event.EventMessage {
		return Message{}, false
	}
	if evt.Content.Parsed == nil {
		if err := evt.Content.ParseRaw(evt.Type); err != nil {
			return Message{}, false
		}
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return Message{}, false
	}
	return Message{
		ID:        evt.ID,
		RoomID:    evt.RoomID,
		Sender:    evt.Sender,
		Body:      content.Body,
		Timestamp: time.UnixMilli(evt.Timestamp),
	}, true
}
