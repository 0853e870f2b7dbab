// ABOUTME: Startup catch-up scan replaying missed room history into the dedup cache
// ABOUTME: Resumes from the persisted high-water mark, or scans the most recent messages

package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/2389/roomkeeper/internal/normalize"
	"github.com/2389/roomkeeper/internal/platform"
)

// CatchUp replays room history missed while the process was down,
// feeding every message through the same processMessage path as live
// events: duplicates are deleted on the spot, and (when the fleeting
// policy is on) surviving messages are re-seeded into the expiry queue,
// which is how unfinished deletions from before the restart are
// recovered. With no stored mark, only the most recent messages are
// scanned rather than the entire room history.
//
// Running it again with no new messages is a no-op. Deletion failures
// inside the scan are logged and skipped, never fatal.
func (b *Bridge) CatchUp(ctx context.Context) error {
	mark, markTS := b.cache.HighWaterMark()

	scanned := 0
	var cutoff time.Time
	page := func(msgs []platform.Message) error {
		for _, msg := range msgs {
			if !cutoff.IsZero() && !msg.Timestamp.After(cutoff) {
				b.reabsorb(msg)
			} else {
				b.processMessage(ctx, msg, false)
			}
			scanned++
		}
		return nil
	}

	if mark != "" {
		b.logger.Info("catching up from high-water mark", "mark", mark.String())
		if err := b.client.HistoryAfter(ctx, b.room, mark, page); err != nil {
			// The mark may reference an event the server no longer
			// serves (e.g. it was redacted). Fall back to a bounded
			// recent scan rather than giving up. Messages at or before
			// the mark were already processed in a previous run: their
			// keys sit in the restored cache because of themselves, so
			// the rescan must not mistake them for duplicates.
			b.logger.Warn("history walk from mark failed, scanning recent messages", "error", err)
			cutoff = markTS
			mark = ""
		}
	}

	if mark == "" {
		msgs, err := b.client.RecentMessages(ctx, b.room, b.catchupN)
		if err != nil {
			return err
		}
		if err := page(msgs); err != nil {
			return err
		}
	}

	b.persistState()
	b.logger.Info("catch-up scan complete", "scanned", scanned, "cache_size", b.cache.Len())
	return nil
}

// reabsorb re-records a message that survived moderation in a previous
// run, without re-applying the duplicate policy: deleting it would
// destroy the sole surviving copy of its content. Fleeting tasks are
// still re-seeded, since the restart emptied the queue.
func (b *Bridge) reabsorb(msg platform.Message) {
	if msg.Sender == b.userID {
		return
	}
	if b.prefix != "" && strings.HasPrefix(msg.Body, b.prefix) {
		return
	}

	b.cache.TryInsert(normalize.Key(msg.Body))
	b.cache.AdvanceHighWaterMark(msg.ID, msg.Timestamp)

	if b.fleeting {
		b.tasks.Add(msg)
	}
}
