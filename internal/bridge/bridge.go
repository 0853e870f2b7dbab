// ABOUTME: Ingestion pipeline wiring Matrix sync events into the moderation policies
// ABOUTME: Single processMessage path shared by live events and the catch-up scan

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/roomkeeper/internal/config"
	"github.com/2389/roomkeeper/internal/dedupe"
	"github.com/2389/roomkeeper/internal/ledger"
	"github.com/2389/roomkeeper/internal/normalize"
	"github.com/2389/roomkeeper/internal/platform"
	"github.com/2389/roomkeeper/internal/state"
)

// TaskQueue is the scheduler surface the bridge pushes fleeting-message
// tasks into. Satisfied by *expiry.Sweeper.
type TaskQueue interface {
	Add(msg platform.Message)
	Len() int
}

// Journal is the deletion audit trail the bridge records duplicate
// removals to and reads status from. Satisfied by *ledger.Ledger.
type Journal interface {
	RecordDeletion(ctx context.Context, room id.RoomID, eventID id.EventID, reason string, attempts int) error
	Counts(ctx context.Context) (map[string]int, error)
}

// Bridge connects the Matrix sync loop to the dedup cache and the
// expiry sweeper for one monitored room.
type Bridge struct {
	matrix  *mautrix.Client
	client  platform.Client
	cache   *dedupe.Cache
	tasks   TaskQueue
	journal Journal
	logger  *slog.Logger

	room      id.RoomID
	userID    id.UserID
	prefix    string
	fleeting  bool
	catchupN  int
	statePath string

	// ctx is the parent context for per-message deletion goroutines
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a bridge. The mautrix client may be nil in tests that
// drive handleMessageEvent and CatchUp directly.
func New(cfg *config.Config, matrixClient *mautrix.Client, client platform.Client, cache *dedupe.Cache, tasks TaskQueue, journal Journal) *Bridge {
	// Run replaces this with a context tied to its own; the default
	// keeps per-message goroutines usable before Run is called.
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		ctx:       ctx,
		cancel:    cancel,
		matrix:    matrixClient,
		client:    client,
		cache:     cache,
		tasks:     tasks,
		journal:   journal,
		logger:    slog.Default().With("component", "bridge"),
		room:      id.RoomID(cfg.Room.ID),
		userID:    id.UserID(cfg.Matrix.UserID),
		prefix:    cfg.Bridge.CommandPrefix,
		fleeting:  cfg.Policy.FleetingEnabled,
		catchupN:  cfg.Policy.CatchupLimit,
		statePath: cfg.State.Path,
	}
}

// Run performs the startup catch-up scan, then syncs until the context
// is cancelled. A catch-up failure is logged, not fatal: live moderation
// still starts, and the next restart gets another chance.
func (b *Bridge) Run(ctx context.Context) error {
	b.cancel() // release the placeholder context from New
	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)

	if err := b.CatchUp(b.ctx); err != nil {
		b.logger.Error("catch-up scan failed", "error", err)
	}

	b.logger.Info("bridge running", "room", b.room.String(), "fleeting", b.fleeting)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.matrix.SyncWithContext(b.ctx)
	}()

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down bridge")
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent receives live timeline events from the syncer.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.RoomID != b.room {
		b.logger.Debug("ignoring event outside monitored room", "room", evt.RoomID.String())
		return
	}

	msg, ok := platform.FromEvent(evt)
	if !ok {
		return
	}
	b.processMessage(ctx, msg, true)
}

// processMessage is the one policy-enforcing entry point, used by both
// the live event handler and the catch-up scan so the two paths cannot
// diverge. live controls whether commands get replies, duplicates are
// deleted asynchronously, and state is persisted per message (catch-up
// persists once at the end instead).
func (b *Bridge) processMessage(ctx context.Context, msg platform.Message, live bool) {
	if msg.Sender == b.userID {
		return
	}

	if b.prefix != "" && strings.HasPrefix(msg.Body, b.prefix) {
		// Moderation interactions are exempt from both policies.
		if live {
			b.handleCommand(ctx, msg)
		}
		return
	}

	key := normalize.Key(msg.Body)
	if !b.cache.TryInsert(key) {
		b.logger.Info("duplicate message detected",
			"event", msg.ID.String(),
			"sender", msg.Sender.String(),
		)
		if live {
			// Do not block the sync loop on the network round trip.
			go b.deleteDuplicate(b.ctx, msg)
		} else {
			b.deleteDuplicate(ctx, msg)
		}
		return
	}

	b.cache.AdvanceHighWaterMark(msg.ID, msg.Timestamp)
	if live {
		b.persistState()
	}

	if b.fleeting {
		b.tasks.Add(msg)
	}
}

// deleteDuplicate removes a message whose content was already seen. A
// failure is logged and skipped: the message will be caught again by a
// future catch-up scan or repost.
func (b *Bridge) deleteDuplicate(ctx context.Context, msg platform.Message) {
	err := b.client.DeleteMessage(ctx, msg.RoomID, msg.ID, "duplicate message")
	if err != nil && !errors.Is(err, platform.ErrMessageGone) {
		b.logger.Warn("failed to delete duplicate",
			"event", msg.ID.String(),
			"error", err,
		)
		return
	}
	b.recordDeletion(ctx, msg, ledger.ReasonDuplicate)
}

// recordDeletion writes a ledger entry; failures are logged, never fatal.
func (b *Bridge) recordDeletion(ctx context.Context, msg platform.Message, reason string) {
	if b.journal == nil {
		return
	}
	if err := b.journal.RecordDeletion(ctx, msg.RoomID, msg.ID, reason, 1); err != nil {
		b.logger.Warn("ledger write failed", "event", msg.ID.String(), "error", err)
	}
}

// persistState snapshots the cache outside its lock and writes the
// state file. Losing the very latest mutation on a crash is acceptable;
// the catch-up scan recovers it.
func (b *Bridge) persistState() {
	if b.statePath == "" {
		return
	}
	if err := state.Save(b.statePath, b.cache.Snapshot()); err != nil {
		b.logger.Warn("failed to persist state", "error", err)
	}
}
