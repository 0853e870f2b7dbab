// ABOUTME: Tests for the startup catch-up scan
// ABOUTME: Covers mark-based resume, recent-scan fallback, idempotence, and failure tolerance

package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/id"

	"github.com/2389/roomkeeper/internal/platform"
	"github.com/2389/roomkeeper/internal/state"
)

func timeline(base time.Time, entries ...[2]string) []platform.Message {
	msgs := make([]platform.Message, 0, len(entries))
	for i, e := range entries {
		msgs = append(msgs, userMsg(e[0], e[1], base.Add(time.Duration(i)*time.Second)))
	}
	return msgs
}

func TestCatchUp_NoMark_ScansRecent(t *testing.T) {
	b, client, _, _ := newTestBridge(t, false)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	client.timeline = timeline(base,
		[2]string{"$a", "alpha"},
		[2]string{"$b", "beta"},
		[2]string{"$c", "alpha"}, // duplicate of $a
	)

	require.NoError(t, b.CatchUp(context.Background()))

	assert.Equal(t, 1, client.recentCalls)
	assert.Equal(t, 0, client.historyCalls)
	assert.Equal(t, 2, b.cache.Len())
	assert.Equal(t, []id.EventID{"$c"}, client.deletedIDs())

	mark, _ := b.cache.HighWaterMark()
	assert.Equal(t, id.EventID("$b"), mark)
}

func TestCatchUp_WithMark_FetchesOnlyAfterMark(t *testing.T) {
	b, client, _, _ := newTestBridge(t, false)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	client.timeline = timeline(base,
		[2]string{"$a", "alpha"},
		[2]string{"$b", "beta"},
		[2]string{"$c", "gamma"},
		[2]string{"$d", "delta"},
	)

	// Simulate a restart that had processed through $b
	b.cache.TryInsert("alpha")
	b.cache.TryInsert("beta")
	b.cache.AdvanceHighWaterMark(id.EventID("$b"), base.Add(time.Second))

	require.NoError(t, b.CatchUp(context.Background()))

	assert.Equal(t, 1, client.historyCalls)
	assert.Equal(t, 0, client.recentCalls, "must not rescan full history when a mark exists")
	assert.Equal(t, 4, b.cache.Len())

	mark, _ := b.cache.HighWaterMark()
	assert.Equal(t, id.EventID("$d"), mark)
}

func TestCatchUp_Idempotent(t *testing.T) {
	b, client, _, _ := newTestBridge(t, false)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	client.timeline = timeline(base,
		[2]string{"$a", "alpha"},
		[2]string{"$b", "beta"},
	)

	require.NoError(t, b.CatchUp(context.Background()))
	sizeAfterFirst := b.cache.Len()
	markAfterFirst, _ := b.cache.HighWaterMark()

	require.NoError(t, b.CatchUp(context.Background()))

	assert.Equal(t, sizeAfterFirst, b.cache.Len())
	mark, _ := b.cache.HighWaterMark()
	assert.Equal(t, markAfterFirst, mark)
	assert.Empty(t, client.deletedIDs(), "a second scan with no new messages must delete nothing")
}

func TestCatchUp_ReseedsFleetingTasks(t *testing.T) {
	b, client, queue, _ := newTestBridge(t, true)
	base := time.Now().Add(-time.Hour) // posted before the "restart"
	client.timeline = timeline(base,
		[2]string{"$a", "alpha"},
		[2]string{"$b", "beta"},
	)

	require.NoError(t, b.CatchUp(context.Background()))

	// Both messages survived dedup, so both are re-seeded for expiry
	assert.Equal(t, 2, queue.Len())
}

func TestCatchUp_DeleteFailureSkipsAndContinues(t *testing.T) {
	b, client, _, _ := newTestBridge(t, false)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	client.timeline = timeline(base,
		[2]string{"$a", "alpha"},
		[2]string{"$b", "alpha"}, // duplicate whose delete will fail
		[2]string{"$c", "gamma"},
	)
	client.deleteErr["$b"] = assert.AnError

	require.NoError(t, b.CatchUp(context.Background()))

	// The scan continued past the failure
	assert.Equal(t, 2, b.cache.Len())
	mark, _ := b.cache.HighWaterMark()
	assert.Equal(t, id.EventID("$c"), mark)
}

func TestCatchUp_HistoryFailureFallsBackToRecent(t *testing.T) {
	b, client, _, _ := newTestBridge(t, false)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	client.timeline = timeline(base, [2]string{"$a", "alpha"})
	client.historyErr = assert.AnError

	b.cache.AdvanceHighWaterMark(id.EventID("$gone-mark"), base)

	require.NoError(t, b.CatchUp(context.Background()))

	assert.Equal(t, 1, client.historyCalls)
	assert.Equal(t, 1, client.recentCalls)
	assert.Equal(t, 1, b.cache.Len())
}

func TestCatchUp_FallbackKeepsProcessedOriginals(t *testing.T) {
	b, client, _, _ := newTestBridge(t, false)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	client.timeline = timeline(base,
		[2]string{"$a", "alpha"},
		[2]string{"$b", "beta"},
	)
	client.historyErr = assert.AnError

	// Restored state from the previous run: both originals already seen
	b.cache.TryInsert("alpha")
	b.cache.TryInsert("beta")
	b.cache.AdvanceHighWaterMark(id.EventID("$b"), base.Add(time.Second))

	require.NoError(t, b.CatchUp(context.Background()))

	// The rescan revisits both messages; neither is a duplicate of
	// anything but itself, so neither may be deleted
	assert.Equal(t, 1, client.recentCalls)
	assert.Empty(t, client.deletedIDs())
	assert.Equal(t, 2, b.cache.Len())
}

func TestCatchUp_FallbackStillDeletesNewDuplicates(t *testing.T) {
	b, client, queue, _ := newTestBridge(t, true)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	client.timeline = timeline(base,
		[2]string{"$a", "alpha"},
		[2]string{"$b", "beta"},
		[2]string{"$c", "gamma"}, // new since the mark
		[2]string{"$d", "ALPHA"}, // new, duplicates $a
	)
	client.historyErr = assert.AnError

	b.cache.TryInsert("alpha")
	b.cache.TryInsert("beta")
	b.cache.AdvanceHighWaterMark(id.EventID("$b"), base.Add(time.Second))

	require.NoError(t, b.CatchUp(context.Background()))

	// Pre-mark originals survive and are re-seeded for expiry; the
	// post-mark duplicate is still caught
	assert.Equal(t, []id.EventID{"$d"}, client.deletedIDs())
	assert.Equal(t, 3, b.cache.Len())
	assert.Equal(t, 3, queue.Len())

	mark, _ := b.cache.HighWaterMark()
	assert.Equal(t, id.EventID("$c"), mark)
}

func TestCatchUp_PersistsStateOnce(t *testing.T) {
	b, client, _, _ := newTestBridge(t, false)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	client.timeline = timeline(base,
		[2]string{"$a", "alpha"},
		[2]string{"$b", "beta"},
	)

	require.NoError(t, b.CatchUp(context.Background()))

	st, err := state.Load(b.statePath)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, st.SeenKeys)
	assert.Equal(t, "$b", st.HighWaterMark)
}
