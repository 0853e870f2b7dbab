// ABOUTME: Tests for operator commands
// ABOUTME: Covers !check, !status, !help, policy exemption, and catch-up silence

package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/roomkeeper/internal/platform"
)

func TestCommand_CheckWithRights(t *testing.T) {
	b, client, _, _ := newTestBridge(t, false)
	client.report = platform.PermissionReport{BotLevel: 100, RedactLevel: 50}

	b.processMessage(context.Background(), userMsg("$cmd", "!check", time.Now()), true)

	notices := client.sentNotices()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "All good")
	assert.Contains(t, notices[0], "100")
}

func TestCommand_CheckMissingRights(t *testing.T) {
	b, client, _, _ := newTestBridge(t, false)
	client.report = platform.PermissionReport{BotLevel: 0, RedactLevel: 50}

	b.processMessage(context.Background(), userMsg("$cmd", "!check", time.Now()), true)

	notices := client.sentNotices()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "Missing redaction rights")
}

func TestCommand_Status(t *testing.T) {
	b, client, _, journal := newTestBridge(t, true)
	ctx := context.Background()
	now := time.Now()

	b.processMessage(ctx, userMsg("$one", "some content", now), true)
	b.processMessage(ctx, userMsg("$two", "SOME  content", now.Add(time.Second)), true)
	require.Eventually(t, func() bool {
		counts, _ := journal.Counts(ctx)
		return counts["duplicate"] == 1
	}, time.Second, 5*time.Millisecond)

	b.processMessage(ctx, userMsg("$cmd", "!status", now.Add(2*time.Second)), true)

	notices := client.sentNotices()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "Seen keys: 1")
	assert.Contains(t, notices[0], "Pending deletions: 1")
	assert.Contains(t, notices[0], "High-water mark: $one")
	assert.Contains(t, notices[0], "1 duplicates")
}

func TestCommand_Help(t *testing.T) {
	b, client, _, _ := newTestBridge(t, false)

	b.processMessage(context.Background(), userMsg("$cmd", "!help", time.Now()), true)

	notices := client.sentNotices()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "!check")
	assert.Contains(t, notices[0], "!status")
}

func TestCommand_ExemptFromPolicies(t *testing.T) {
	b, client, queue, _ := newTestBridge(t, true)
	ctx := context.Background()

	b.processMessage(ctx, userMsg("$c1", "!status", time.Now()), true)
	b.processMessage(ctx, userMsg("$c2", "!status", time.Now()), true)

	// Repeated commands are neither deduped nor scheduled for deletion
	assert.Empty(t, client.deletedIDs())
	assert.Equal(t, 0, queue.Len())
	assert.Equal(t, 0, b.cache.Len())
	assert.Len(t, client.sentNotices(), 2)
}

func TestCommand_UnknownIgnored(t *testing.T) {
	b, client, _, _ := newTestBridge(t, false)

	b.processMessage(context.Background(), userMsg("$cmd", "!dance", time.Now()), true)

	assert.Empty(t, client.sentNotices())
}

func TestCommand_SilentDuringCatchUp(t *testing.T) {
	b, client, _, _ := newTestBridge(t, false)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	client.timeline = []platform.Message{userMsg("$old-cmd", "!status", base)}

	require.NoError(t, b.CatchUp(context.Background()))

	// Replaying an old command from history must not produce a reply
	assert.Empty(t, client.sentNotices())
}
