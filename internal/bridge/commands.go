// ABOUTME: Operator commands answered in the monitored room
// ABOUTME: !check verifies redaction rights, !status reports cache/queue/ledger state

package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/roomkeeper/internal/ledger"
	"github.com/2389/roomkeeper/internal/platform"
)

// handleCommand answers a prefixed message. Unknown commands are logged
// and ignored rather than answered, to keep the room quiet.
func (b *Bridge) handleCommand(ctx context.Context, msg platform.Message) {
	cmd := strings.TrimSpace(strings.TrimPrefix(msg.Body, b.prefix))

	switch strings.ToLower(cmd) {
	case "check":
		b.reply(ctx, b.checkReport(ctx))
	case "status":
		b.reply(ctx, b.statusReport(ctx))
	case "help":
		b.reply(ctx, b.helpText())
	default:
		b.logger.Debug("ignoring unknown command", "command", cmd, "sender", msg.Sender.String())
	}
}

// checkReport verifies the bot can actually redact messages in the
// monitored room.
func (b *Bridge) checkReport(ctx context.Context) string {
	report, err := b.client.CheckPermissions(ctx, b.room)
	if err != nil {
		return fmt.Sprintf("Permission check failed: %v", err)
	}
	if !report.CanRedact() {
		return fmt.Sprintf(
			"Missing redaction rights: bot power level is %d, room requires %d to redact.",
			report.BotLevel, report.RedactLevel,
		)
	}
	return fmt.Sprintf(
		"All good: bot power level %d meets the redaction threshold %d.",
		report.BotLevel, report.RedactLevel,
	)
}

// statusReport summarizes the moderation state for operators.
func (b *Bridge) statusReport(ctx context.Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Seen keys: %d\n", b.cache.Len())
	fmt.Fprintf(&sb, "Pending deletions: %d\n", b.tasks.Len())

	mark, ts := b.cache.HighWaterMark()
	if mark != "" {
		fmt.Fprintf(&sb, "High-water mark: %s (%s)\n", mark, ts.UTC().Format("2006-01-02 15:04:05 MST"))
	} else {
		sb.WriteString("High-water mark: none\n")
	}

	if b.journal != nil {
		counts, err := b.journal.Counts(ctx)
		if err != nil {
			b.logger.Warn("ledger counts failed", "error", err)
		} else {
			fmt.Fprintf(&sb, "Deleted: %d duplicates, %d expired, %d abandoned",
				counts[ledger.ReasonDuplicate],
				counts[ledger.ReasonExpired],
				counts[ledger.ReasonDeadLetter],
			)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bridge) helpText() string {
	return strings.Join([]string{
		"roomkeeper commands:",
		b.prefix + "check — verify the bot can redact messages here",
		b.prefix + "status — cache, queue, and deletion totals",
		b.prefix + "help — this text",
	}, "\n")
}

// reply posts a notice to the monitored room; failures are logged.
func (b *Bridge) reply(ctx context.Context, text string) {
	if err := b.client.SendNotice(ctx, b.room, text); err != nil {
		b.logger.Warn("failed to send reply", "error", err)
	}
}
