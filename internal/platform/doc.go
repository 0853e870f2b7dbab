// Package platform abstracts the chat platform operations the bot
// consumes: deleting messages, paginating room history, and posting
// diagnostics. The Matrix implementation maps these onto mautrix
// (redaction, /messages, /context, power levels); the rest of the
// codebase depends only on the Client interface.
package platform
