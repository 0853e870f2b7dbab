// Package bridge wires Matrix sync events into the two moderation
// policies: duplicate suppression (delete any message whose normalized
// content has been seen before) and fleeting messages (delete every
// message a fixed interval after posting). Live events and the startup
// catch-up scan share one processMessage path, so both enforce the same
// invariants. The bridge also answers operator commands in the room.
package bridge
