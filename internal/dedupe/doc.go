// Package dedupe tracks the canonical keys of messages already seen on
// the monitored room, so that repeats can be deleted on arrival. The
// cache carries a high-water mark of the last processed message, which
// lets the startup catch-up scan resume where the previous process
// stopped instead of rescanning the whole room history.
package dedupe
