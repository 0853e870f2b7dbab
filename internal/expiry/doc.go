// Package expiry implements the fleeting-message policy: every message
// posted to the monitored room is deleted a fixed interval after its
// post time. Tasks queue FIFO (equivalent to due-time order, since the
// delay is uniform) and are serviced by a single worker that sleeps
// until the head task is due. The worker only exists while the queue is
// non-empty; enqueueing restarts it. Failed deletions retry from the
// head of the queue with bounded backoff, and an optional attempt
// ceiling dead-letters poison tasks to the ledger instead of letting
// them monopolize the worker.
package expiry
