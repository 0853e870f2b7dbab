// ABOUTME: Delayed-deletion scheduler for the fleeting-message policy.
// ABOUTME: Single worker drains a FIFO queue, sleeping until each task's due time.

package expiry

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix/id"

	"github.com/2389/roomkeeper/internal/ledger"
	"github.com/2389/roomkeeper/internal/platform"
)

// Deleter is the single platform operation the sweeper needs.
type Deleter interface {
	DeleteMessage(ctx context.Context, room id.RoomID, eventID id.EventID, reason string) error
}

// Journal records deletion outcomes. Satisfied by *ledger.Ledger.
type Journal interface {
	RecordDeletion(ctx context.Context, room id.RoomID, eventID id.EventID, reason string, attempts int) error
}

// Task is one pending deletion. Tasks share a fixed delay from their own
// post time, so FIFO queue order is also due-time order.
type Task struct {
	Room     id.RoomID
	EventID  id.EventID
	PostedAt time.Time
	DueAt    time.Time
	Attempt  int

	// retryAt pushes a failed task's next try into the future without
	// giving up its place at the head of the queue.
	retryAt time.Time
}

const (
	defaultBaseBackoff = 5 * time.Second
	defaultMaxBackoff  = 5 * time.Minute
)

// Sweeper deletes messages a fixed interval after they were posted.
// Exactly one worker goroutine services the queue; it exits when the
// queue empties and is restarted by the next Add. Failed deletions stay
// at the head of the queue (their delay has already elapsed) and retry
// with bounded exponential backoff.
type Sweeper struct {
	deleter Deleter
	journal Journal
	logger  *slog.Logger

	delay       time.Duration
	maxAttempts int // 0 means retry forever
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   *list.List // of *Task
	running bool
	closed  bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithJournal records every outcome (expired, dead-lettered) to the
// given journal. Journal failures are logged, never propagated.
func WithJournal(j Journal) Option {
	return func(s *Sweeper) { s.journal = j }
}

// WithMaxAttempts sets a retry ceiling. A task that fails this many
// times is dead-lettered instead of retrying forever. Zero disables the
// ceiling.
func WithMaxAttempts(n int) Option {
	return func(s *Sweeper) { s.maxAttempts = n }
}

// WithBackoff overrides the retry backoff bounds.
func WithBackoff(base, max time.Duration) Option {
	return func(s *Sweeper) { s.baseBackoff = base; s.maxBackoff = max }
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New creates a sweeper that deletes each added message delay after its
// post time. The worker is not started until the first Add.
func New(deleter Deleter, delay time.Duration, opts ...Option) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		deleter:     deleter,
		logger:      slog.Default().With("component", "expiry"),
		delay:       delay,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		queue:       list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add enqueues a deletion task for the message. If no worker is running
// one is started before the queue lock is released, so concurrent Adds
// can never spawn two workers.
func (s *Sweeper) Add(msg platform.Message) {
	task := &Task{
		Room:     msg.RoomID,
		EventID:  msg.ID,
		PostedAt: msg.Timestamp,
		DueAt:    msg.Timestamp.Add(s.delay),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue.PushBack(task)
	if !s.running {
		s.running = true
		go s.run()
	}
}

// Len returns the number of pending tasks.
func (s *Sweeper) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Stop shuts the worker down. Pending tasks are abandoned; the startup
// catch-up scan re-seeds them on the next run.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

// run services the queue until it is empty, then exits. Only one run
// goroutine exists at a time.
func (s *Sweeper) run() {
	for {
		s.mu.Lock()
		front := s.queue.Front()
		if front == nil || s.closed {
			s.running = false
			s.mu.Unlock()
			return
		}
		task := front.Value.(*Task)
		due := task.DueAt
		if task.retryAt.After(due) {
			due = task.retryAt
		}
		s.mu.Unlock()

		if wait := due.Sub(s.now()); wait > 0 {
			if !s.sleep(wait) {
				s.finish()
				return
			}
		}

		// The timer can fire marginally early; re-sleep rather than
		// delete ahead of the due time.
		if s.now().Before(due) {
			continue
		}

		err := s.deleter.DeleteMessage(s.ctx, task.Room, task.EventID, "fleeting message expired")
		switch {
		case err == nil, errors.Is(err, platform.ErrMessageGone):
			s.remove(front)
			attempts := task.Attempt + 1
			s.logger.Info("deleted expired message",
				"event", task.EventID.String(),
				"attempts", attempts,
			)
			s.record(task, ledger.ReasonExpired, attempts)

		case s.ctx.Err() != nil:
			s.finish()
			return

		default:
			task.Attempt++
			if s.maxAttempts > 0 && task.Attempt >= s.maxAttempts {
				s.remove(front)
				s.logger.Error("abandoning deletion after retry ceiling",
					"event", task.EventID.String(),
					"attempts", task.Attempt,
					"error", err,
				)
				s.record(task, ledger.ReasonDeadLetter, task.Attempt)
				continue
			}
			backoff := s.backoffFor(task.Attempt)
			task.retryAt = s.now().Add(backoff)
			s.logger.Warn("deletion failed, will retry",
				"event", task.EventID.String(),
				"attempt", task.Attempt,
				"backoff", backoff,
				"error", err,
			)
		}
	}
}

// sleep blocks for d or until Stop. Returns false if stopped.
func (s *Sweeper) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// finish marks the worker as stopped.
func (s *Sweeper) finish() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// remove pops a settled task from the queue.
func (s *Sweeper) remove(elem *list.Element) {
	s.mu.Lock()
	s.queue.Remove(elem)
	s.mu.Unlock()
}

// record writes an outcome to the journal, if one is configured.
func (s *Sweeper) record(task *Task, reason string, attempts int) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.RecordDeletion(ctx, task.Room, task.EventID, reason, attempts); err != nil {
		s.logger.Warn("ledger write failed", "event", task.EventID.String(), "error", err)
	}
}

// backoffFor computes the bounded exponential backoff for the nth
// failed attempt.
func (s *Sweeper) backoffFor(attempt int) time.Duration {
	d := s.baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.maxBackoff {
			return s.maxBackoff
		}
	}
	if d > s.maxBackoff {
		return s.maxBackoff
	}
	return d
}
