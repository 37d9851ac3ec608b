package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrUnknownChannel indicates no channel is scheduled under that id.
	ErrUnknownChannel = errors.New("unknown poll channel")
	// ErrChannelExists indicates the channel id is already scheduled.
	ErrChannelExists = errors.New("poll channel already scheduled")
	// ErrSchedulerClosed indicates the scheduler has been shut down.
	ErrSchedulerClosed = errors.New("scheduler closed")
)

// Func is one poll cycle. It receives a context that is canceled when the
// owning channel is torn down; a run still in flight at teardown must discard
// its result rather than apply it.
type Func func(ctx context.Context) error

// SuppressionPolicy is evaluated once when a channel is scheduled, never per
// tick, so a mid-session role change cannot re-enable polling. When it
// returns true, recurring ticks stop after the first successful run; manual
// ticks keep working.
type SuppressionPolicy func() bool

// Option configures a scheduled channel.
type Option func(*channel)

// WithSuppression attaches a suppression policy to the channel.
func WithSuppression(policy SuppressionPolicy) Option {
	return func(ch *channel) {
		ch.policy = policy
	}
}

type channel struct {
	id       string
	interval time.Duration
	fn       Func
	policy   SuppressionPolicy

	suppressAfterSuccess bool
	suppressed           atomic.Bool
	busy                 atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Scheduler owns the recurring timers for the engine's poll channels. Timer
// ticks and manual refresh triggers funnel through the same single-flight
// gate, so at most one run per channel is in flight at any instant.
type Scheduler struct {
	logger *slog.Logger

	mu       sync.Mutex
	channels map[string]*channel
	closed   bool
	wg       sync.WaitGroup
}

// NewScheduler constructs an empty scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger, channels: make(map[string]*channel)}
}

// Schedule registers fn under the channel id and starts its recurring timer.
func (s *Scheduler) Schedule(id string, interval time.Duration, fn Func, opts ...Option) error {
	if fn == nil || interval <= 0 {
		return errors.New("poll: interval and fn are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}
	if _, exists := s.channels[id]; exists {
		return ErrChannelExists
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := &channel{id: id, interval: interval, fn: fn, ctx: ctx, cancel: cancel}
	for _, opt := range opts {
		opt(ch)
	}
	ch.suppressAfterSuccess = ch.policy != nil && ch.policy()

	s.channels[id] = ch

	s.wg.Add(1)
	go s.loop(ch)

	return nil
}

// Tick runs one cycle for the channel immediately, through the same
// single-flight gate as the timer. It reports whether a run was started;
// false means a previous run is still in flight. Manual ticks bypass
// suppression.
func (s *Scheduler) Tick(id string) (bool, error) {
	s.mu.Lock()
	ch, ok := s.channels[id]
	s.mu.Unlock()
	if !ok {
		return false, ErrUnknownChannel
	}
	return s.run(ch), nil
}

// Cancel tears the channel down: its timer stops and any in-flight run's
// context is canceled.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	ch, ok := s.channels[id]
	if ok {
		delete(s.channels, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrUnknownChannel
	}

	ch.cancel()
	return nil
}

// Suppressed reports whether recurring ticks for the channel have been
// disabled by its policy.
func (s *Scheduler) Suppressed(id string) bool {
	s.mu.Lock()
	ch, ok := s.channels[id]
	s.mu.Unlock()
	return ok && ch.suppressed.Load()
}

// Shutdown cancels every channel and waits for their loops to exit.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	channels := make([]*channel, 0, len(s.channels))
	for _, ch := range s.channels {
		channels = append(channels, ch)
	}
	s.channels = make(map[string]*channel)
	s.mu.Unlock()

	for _, ch := range channels {
		ch.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Scheduler) loop(ch *channel) {
	defer s.wg.Done()

	ticker := time.NewTicker(ch.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ch.ctx.Done():
			return
		case <-ticker.C:
			if ch.suppressed.Load() {
				continue
			}
			s.run(ch)
		}
	}
}

// run executes one cycle unless a previous one is still in flight, in which
// case the tick is skipped rather than queued.
func (s *Scheduler) run(ch *channel) bool {
	if !ch.busy.CompareAndSwap(false, true) {
		s.logger.Debug("tick skipped, run in flight", "channel", ch.id)
		return false
	}
	defer ch.busy.Store(false)

	if err := ch.fn(ch.ctx); err != nil {
		s.logger.Warn("poll cycle failed", "channel", ch.id, "error", err)
		return true
	}

	if ch.suppressAfterSuccess && ch.suppressed.CompareAndSwap(false, true) {
		s.logger.Info("recurring ticks suppressed by policy", "channel", ch.id)
	}

	return true
}
