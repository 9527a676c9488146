package router

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/log"
)

var ErrNotBound = errors.New("local bus has no deliverer bound")

const (
	defaultLocalRedeliveries = 3
	defaultLocalBackoff      = 10 * time.Millisecond
)

// Failure is an event the local bus gave up on.
type Failure struct {
	Event event.LifecycleEvent
	Err   error
}

type LocalOption func(*LocalBus)

func WithMaxRedeliveries(n int) LocalOption {
	return func(b *LocalBus) {
		b.maxRedeliveries = n
	}
}

func WithBackoff(d time.Duration) LocalOption {
	return func(b *LocalBus) {
		b.backoff = d
	}
}

// LocalBus delivers events in process on their own goroutine. Events whose
// dedup key is still in flight are suppressed, non-terminal failures are
// redelivered a bounded number of times.
type LocalBus struct {
	maxRedeliveries int
	backoff         time.Duration

	mu        sync.Mutex
	deliverer Deliverer
	inFlight  map[string]struct{}
	failures  []Failure
	wg        sync.WaitGroup
}

var _ Bus = (*LocalBus)(nil)

func NewLocalBus(opts ...LocalOption) *LocalBus {
	b := &LocalBus{
		maxRedeliveries: defaultLocalRedeliveries,
		backoff:         defaultLocalBackoff,
		inFlight:        make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

func (b *LocalBus) Bind(_ []string, d Deliverer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.deliverer = d

	return nil
}

func (b *LocalBus) Publish(ctx context.Context, e event.LifecycleEvent) error {
	key := e.DedupKey()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.deliverer == nil {
		return ErrNotBound
	}

	if _, ok := b.inFlight[key]; ok {
		return ErrDuplicate
	}

	b.inFlight[key] = struct{}{}

	d := b.deliverer
	ctx = context.WithoutCancel(ctx)

	b.wg.Go(func() {
		defer b.release(key)

		b.deliver(ctx, d, e)
	})

	return nil
}

// Wait blocks until every published event, including those published by
// consumers while waiting, has been delivered or given up on.
func (b *LocalBus) Wait() {
	b.wg.Wait()
}

// Failures returns the events that were given up on.
func (b *LocalBus) Failures() []Failure {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.failures)
}

func (b *LocalBus) deliver(ctx context.Context, d Deliverer, e event.LifecycleEvent) {
	var err error

	for attempt := 0; attempt <= b.maxRedeliveries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * b.backoff)
		}

		err = d.Deliver(ctx, e)
		if err == nil || IsTerminal(err) {
			break
		}

		log.Debug(ctx, "Redelivering event", slog.Int("attempt", attempt+1), log.ErrorAttr(err))
	}

	if err == nil {
		return
	}

	b.mu.Lock()
	b.failures = append(b.failures, Failure{Event: e, Err: err})
	b.mu.Unlock()
}

func (b *LocalBus) release(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.inFlight, key)
}
