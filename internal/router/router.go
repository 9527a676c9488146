// Package router is the publish/subscribe layer between lifecycle events and
// their consumers. Subscriptions are fixed before Start, after which the
// router is sealed.
package router

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/openkcm/tenant-lifecycle/internal/errs"
	"github.com/openkcm/tenant-lifecycle/internal/event"
	"github.com/openkcm/tenant-lifecycle/internal/log"
)

// Consumer handles one delivered event. Consumers must be idempotent, the bus
// delivers at least once.
type Consumer interface {
	Consume(ctx context.Context, e event.LifecycleEvent) error
}

type ConsumerFunc func(ctx context.Context, e event.LifecycleEvent) error

func (f ConsumerFunc) Consume(ctx context.Context, e event.LifecycleEvent) error {
	return f(ctx, e)
}

// Deliverer is what a Bus calls for every received event.
type Deliverer interface {
	Deliver(ctx context.Context, e event.LifecycleEvent) error
}

// Bus transports events between publishers and the router.
type Bus interface {
	// Publish hands e over for delivery under its dedup key. It returns
	// ErrDuplicate when an event with the same key is already in flight.
	Publish(ctx context.Context, e event.LifecycleEvent) error
	// Bind routes deliveries of topics to d.
	Bind(topics []string, d Deliverer) error
}

// TimeoutBus is a Bus that bounds how long one delivery of a topic may run.
type TimeoutBus interface {
	Bus
	// SetTimeout lets deliveries of topic run for at least d.
	SetTimeout(topic string, d time.Duration)
}

// Publisher is the publish side of the router, handed to components that emit
// events.
type Publisher interface {
	Publish(ctx context.Context, e event.LifecycleEvent) error
}

type Router struct {
	bus Bus

	mu        sync.RWMutex
	consumers map[string][]Consumer
	sealed    bool
}

var (
	_ Publisher = (*Router)(nil)
	_ Deliverer = (*Router)(nil)
)

func New(bus Bus) *Router {
	return &Router{
		bus:       bus,
		consumers: make(map[string][]Consumer),
	}
}

// Subscribe binds c to topic. It fails once the router is sealed.
func (r *Router) Subscribe(topic string, c Consumer) error {
	if c == nil {
		return ErrNilConsumer
	}

	detailType, service := event.ParseTopic(topic)
	if _, ok := event.Lookup(detailType); !ok {
		return errs.Wrapf(event.ErrUnknownDetailType, topic)
	}

	if detailType == event.DeployRequest && service == "" {
		return errs.Wrapf(event.ErrMissingService, topic)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return errs.Wrapf(ErrRouterSealed, topic)
	}

	r.consumers[topic] = append(r.consumers[topic], c)

	return nil
}

// Topics returns the subscribed topics in a stable order.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.consumers))
}

// Start seals the router and binds every subscribed topic on the bus.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()

	if r.sealed {
		r.mu.Unlock()
		return ErrRouterStarted
	}

	r.sealed = true
	r.mu.Unlock()

	topics := r.Topics()

	err := r.bus.Bind(topics, r)
	if err != nil {
		return err
	}

	log.Info(ctx, "Event router started", slog.Any("topics", topics))

	return nil
}

// Publish validates e and hands it to the bus. A duplicate suppressed by the
// bus counts as published.
func (r *Router) Publish(ctx context.Context, e event.LifecycleEvent) error {
	err := e.Validate()
	if err != nil {
		return err
	}

	ctx = log.InjectEvent(ctx, string(e.DetailType), e.TenantID)

	err = r.bus.Publish(ctx, e)
	if errors.Is(err, ErrDuplicate) {
		log.Debug(ctx, "Event already in flight", slog.String("dedupKey", e.DedupKey()))
		return nil
	}

	if err != nil {
		return err
	}

	log.Debug(ctx, "Event published", slog.String("topic", e.Topic()))

	return nil
}

// Deliver runs every consumer of the event's topic. The returned error is
// terminal only when every failing consumer failed terminally.
func (r *Router) Deliver(ctx context.Context, e event.LifecycleEvent) error {
	err := e.Validate()
	if err != nil {
		return Terminal(err)
	}

	ctx = log.InjectEvent(ctx, string(e.DetailType), e.TenantID)

	r.mu.RLock()
	consumers := r.consumers[e.Topic()]
	r.mu.RUnlock()

	if len(consumers) == 0 {
		log.Warn(ctx, "No consumer subscribed", slog.String("topic", e.Topic()))
		return nil
	}

	var result error

	for _, c := range consumers {
		result = multierr.Append(result, c.Consume(ctx, e))
	}

	if result == nil {
		return nil
	}

	for _, err := range multierr.Errors(result) {
		if !IsTerminal(err) {
			log.Warn(ctx, "Event delivery failed, will be redelivered", log.ErrorAttr(result))
			return result
		}
	}

	log.Error(ctx, "Event delivery failed terminally", result)

	return Terminal(result)
}
