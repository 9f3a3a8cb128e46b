package session

import (
	"context"
	"sync"
	"time"
)

// NotificationKind enumerates supported notification categories.
type NotificationKind string

const (
	NotificationWelcome       NotificationKind = "account.welcome"
	NotificationAccountLinked NotificationKind = "account.federation.linked"
	NotificationAccountLocked NotificationKind = "account.locked"
)

// Notification is an intent handed off to a delivery channel (email,
// SMS). Delivery is best-effort; the auth flow never waits on it.
type Notification struct {
	Kind       NotificationKind
	Recipient  string
	SubjectID  string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Notifier consumes notification intents.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// AsyncDispatcher decouples notification delivery from the request
// path: Notify enqueues and returns immediately, a single worker
// drains the queue, and failures are logged and dropped. A full queue
// drops the intent rather than block a login.
type AsyncDispatcher struct {
	sink    Notifier
	queue   chan Notification
	logger  Logger
	timeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncDispatcher starts the delivery worker. buffer bounds the
// number of in-flight intents.
func NewAsyncDispatcher(sink Notifier, buffer int, logger Logger) *AsyncDispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = defLogger{}
	}

	d := &AsyncDispatcher{
		sink:    normalizeNotifier(sink),
		queue:   make(chan Notification, buffer),
		logger:  logger,
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}

	go d.run()

	return d
}

// Notify implements Notifier. It never blocks and never returns a
// delivery error.
func (d *AsyncDispatcher) Notify(_ context.Context, n Notification) error {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now()
	}

	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notification queue full, dropping %s intent", n.Kind)
	}

	return nil
}

// Close stops the worker after draining queued intents.
func (d *AsyncDispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
		<-d.done
	})
}

func (d *AsyncDispatcher) run() {
	defer close(d.done)

	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.sink.Notify(ctx, n); err != nil {
			d.logger.Warn("notification delivery failed for %s: %v", n.Kind, err)
		}
		cancel()
	}
}
