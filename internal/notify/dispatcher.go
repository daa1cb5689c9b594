package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-copytrade-lab/internal/observability"
)

// Dispatcher queues events and delivers them to a Sink on its own goroutine.
// Notify never blocks; events are dropped and counted when the queue is full.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	logger  logrus.FieldLogger

	queue chan Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	QueueSize      int           // Default: 1024
	PublishTimeout time.Duration // Default: 5s
	Logger         logrus.FieldLogger
}

// NewDispatcher starts a dispatcher over sink.
func NewDispatcher(sink Sink, opts DispatcherOptions) *Dispatcher {
	size := opts.QueueSize
	if size <= 0 {
		size = 1024
	}
	timeout := opts.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	d := &Dispatcher{
		sink:    sink,
		timeout: timeout,
		logger:  logger.WithField("component", "notify-dispatcher"),
		queue:   make(chan Event, size),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues an event without blocking.
func (d *Dispatcher) Notify(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		observability.RecordNotificationDropped("closed")
		return
	}
	select {
	case d.queue <- ev:
	default:
		observability.RecordNotificationDropped("queue-full")
		d.logger.WithField("type", ev.Type).Warn("notification queue full, dropping event")
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sink.Publish(ctx, ev)
		cancel()
		if err != nil {
			observability.RecordNotificationDropped("publish-error")
			d.logger.WithError(err).WithFields(logrus.Fields{
				"event_id": ev.ID,
				"type":     ev.Type,
			}).Warn("notification delivery failed")
		}
	}
}

// Verify interface compliance at compile time.
var (
	_ Notifier = (*Dispatcher)(nil)
	_ Notifier = Discard{}
	_ Sink     = (*LogSink)(nil)
	_ Sink     = (*AMQPSink)(nil)
)
