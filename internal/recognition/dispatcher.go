package recognition

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/metrics"
)

// dispatcher delivers items in FIFO order from a single goroutine.
// Enqueue never blocks the caller; the queue is unbounded.
type dispatcher struct {
	sink      AttendanceSink
	announcer Announcer
	delivered func(AttendanceEvent)
	failed    func(AttendanceEvent)
	metrics   *metrics.Metrics

	mu     sync.Mutex
	queue  []dispatchItem
	closed bool
	notify chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func newDispatcher(sink AttendanceSink, announcer Announcer, delivered, failed func(AttendanceEvent), m *metrics.Metrics) *dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &dispatcher{
		sink:      sink,
		announcer: announcer,
		delivered: delivered,
		failed:    failed,
		metrics:   m,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	go d.run()
	return d
}

// enqueue appends an item. It returns false if the dispatcher is closed.
func (d *dispatcher) enqueue(item dispatchItem) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, item)
	d.mu.Unlock()

	d.metrics.AddQueueDepth(1)
	d.wake()
	return true
}

// pending returns the number of queued items.
func (d *dispatcher) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *dispatcher) wake() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	defer d.cancel()

	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			closed := d.closed
			d.mu.Unlock()
			if closed {
				return
			}
			<-d.notify
			continue
		}
		item := d.queue[0]
		d.queue[0] = dispatchItem{}
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.metrics.AddQueueDepth(-1)
		d.deliver(item)
	}
}

// deliver records the event, then announces it. A failed record skips the
// announcement so listeners never hear about an event that was not logged.
func (d *dispatcher) deliver(item dispatchItem) {
	if item.announceOnly {
		d.announce(item.announcement)
		return
	}
	if d.sink != nil {
		if err := d.record(item.event); err != nil {
			log.Printf("WARNING: failed to record attendance for %s (%s): %v", item.event.IdentityID, item.event.Mode, err)
			d.metrics.IncrementSinkErrors()
			if d.failed != nil {
				d.failed(item.event)
			}
			return
		}
	}

	d.announce(item.announcement)

	if d.delivered != nil {
		d.delivered(item.event)
	}
}

func (d *dispatcher) announce(text string) {
	if d.announcer == nil || text == "" {
		return
	}
	if err := d.announcer.Announce(d.ctx, text); err != nil {
		log.Printf("WARNING: announcement failed: %v", err)
		d.metrics.IncrementAnnounceErrors()
	}
}

// record writes ev to the sink, retrying up to constants.SinkAttempts times
// with a linear backoff. Cancellation ends the retries.
func (d *dispatcher) record(ev AttendanceEvent) error {
	var err error
	for attempt := range constants.SinkAttempts {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * constants.SinkRetryDelay):
			case <-d.ctx.Done():
				return err
			}
		}
		if err = d.sink.Record(d.ctx, ev); err == nil || d.ctx.Err() != nil {
			return err
		}
	}
	return err
}

// close stops accepting items and waits for the consumer to finish.
// With FlushDiscard queued items are dropped; with FlushDrain they are
// delivered first. If ctx ends before the consumer is done, in-flight
// delivery is canceled, the rest of the queue is dropped and ctx.Err() is returned.
func (d *dispatcher) close(ctx context.Context, policy FlushPolicy) error {
	d.mu.Lock()
	d.closed = true
	if policy == FlushDiscard {
		d.dropLocked()
	}
	d.mu.Unlock()
	d.wake()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
	}

	d.mu.Lock()
	d.dropLocked()
	d.mu.Unlock()
	d.cancel()
	return ctx.Err()
}

func (d *dispatcher) dropLocked() {
	n := len(d.queue)
	d.queue = nil
	d.metrics.AddQueueDepth(-n)
	d.metrics.AddDropped(n)
}
