package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"travel-companion/internal/infrastructure/metrics"
)

var (
	// ErrDeliveryTimeout is returned when a delivery did not finish within
	// the timeout. The send is not cancelled and may still complete.
	ErrDeliveryTimeout = errors.New("delivery timed out")
	// ErrSinkUnavailable is returned when no sink is configured or the
	// dispatcher has stopped.
	ErrSinkUnavailable = errors.New("notification sink unavailable")
)

// Sink sends one message to the notification channel.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// Deliverer is what the orchestrator uses to fan out replies.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Config contains dispatcher configuration.
type Config struct {
	Timeout    time.Duration
	ChunkDelay time.Duration
	QueueSize  int
}

type task struct {
	msgs []Message
	done chan error
}

// Dispatcher serializes sends through a single goroutine that owns the sink.
type Dispatcher struct {
	sink       Sink
	tasks      chan task
	timeout    time.Duration
	chunkDelay time.Duration
	log        zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil sink makes every delivery fail
// with ErrSinkUnavailable.
func NewDispatcher(sink Sink, cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Dispatcher{
		sink:       sink,
		tasks:      make(chan task, cfg.QueueSize),
		timeout:    cfg.Timeout,
		chunkDelay: cfg.ChunkDelay,
		log:        log.With().Str("component", "delivery-dispatcher").Logger(),
		stopChan:   make(chan struct{}),
	}
}

// Start launches the sink goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running || d.sink == nil {
		return
	}
	d.running = true
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop(ctx)
	}()
	d.log.Info().Msg("delivery dispatcher started")
}

// Stop stops the sink goroutine after the in-flight task.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()
	d.wg.Wait()
	d.log.Info().Msg("delivery dispatcher stopped")
}

func (d *Dispatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		case t := <-d.tasks:
			metrics.DeliveryQueueDepth.Set(float64(len(d.tasks)))
			t.done <- d.send(ctx, t.msgs)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, msgs []Message) error {
	for i, m := range msgs {
		if i > 0 && d.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.chunkDelay):
			}
		}
		if err := d.sink.Send(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Deliver queues a delivery and waits up to the timeout for it to be sent.
// Failures are logged and returned; callers treat them as non-fatal.
func (d *Dispatcher) Deliver(ctx context.Context, del Delivery) error {
	msgs := Messages(del)
	if len(msgs) == 0 {
		return nil
	}

	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if !running {
		metrics.RecordDelivery("unavailable")
		d.log.Debug().Int("messages", len(msgs)).Msg("delivery skipped, sink unavailable")
		return ErrSinkUnavailable
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	t := task{msgs: msgs, done: make(chan error, 1)}
	select {
	case d.tasks <- t:
		metrics.DeliveryQueueDepth.Set(float64(len(d.tasks)))
	case <-timer.C:
		return d.fail(ErrDeliveryTimeout, "timeout", len(msgs))
	case <-ctx.Done():
		return d.fail(ctx.Err(), "cancelled", len(msgs))
	}

	select {
	case err := <-t.done:
		if err != nil {
			return d.fail(err, "error", len(msgs))
		}
		metrics.RecordDelivery("success")
		return nil
	case <-timer.C:
		return d.fail(ErrDeliveryTimeout, "timeout", len(msgs))
	case <-ctx.Done():
		return d.fail(ctx.Err(), "cancelled", len(msgs))
	}
}

func (d *Dispatcher) fail(err error, outcome string, messages int) error {
	metrics.RecordDelivery(outcome)
	d.log.Error().Err(err).Str("outcome", outcome).Int("messages", messages).Msg("delivery failed")
	return err
}
