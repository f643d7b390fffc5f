package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fitpass/internal/metrics"
	"fitpass/internal/models"
	"fitpass/internal/utils"
)

const defaultSendTimeout = 30 * time.Second

// Notification carries a reset code to one recipient. Code must only ever
// reach the transport; it is left out of log output.
type Notification struct {
	ID        string
	Channel   models.Channel
	To        string
	Code      string
	ExpiresIn time.Duration
}

func (n Notification) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", n.ID).
		Str("channel", string(n.Channel)).
		Str("to", utils.MaskIdentifier(n.To))
}

// Subject is the email subject line.
func (n Notification) Subject() string {
	return "Your FitPass password reset code"
}

// Text is the plain message body shared by email and SMS.
func (n Notification) Text() string {
	return fmt.Sprintf("Your FitPass password reset code is %s. It expires in %d minutes. If you did not ask for it, ignore this message.",
		n.Code, int(n.ExpiresIn.Round(time.Minute)/time.Minute))
}

// Sender delivers a notification over one transport.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Dispatcher accepts a notification for delivery and returns its message id.
// Acceptance does not mean the transport succeeded.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) (string, error)
}

// AsyncDispatcher queues notifications and delivers them from a fixed pool
// of workers. Transport failures are logged and counted, never returned.
type AsyncDispatcher struct {
	senders     map[models.Channel]Sender
	queue       chan Notification
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	group  errgroup.Group
}

func NewAsyncDispatcher(senders map[models.Channel]Sender, workers, queueSize int) *AsyncDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	d := &AsyncDispatcher{
		senders:     senders,
		queue:       make(chan Notification, queueSize),
		sendTimeout: defaultSendTimeout,
	}
	for i := 0; i < workers; i++ {
		d.group.Go(d.work)
	}
	log.Info().Int("workers", workers).Int("queue_size", queueSize).Msg("Notification dispatcher started")
	return d
}

// Dispatch enqueues n without blocking. A full or closed queue yields
// ErrDeliveryUnavailable.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, n Notification) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return "", ErrDeliveryUnavailable
	}
	select {
	case d.queue <- n:
		metrics.NotificationQueueDepth.Inc()
		log.Debug().EmbedObject(n).Msg("Notification queued")
		return n.ID, nil
	default:
		log.Warn().EmbedObject(n).Msg("Notification queue full")
		return "", ErrDeliveryUnavailable
	}
}

func (d *AsyncDispatcher) work() error {
	for n := range d.queue {
		metrics.NotificationQueueDepth.Dec()
		d.deliver(n)
	}
	return nil
}

func (d *AsyncDispatcher) deliver(n Notification) {
	sender, ok := d.senders[n.Channel]
	if !ok {
		metrics.NotificationsTotal.WithLabelValues(string(n.Channel), "failed").Inc()
		log.Error().EmbedObject(n).Msg("No sender configured for channel")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()
	if err := sender.Send(ctx, n); err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(n.Channel), "failed").Inc()
		log.Error().Err(err).EmbedObject(n).Msg("Notification delivery failed")
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(n.Channel), "sent").Inc()
	log.Info().EmbedObject(n).Msg("Notification delivered")
}

// Close stops accepting notifications and waits for queued ones to be
// delivered or for ctx to end.
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- d.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("notification queue not drained: %w", ctx.Err())
	}
}
