package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bellcorp/eventboard/internal/notifications"
	"github.com/bellcorp/eventboard/internal/observability"
	"github.com/bellcorp/eventboard/internal/queue"
)

type ConfirmationSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (queue.Confirmation, error)
}

type Config struct {
	// BlockTimeout bounds each blocking pop so shutdown is responsive.
	BlockTimeout time.Duration
}

type Worker struct {
	cfg      Config
	source   ConfirmationSource
	notifier notifications.Notifier
	prom     *observability.Prom
	log      *slog.Logger
}

func New(cfg Config, source ConfirmationSource, notifier notifications.Notifier, prom *observability.Prom, log *slog.Logger) *Worker {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}

	return &Worker{
		cfg:      cfg,
		source:   source,
		notifier: notifier,
		prom:     prom,
		log:      log,
	}
}

// Run consumes confirmations until ctx is cancelled. Queue errors back off
// exponentially; a payload that fails to notify is logged and dropped rather
// than requeued, since the registration itself already committed.
func (w *Worker) Run(ctx context.Context) error {
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker received shutdown signal")
			return nil
		default:
		}

		c, err := w.source.Dequeue(ctx, w.cfg.BlockTimeout)

		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				attempt = 0
				continue
			}

			if errors.Is(err, queue.ErrInvalidPayload) {
				w.count("decode_error")
				w.log.Error("dropping undecodable confirmation", "err", err)
				attempt = 0
				continue
			}

			if ctx.Err() != nil {
				return nil
			}

			delay := ExponentialBackoff(attempt)
			attempt++
			w.log.Error("queue error, backing off", "err", err, "delay", delay.String())

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0

		err = w.notifier.SendRegistrationConfirmation(ctx, notifications.SendRegistrationConfirmationInput{
			Email:          c.Email,
			Name:           c.Name,
			EventID:        c.EventID,
			EventName:      c.EventName,
			RegistrationID: c.RegistrationID,
		})

		if err != nil {
			w.count("notify_error")
			w.log.Error("confirmation notify failed", "registration_id", c.RegistrationID, "err", err)
			continue
		}

		w.count("ok")
		w.log.Info("confirmation sent", "registration_id", c.RegistrationID, "event_id", c.EventID)
	}
}

func (w *Worker) count(result string) {
	if w.prom != nil {
		w.prom.QueueConsumeTotal.WithLabelValues(result).Inc()
	}
}
