package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// retryableError marks failures that deserve a redelivery, such as a
// transient database or Redis outage.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// NewRetryableError wraps err so the pool NACKs with requeue.
func NewRetryableError(err error) error {
	return &retryableError{err: err}
}

func shouldRequeue(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

// spawnWorkerPool spawns N processing goroutines based on concurrency
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.messages:
			if !ok {
				w.logger.Info("Worker goroutine stopping - message channel closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			err := w.processor.Process(ctx, msg.envelope)

			if err != nil {
				w.logger.Error("Event processing failed",
					slog.String("worker_name", workerName),
					slog.String("event_id", msg.envelope.ID),
					slog.String("kind", msg.envelope.Kind),
					slog.String("error", err.Error()),
				)

				requeue := shouldRequeue(err)
				if nackErr := msg.delivery.Nack(false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("event_id", msg.envelope.ID),
						slog.String("error", nackErr.Error()),
					)
				} else {
					w.logger.Info("Message NACKed",
						slog.String("worker_name", workerName),
						slog.String("event_id", msg.envelope.ID),
						slog.Bool("requeue", requeue),
					)
				}
				continue
			}

			if ackErr := msg.delivery.Ack(false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("event_id", msg.envelope.ID),
					slog.String("error", ackErr.Error()),
				)
			} else {
				w.logger.Debug("Event processed",
					slog.String("worker_name", workerName),
					slog.String("event_id", msg.envelope.ID),
					slog.String("kind", msg.envelope.Kind),
				)
			}
		}
	}
}
