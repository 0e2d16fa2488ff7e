package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"pdfchat/internal/model"
	"pdfchat/internal/platform/rabbitmq"
	"pdfchat/internal/rag"
)

const defaultJobTimeout = 10 * time.Minute

type IngestJobHandler interface {
	HandleIngestJob(ctx context.Context, job model.IngestJob) error
}

// Delivery is the part of an AMQP delivery the worker needs.
type Delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// IngestWorker consumes ingest jobs from RabbitMQ. Jobs are acked after the
// document is indexed. Jobs interrupted by shutdown are always requeued,
// transient failures are requeued once and broken documents are dropped.
type IngestWorker struct {
	conn       *amqp.Connection
	handler    IngestJobHandler
	queueName  string
	jobTimeout time.Duration
	log        *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, handler IngestJobHandler, queueName string, log *zap.Logger) *IngestWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestWorker{
		conn:       conn,
		handler:    handler,
		queueName:  queueName,
		jobTimeout: defaultJobTimeout,
		log:        log.Named("ingest_worker"),
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	// Ingestion is heavy; take one job at a time.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.process(workerCtx, d.Body, d.Redelivered, d)
			}
		}
	}()

	w.log.Info("ingest worker started", zap.String("queue", w.queueName))
	return nil
}

func (w *IngestWorker) process(ctx context.Context, body []byte, redelivered bool, d Delivery) {
	var job model.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.log.Warn("decode ingest job failed", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	log := w.log.With(zap.Uint("chat_id", job.ChatID), zap.String("file_key", job.FileKey))

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	if err := w.handler.HandleIngestJob(jobCtx, job); err != nil {
		requeue := !redelivered && isTransient(err)
		// A job cut short by shutdown never ran to completion; hand it back.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			requeue = true
		}
		log.Error("ingest job failed", zap.Bool("requeue", requeue), zap.Error(err))
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

// isTransient reports whether a failed job may succeed on a second attempt.
// Only a broken or missing document is final; store and provider errors are
// retried once.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, rag.ErrExtractionFailed),
		errors.Is(err, rag.ErrSourceUnavailable),
		errors.Is(err, rag.ErrEmbeddingEmpty):
		return false
	}
	return true
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
