package distributor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/you-humble/audioclip/internal/domain"

	"github.com/nats-io/nats.go"
)

const (
	consumerName = "audio-clip-workers"
	nakDelay     = 5 * time.Second
	maxDeliver   = 5
	fetchWait    = 5 * time.Second
)

type Processor interface {
	Process(ctx context.Context, jobID string) error
}

type Config struct {
	Stream  string
	Subject string
	Size    int

	// AckWait must exceed the job budget so a message is not redelivered
	// while its worker is still running.
	AckWait    time.Duration
	RetryDelay time.Duration
}

type natsDistributor struct {
	cfg       Config
	js        nats.JetStreamContext
	processor Processor

	done chan struct{}
	sub  *nats.Subscription
}

func New(cfg Config, js nats.JetStreamContext, processor Processor) *natsDistributor {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = nakDelay
	}
	return &natsDistributor{
		cfg:       cfg,
		js:        js,
		processor: processor,
		done:      make(chan struct{}, cfg.Size),
	}
}

func (d *natsDistributor) Run(ctx context.Context) error {
	_, err := d.js.AddConsumer(d.cfg.Stream, &nats.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       d.cfg.AckWait,
		MaxDeliver:    maxDeliver,
		FilterSubject: d.cfg.Subject,
		MaxAckPending: d.cfg.Size * 2,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		slog.Error("JetStream AddConsumer", slog.String("error", err.Error()))
		return err
	}

	sub, err := d.js.PullSubscribe(d.cfg.Subject, consumerName, nats.BindStream(d.cfg.Stream))
	if err != nil {
		slog.Error("JetStream PullSubscribe", slog.String("error", err.Error()))
		return err
	}
	d.sub = sub

	for range d.cfg.Size {
		go func() {
			defer func() { d.done <- struct{}{} }()
			d.runWorker(ctx)
		}()
	}

	slog.Info("NATS processor is running",
		slog.Int("workers", d.cfg.Size),
		slog.String("subject", d.cfg.Subject),
	)
	return nil
}

// Stop waits for the workers to finish their current job once ctx is done.
func (d *natsDistributor) Stop(ctx context.Context) {
	<-ctx.Done()

	if d.sub == nil {
		return
	}

	for range d.cfg.Size {
		<-d.done
	}

	if err := d.sub.Drain(); err != nil {
		slog.Warn("NATS subscription drain", slog.String("error", err.Error()))
	}

	slog.Info("NATS processor stopped")
}

func (d *natsDistributor) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("Worker stopping")
			return
		default:
		}

		fetchCtx, cancel := context.WithTimeout(ctx, fetchWait)
		msgs, err := d.sub.Fetch(1, nats.Context(fetchCtx))
		cancel()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			slog.Warn("NATS Fetch", slog.String("error", err.Error()))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			d.handle(ctx, msg)
		}
	}
}

// handle runs one job. A job that was picked up runs to its own deadline
// even when shutdown starts, so the terminal state is written.
func (d *natsDistributor) handle(ctx context.Context, msg *nats.Msg) {
	jobID := string(msg.Data)
	log := slog.With(slog.String("job_id", jobID))
	log.Debug("Got message")

	err := d.processor.Process(context.WithoutCancel(ctx), jobID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		log.Error("process: job record is gone, dropping message")
	default:
		log.Error("process", slog.String("error", err.Error()))
		if nerr := msg.NakWithDelay(d.cfg.RetryDelay); nerr != nil {
			log.Warn("NATS Nak", slog.String("error", nerr.Error()))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		log.Warn("NATS Ack", slog.String("error", err.Error()))
	}
}
