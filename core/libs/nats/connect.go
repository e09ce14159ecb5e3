package natsq

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

type Config struct {
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

func NewConnect(url string, cfg Config) (*nats.Conn, error) {
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	nc, err := nats.Connect(url,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return nc, nil
}

// NewJetStream returns a JetStream context and makes sure the stream exists.
// An existing stream is updated to cfg.
func NewJetStream(nc *nats.Conn, cfg *nats.StreamConfig) (nats.JetStreamContext, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("JetStream: %w", err)
	}

	_, err = js.AddStream(cfg)
	if err == nil {
		return js, nil
	}
	if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("JetStream AddStream: %w", err)
	}

	if _, err := js.UpdateStream(cfg); err != nil {
		slog.Warn("JetStream UpdateStream",
			slog.String("stream", cfg.Name),
			slog.String("error", err.Error()),
		)
	}

	return js, nil
}

// WorkQueueStream is the stream every service declares for the job subject.
// Messages leave the stream once acked; dedup drops repeated publishes of the
// same message id.
func WorkQueueStream(name, subject string, maxAge time.Duration) *nats.StreamConfig {
	dup := 2 * time.Minute
	if maxAge > 0 && maxAge < dup {
		dup = maxAge
	}
	return &nats.StreamConfig{
		Name:       name,
		Subjects:   []string{subject},
		Storage:    nats.FileStorage,
		Retention:  nats.WorkQueuePolicy,
		Replicas:   1,
		MaxAge:     maxAge,
		Duplicates: dup,
	}
}
