package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

const headerJobID = "Audioclip-Job-Id"

type jetStreamQueue struct {
	js      nats.JetStreamContext
	subject string
}

func NewJetStream(js nats.JetStreamContext, subject string) *jetStreamQueue {
	return &jetStreamQueue{
		js:      js,
		subject: subject,
	}
}

// Dispatch publishes the job id once. The message id lets the stream drop a
// duplicate publish of the same job inside its dedup window.
func (q *jetStreamQueue) Dispatch(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("empty jobID")
	}

	msg := &nats.Msg{
		Subject: q.subject,
		Data:    []byte(jobID),
		Header:  nats.Header{},
	}
	msg.Header.Set(headerJobID, jobID)
	msg.Header.Set(nats.MsgIdHdr, jobID)

	ack, err := q.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("dispatch job %s: publish failed: %w", jobID, err)
	}

	slog.Debug(
		"job dispatched",
		slog.String("job_id", jobID),
		slog.String("subject", q.subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
		slog.Bool("duplicate", ack.Duplicate),
	)

	return nil
}
