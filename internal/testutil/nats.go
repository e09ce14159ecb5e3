// Package testutil starts the embedded servers used by package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
)

// RunJetStream starts an in-process NATS server with JetStream enabled and
// returns a connection to it. Both are closed when the test ends.
func RunJetStream(t testing.TB) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()

	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL(), nats.Timeout(5*time.Second))
	if err != nil {
		t.Fatalf("connect to embedded nats: %v", err)
	}
	t.Cleanup(nc.Close)

	return srv, nc
}

// StreamConfig is a file-less stream for a single subject.
func StreamConfig(name, subject string) *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:       name,
		Subjects:   []string{subject},
		Storage:    nats.MemoryStorage,
		Retention:  nats.WorkQueuePolicy,
		Duplicates: time.Minute,
	}
}
