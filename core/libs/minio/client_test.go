package mio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, Config{Bucket: "clips"})
	assert.ErrorContains(t, err, "empty MinIO endpoint")

	_, err = NewClient(ctx, Config{Endpoint: "localhost:9000"})
	assert.ErrorContains(t, err, "empty MinIO bucket")
}

func TestNewClientStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(ctx, Config{Endpoint: "localhost:9000", Bucket: "clips"})
	assert.ErrorContains(t, err, "context canceled before MinIO init")
}
