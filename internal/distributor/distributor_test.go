package distributor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/audioclip/internal/domain"
	natsq "github.com/you-humble/audioclip/core/libs/nats"
	"github.com/you-humble/audioclip/internal/infra/queue"
	"github.com/you-humble/audioclip/internal/testutil"
)

const (
	testStream  = "AUDIO_CLIPS_TEST"
	testSubject = "clips.jobs"
)

type recordingProcessor struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{calls: map[string]int{}, fail: map[string]error{}}
}

func (p *recordingProcessor) Process(_ context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls[jobID]++
	if err, ok := p.fail[jobID]; ok {
		delete(p.fail, jobID)
		return err
	}
	return nil
}

func (p *recordingProcessor) count(jobID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[jobID]
}

func TestDistributorProcessesDispatchedJobs(t *testing.T) {
	_, nc := testutil.RunJetStream(t)
	js, err := natsq.NewJetStream(nc, testutil.StreamConfig(testStream, testSubject))
	require.NoError(t, err)

	proc := newRecordingProcessor()
	proc.fail["flaky"] = errors.New("redis timeout")
	proc.fail["gone"] = domain.ErrNotFound

	ctx, cancel := context.WithCancel(context.Background())
	d := New(Config{
		Stream:     testStream,
		Subject:    testSubject,
		Size:       2,
		AckWait:    30 * time.Second,
		RetryDelay: 50 * time.Millisecond,
	}, js, proc)
	require.NoError(t, d.Run(ctx))

	q := queue.NewJetStream(js, testSubject)
	for _, id := range []string{"a", "b", "flaky", "gone"} {
		require.NoError(t, q.Dispatch(ctx, id))
	}

	require.Eventually(t, func() bool {
		return proc.count("a") == 1 && proc.count("b") == 1 && proc.count("flaky") == 2 && proc.count("gone") == 1
	}, 10*time.Second, 20*time.Millisecond)

	// a duplicate publish of the same job inside the dedup window is dropped
	require.NoError(t, q.Dispatch(ctx, "a"))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, proc.count("a"))
	assert.Equal(t, 1, proc.count("gone"), "not-found jobs are acked, not redelivered")

	cancel()
	d.Stop(ctx)
}

func TestDispatchRejectsEmptyID(t *testing.T) {
	_, nc := testutil.RunJetStream(t)
	js, err := natsq.NewJetStream(nc, testutil.StreamConfig(testStream, testSubject))
	require.NoError(t, err)

	assert.Error(t, queue.NewJetStream(js, testSubject).Dispatch(context.Background(), ""))
}
