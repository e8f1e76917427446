package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinCast/pkg/logger"
)

type recordingJob struct {
	mu       sync.Mutex
	payloads []interface{}
}

func (j *recordingJob) Name() string { return "recording" }

func (j *recordingJob) Type() string { return "record" }

func (j *recordingJob) Handle(_ context.Context, payload interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.payloads = append(j.payloads, payload)
	return nil
}

func (j *recordingJob) seen() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.payloads)
}

func inlineTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func TestInlineQueue_DispatchesToRegisteredJob(t *testing.T) {
	job := &recordingJob{}
	q := NewInlineQueue(inlineTestLogger(t), []Job{job})
	require.NoError(t, q.Start())

	require.NoError(t, q.PublishMessage(context.Background(), "record", "hello"))
	require.NoError(t, q.Stop(context.Background()))

	assert.Equal(t, 1, job.seen())
}

func TestInlineQueue_UnknownTypeRejected(t *testing.T) {
	q := NewInlineQueue(inlineTestLogger(t), []Job{&recordingJob{}})

	err := q.PublishMessage(context.Background(), "unknown", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job registered")
}

func TestInlineQueue_StopRefusesNewPublishes(t *testing.T) {
	job := &recordingJob{}
	q := NewInlineQueue(inlineTestLogger(t), []Job{job})
	require.NoError(t, q.Stop(context.Background()))

	err := q.PublishMessage(context.Background(), "record", nil)
	require.Error(t, err)
	assert.Equal(t, 0, job.seen())
}

func TestInlineQueue_StopWaitsForInFlightJobs(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	job := &blockingJob{started: started, release: release}
	q := NewInlineQueue(inlineTestLogger(t), []Job{job})

	require.NoError(t, q.PublishMessage(context.Background(), "block", nil))
	<-started

	done := make(chan error, 1)
	go func() { done <- q.Stop(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Stop returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
}

type blockingJob struct {
	started chan struct{}
	release chan struct{}
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Type() string { return "block" }

func (j *blockingJob) Handle(context.Context, interface{}) error {
	close(j.started)
	<-j.release
	return nil
}
