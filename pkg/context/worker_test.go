package context

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerSendSyncRuns(t *testing.T) {
	w := NewWorker("test")
	defer w.Stop()

	var ran bool
	require.NoError(t, w.SendSync(func() { ran = true }, time.Second))
	assert.True(t, ran)
}

func TestWorkerSendAsyncUrgentPreemptsNormal(t *testing.T) {
	w := NewWorker("test")
	defer w.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	w.SendAsync(func() {
		close(started)
		<-block
	})
	<-started

	var order []int
	w.SendAsync(func() { order = append(order, 1) })
	w.SendAsyncUrgent(func() { order = append(order, 2) })
	close(block)

	done := make(chan struct{})
	w.SendAsync(func() { close(done) })
	<-done

	require.Len(t, order, 2)
	assert.Equal(t, 2, order[0])
}

func TestWorkerDiscardDropsQueuedJobs(t *testing.T) {
	w := NewWorker("test")
	defer w.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	w.SendAsync(func() {
		close(started)
		<-block
	})
	<-started

	var ran bool
	w.SendAsync(func() { ran = true })
	w.Discard()
	close(block)

	var ran2 bool
	done := make(chan struct{})
	w.SendAsync(func() { ran2 = true; close(done) })
	<-done

	assert.False(t, ran)
	assert.True(t, ran2)
}

func TestWorkerStopFlushesPendingJobs(t *testing.T) {
	w := NewWorker("test")
	var ran bool
	w.SendAsync(func() { ran = true })
	w.Stop()
	assert.True(t, ran)
}
