package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_RunsAndCompletes(t *testing.T) {
	ran := make(chan struct{})
	h := Start(context.Background(), func(ctx context.Context) {
		close(ran)
	})

	require.NoError(t, h.Wait(context.Background()))
	<-ran
	assert.False(t, h.Cancelled())
}

func TestCancel_PropagatesToContext(t *testing.T) {
	started := make(chan struct{})
	h := Start(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})

	<-started
	h.Cancel()

	require.NoError(t, h.Wait(context.Background()))
	assert.True(t, h.Cancelled())
}

func TestWait_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	h := Start(context.Background(), func(ctx context.Context) {
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
}

func TestNilHandle(t *testing.T) {
	var h *Handle
	h.Cancel()
	assert.False(t, h.Cancelled())
	assert.NoError(t, h.Wait(context.Background()))
	<-h.Done()
}
