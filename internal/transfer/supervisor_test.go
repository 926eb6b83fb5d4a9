package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_CloseWaitsForWork(t *testing.T) {
	s := NewSupervisor(testLogger())

	release := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, s.Go("slow", func() {
		<-release
		close(finished)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Close(ctx))

	close(release)
	require.NoError(t, s.Close(context.Background()))
	<-finished

	assert.ErrorIs(t, s.Go("late", func() {}), domain.ErrShuttingDown)
	_, err := s.Track()
	assert.ErrorIs(t, err, domain.ErrShuttingDown)
}

func TestSupervisor_RecoversPanics(t *testing.T) {
	s := NewSupervisor(testLogger())

	require.NoError(t, s.Go("boom", func() { panic("boom") }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Close(ctx))
}

func TestSupervisor_TrackDoneIsIdempotent(t *testing.T) {
	s := NewSupervisor(testLogger())

	done, err := s.Track()
	require.NoError(t, err)
	done()
	done()

	assert.NoError(t, s.Close(context.Background()))
}
