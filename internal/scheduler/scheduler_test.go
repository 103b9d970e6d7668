package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New("every now and then", func(context.Context) error { return nil }, nil)
	assert.Error(t, err)
}

func TestScheduler_RunsJob(t *testing.T) {
	var runs atomic.Int32
	ran := make(chan struct{}, 10)

	s, err := New("@every 1s", func(context.Context) error {
		runs.Add(1)
		ran <- struct{}{}
		return errors.New("failures do not stop the schedule")
	}, nil)
	require.NoError(t, err)

	s.Start()
	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(5 * time.Second):
			t.Fatal("job did not run")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{}, 1)
	var cancelled atomic.Bool

	s, err := New("@every 1s", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}, nil)
	require.NoError(t, err)

	s.Start()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.True(t, cancelled.Load())
}
