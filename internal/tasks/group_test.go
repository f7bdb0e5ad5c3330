package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupTaskDeregistersOnCompletion(t *testing.T) {
	g := NewGroup(context.Background())
	release := make(chan struct{})
	task := g.Go(func(ctx context.Context) error {
		<-release
		return errors.New("finished")
	})

	assert.Equal(t, 1, g.Len())
	close(release)
	assert.EqualError(t, task.Wait(), "finished")
	assert.Equal(t, 0, g.Len())
}

func TestGroupCancel(t *testing.T) {
	g := NewGroup(context.Background())
	task := g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := g.Cancel(task)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, g.Len())

	// cancelling a finished task is harmless
	assert.ErrorIs(t, g.Cancel(task), context.Canceled)
}

func TestGroupCancelAll(t *testing.T) {
	g := NewGroup(context.Background())
	var stopped atomic.Int32
	for i := 0; i < 5; i++ {
		g.Go(func(ctx context.Context) error {
			<-ctx.Done()
			stopped.Add(1)
			return nil
		})
	}
	require.Equal(t, 5, g.Len())

	g.CancelAll(true)
	assert.Equal(t, int32(5), stopped.Load())
	assert.Equal(t, 0, g.Len())

	// the group stays usable
	task := g.Go(func(ctx context.Context) error { return nil })
	assert.NoError(t, task.Wait())
}

func TestGroupWait(t *testing.T) {
	g := NewGroup(context.Background())
	var finished atomic.Int32
	for i := 0; i < 3; i++ {
		g.Go(func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			finished.Add(1)
			return nil
		})
	}
	g.Wait()
	assert.Equal(t, int32(3), finished.Load())
}

func TestGroupParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGroup(ctx)
	task := g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task not cancelled by parent context")
	}
}
