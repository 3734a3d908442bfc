package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerial_PushDoesNotBlockBehindSlowRunner(t *testing.T) {
	s := NewSerial()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	release := make(chan struct{})
	var order []int
	s.Push(func() { <-release })

	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		for i := 0; i < 10000; i++ {
			i := i
			assert.True(t, s.Push(func() { order = append(order, i) }))
		}
	}()

	select {
	case <-pushed:
	case <-time.After(2 * time.Second):
		t.Fatal("Push blocked while the runner was busy")
	}
	assert.Equal(t, 10000, s.Len())

	done := make(chan struct{})
	s.Push(func() { close(done) })
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("backlog was not drained")
	}
	require.Len(t, order, 10000)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestSerial_PushAfterRunReturns(t *testing.T) {
	s := NewSerial()
	ctx, cancel := context.WithCancel(context.Background())

	finished := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(finished)
	}()
	cancel()
	<-finished

	assert.False(t, s.Push(func() {}))
	assert.Zero(t, s.Len())
}
