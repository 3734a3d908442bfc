package central

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenter_DeliversInOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, s)
	}

	p := newPresenter(ObserverFuncs{
		PeripheralListChanged: func(list []PeripheralInfo) { record("list") },
		MessageReceived:       func(id Identity, text string) { record("msg:" + text) },
		ReadyToSend:           func(id Identity) { record("ready:" + string(id)) },
		Error:                 func(id Identity, err error) { record("err:" + err.Error()) },
	}, 8, logrus.New())

	done := make(chan struct{})
	go func() {
		p.run(context.Background())
		close(done)
	}()

	p.listChanged(nil)
	p.readyToSend("A")
	p.messageReceived("A", "hello")
	p.reportError("A", errors.New("boom"))
	p.close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("presenter did not drain")
	}

	assert.Equal(t, []string{"list", "ready:A", "msg:hello", "err:boom"}, calls)
}

func TestPresenter_SlowObserverDropsOldest(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var (
		mu       sync.Mutex
		received []string
	)

	p := newPresenter(ObserverFuncs{
		MessageReceived: func(id Identity, text string) {
			if text == "m1" {
				close(started)
				<-release
			}
			mu.Lock()
			received = append(received, text)
			mu.Unlock()
		},
	}, 2, logrus.New())

	done := make(chan struct{})
	go func() {
		p.run(context.Background())
		close(done)
	}()

	p.messageReceived("A", "m1")
	<-started

	// The observer is stuck on m1; posting never blocks.
	for _, text := range []string{"m2", "m3", "m4", "m5"} {
		p.messageReceived("A", text)
	}
	close(release)
	p.close()
	<-done

	assert.Equal(t, []string{"m1", "m4", "m5"}, received)
	assert.Equal(t, int64(2), p.queue.Metrics().Overwritten)
}

func TestPresenter_NilObserver(t *testing.T) {
	p := newPresenter(nil, 4, logrus.New())
	p.listChanged([]PeripheralInfo{{ID: "A"}})
	p.reportError("", ErrAdapterUnavailable)
	p.close()

	require.NotPanics(t, func() { p.run(context.Background()) })
}
