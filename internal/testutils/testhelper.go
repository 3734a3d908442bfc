package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/stretchr/testify/require"
)

const (
	// WaitTimeout bounds every Eventually in the test helpers.
	WaitTimeout = 2 * time.Second
	// PollInterval is the Eventually tick.
	PollInterval = 5 * time.Millisecond
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// StartManager starts a Manager over radio and stops it when the test ends.
func (h *TestHelper) StartManager(radio central.Radio, observer central.Observer, opts central.Options) *central.Manager {
	h.T.Helper()

	m := central.NewManager(radio, observer, opts, h.Logger)
	require.NoError(h.T, m.Start(context.Background()))

	h.T.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), WaitTimeout)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m
}

// WaitForCalls waits until radio recorded at least n calls of op for id.
func (h *TestHelper) WaitForCalls(radio *FakeRadio, op string, id central.Identity, n int) []Call {
	h.T.Helper()

	require.Eventually(h.T, func() bool {
		return len(radio.CallsOf(op, id)) >= n
	}, WaitTimeout, PollInterval, "expected %d %s call(s) for %q, got %v", n, op, id, radio.Calls())
	return radio.CallsOf(op, id)
}

// WaitForState waits until the manager reports id in state.
func (h *TestHelper) WaitForState(m *central.Manager, id central.Identity, state central.ConnectionState) {
	h.T.Helper()

	require.Eventually(h.T, func() bool {
		for _, p := range m.Peripherals() {
			if p.ID == id {
				return p.State == state
			}
		}
		return false
	}, WaitTimeout, PollInterval, "peripheral %q never reached %s", id, state)
}

// WaitForAbsent waits until id is no longer registered.
func (h *TestHelper) WaitForAbsent(m *central.Manager, id central.Identity) {
	h.T.Helper()

	require.Eventually(h.T, func() bool {
		for _, p := range m.Peripherals() {
			if p.ID == id {
				return false
			}
		}
		return true
	}, WaitTimeout, PollInterval, "peripheral %q still registered", id)
}

// Settle gives the worker time to process queued events, for asserting that
// something did NOT happen.
func Settle() {
	time.Sleep(50 * time.Millisecond)
}
