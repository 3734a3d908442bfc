package central

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ----------------------------
// Cleanup/Teardown Coordinator
// ----------------------------

// cleanup is the single teardown path for a peripheral. It unsubscribes when a
// notifying transfer characteristic exists, then always requests a disconnect.
// Entries whose link never came up are forgotten at once; the rest wait in
// Disconnecting for the radio's Disconnected event.
func (m *Manager) cleanup(id Identity) {
	m.stopTimer(id)

	e := m.registry.get(id)
	if e == nil {
		m.radio.Disconnect(id)
		return
	}
	if e.info.State == Disconnecting {
		m.peripheralLogger(e).Debug("Cleanup already in progress")
		return
	}

	log := m.peripheralLogger(e)
	if e.transfer != nil && e.notifying {
		log.Debug("Unsubscribing before disconnect")
		m.radio.SetNotify(id, *e.transfer, false)
	}
	m.radio.Disconnect(id)
	log.Info("Disconnect requested")

	linkUp := e.info.State.linkUp()
	e.transfer = nil
	e.notifying = false
	e.rearming = false

	if !linkUp {
		m.forget(id)
		return
	}
	m.transition(e, Disconnecting)
}

// cleanupAll runs cleanup for every registered peripheral.
func (m *Manager) cleanupAll() {
	for _, id := range m.registry.ids() {
		m.cleanup(id)
	}
}

// forget removes id from the registry and the message log.
func (m *Manager) forget(id Identity) {
	m.stopTimer(id)
	removed := m.registry.Remove(id)
	m.messages.Remove(id)
	if removed {
		m.notifyList()
	}
}

// dropAll forgets every peripheral without radio traffic.
func (m *Manager) dropAll() {
	ids := m.registry.ids()
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		m.stopTimer(id)
		m.registry.Remove(id)
		m.messages.Remove(id)
	}
	m.logger.WithField("count", len(ids)).Warn("Adapter lost, dropped all peripherals")
	m.notifyList()
}

// ----------------------------
// State transitions and step timeouts
// ----------------------------

func (m *Manager) transition(e *entry, state ConnectionState) {
	from := e.info.State
	m.registry.setState(e, state)
	m.logger.WithFields(logrus.Fields{
		"peripheral": e.info.ID,
		"from":       from,
		"to":         state,
	}).Debug("State transition")
	m.armTimer(e)
}

func (m *Manager) stepTimeout(state ConnectionState) time.Duration {
	switch state {
	case Connecting:
		return m.opts.ConnectTimeout
	case ServicesDiscovering, CharacteristicDiscovering, Subscribing, Disconnecting:
		return m.opts.StepTimeout
	default:
		return 0
	}
}

func (m *Manager) armTimer(e *entry) {
	id := e.info.ID
	m.stopTimer(id)

	timeout := m.stepTimeout(e.info.State)
	if timeout <= 0 {
		return
	}
	generation := e.generation
	m.timers[id] = time.AfterFunc(timeout, func() {
		m.Post(stepExpired{peripheral: id, generation: generation})
	})
}

func (m *Manager) stopTimer(id Identity) {
	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) handleStepExpired(ev stepExpired) {
	e := m.registry.get(ev.peripheral)
	if e == nil || e.generation != ev.generation {
		return
	}
	delete(m.timers, ev.peripheral)

	cause := fmt.Errorf("%s: %w", e.info.State, ErrTimeout)
	switch e.info.State {
	case Connecting:
		m.fail(e, ConnectFailed, cause)
		m.startDiscovery()
	case ServicesDiscovering:
		m.fail(e, ServiceDiscoveryFailed, cause)
	case CharacteristicDiscovering:
		m.fail(e, CharacteristicDiscoveryFailed, cause)
	case Subscribing:
		m.fail(e, NotificationStateChangeFailed, cause)
	case Disconnecting:
		m.peripheralLogger(e).Warn("Disconnect not confirmed in time, dropping peripheral")
		m.forget(e.info.ID)
		m.startDiscovery()
	}
}
