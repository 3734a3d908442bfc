package central

import (
	"fmt"
	"unicode/utf8"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
)

// ----------------------------
// GATT Negotiation State Machine
// ----------------------------

// beginNegotiation starts (or restarts) discovery of the transfer service on a live link.
func (m *Manager) beginNegotiation(e *entry) {
	e.transfer = nil
	e.notifying = false
	e.rearming = false
	e.pendingDiscoveries = 0

	m.transition(e, ServicesDiscovering)
	m.radio.DiscoverServices(e.info.ID, []ble.UUID{m.opts.ServiceUUID})
}

// expect returns the entry for id only if it is in state; anything else is a stale or
// out-of-order event and is dropped.
func (m *Manager) expect(id Identity, state ConnectionState, what string) *entry {
	e := m.registry.get(id)
	if e == nil {
		m.logger.WithField("peripheral", id).Debugf("Ignoring %s for unknown peripheral", what)
		return nil
	}
	if e.info.State != state {
		m.peripheralLogger(e).Debugf("Ignoring %s, expected state %s", what, state)
		return nil
	}
	return e
}

func (m *Manager) handleServicesDiscovered(ev ServicesDiscovered) {
	e := m.expect(ev.Peripheral, ServicesDiscovering, "services result")
	if e == nil {
		return
	}
	if ev.Err != nil {
		m.fail(e, ServiceDiscoveryFailed, ev.Err)
		return
	}

	var matching []ServiceRef
	for _, svc := range ev.Services {
		if svc.UUID.Equal(m.opts.ServiceUUID) {
			matching = append(matching, svc)
		}
	}
	if len(matching) == 0 {
		m.fail(e, ServiceDiscoveryFailed, fmt.Errorf("service %s: %w", m.opts.ServiceUUID, ErrNotFound))
		return
	}

	e.pendingDiscoveries = len(matching)
	m.transition(e, CharacteristicDiscovering)
	for _, svc := range matching {
		m.radio.DiscoverCharacteristics(e.info.ID, svc, []ble.UUID{m.opts.CharacteristicUUID})
	}
}

func (m *Manager) handleCharacteristicsDiscovered(ev CharacteristicsDiscovered) {
	e := m.expect(ev.Peripheral, CharacteristicDiscovering, "characteristics result")
	if e == nil {
		return
	}
	e.pendingDiscoveries--

	if ev.Err != nil {
		m.fail(e, CharacteristicDiscoveryFailed, ev.Err)
		return
	}

	// First match wins; surplus matches are ignored.
	for _, char := range ev.Characteristics {
		if !char.UUID.Equal(m.opts.CharacteristicUUID) {
			continue
		}
		ref := char
		e.transfer = &ref
		m.transition(e, Subscribing)
		m.radio.SetNotify(e.info.ID, ref, true)
		return
	}

	if e.pendingDiscoveries <= 0 {
		m.fail(e, CharacteristicDiscoveryFailed, fmt.Errorf("characteristic %s: %w", m.opts.CharacteristicUUID, ErrNotFound))
	}
}

func (m *Manager) handleNotifyStateChanged(ev NotifyStateChanged) {
	e := m.registry.get(ev.Peripheral)
	if e == nil || e.transfer == nil || !e.transfer.Same(ev.Characteristic) {
		m.logger.WithField("peripheral", ev.Peripheral).Debug("Ignoring notify state change for untracked characteristic")
		return
	}
	e.rearming = false

	if ev.Err != nil {
		err := newError(NotificationStateChangeFailed, e.info.ID, ev.Err)
		m.peripheralLogger(e).WithError(ev.Err).Warn("Notification state change failed")
		m.presenter.reportError(e.info.ID, err)
		return
	}

	e.notifying = ev.Enabled
	if ev.Enabled {
		if e.info.State == Subscribing {
			m.transition(e, Subscribed)
			m.peripheralLogger(e).Info("Subscribed, ready to send")
			m.presenter.readyToSend(e.info.ID)
		}
		return
	}

	m.peripheralLogger(e).Info("Notifications stopped, disconnecting")
	m.cleanup(e.info.ID)
}

func (m *Manager) handleValueUpdated(ev ValueUpdated) {
	e := m.registry.get(ev.Peripheral)
	if e == nil || e.info.State != Subscribed || e.transfer == nil || !e.transfer.Same(ev.Characteristic) {
		m.logger.WithField("peripheral", ev.Peripheral).Debug("Ignoring value for unsubscribed characteristic")
		return
	}
	if ev.Err != nil {
		m.peripheralLogger(e).WithError(ev.Err).Debug("Value update carried an error, dropped")
		return
	}

	if !utf8.Valid(ev.Value) {
		err := newError(DecodeFailed, e.info.ID, fmt.Errorf("%d bytes of invalid UTF-8", len(ev.Value)))
		m.peripheralLogger(e).WithError(err).Warn("Dropping undecodable notification")
		return
	}

	text := string(ev.Value)
	m.messages.Set(e.info.ID, text)
	m.peripheralLogger(e).WithField("bytes", len(ev.Value)).Debug("Message received")
	m.presenter.messageReceived(e.info.ID, text)

	if m.opts.RearmNotifications && !e.rearming {
		e.rearming = true
		m.radio.SetNotify(e.info.ID, *e.transfer, true)
	}
}

func (m *Manager) handleServicesInvalidated(ev ServicesInvalidated) {
	e := m.expect(ev.Peripheral, Subscribed, "service invalidation")
	if e == nil {
		return
	}

	for _, uuid := range ev.Services {
		if uuid.Equal(m.opts.ServiceUUID) {
			m.peripheralLogger(e).Info("Transfer service invalidated, rediscovering")
			m.beginNegotiation(e)
			return
		}
	}
}

func (m *Manager) handleSend(cmd sendCommand) {
	if cmd.peripheral != "" {
		m.send(cmd.peripheral, cmd.text, true)
		return
	}
	for _, id := range m.registry.ids() {
		m.send(id, cmd.text, false)
	}
}

func (m *Manager) send(id Identity, text string, explicit bool) {
	e := m.registry.get(id)
	if e == nil || e.info.State != Subscribed || e.transfer == nil {
		if explicit {
			m.logger.WithField("peripheral", id).Debug("No subscribed characteristic, send dropped")
		}
		return
	}

	m.peripheralLogger(e).WithFields(logrus.Fields{
		"bytes": len(text),
	}).Debug("Sending")
	m.radio.Write(id, *e.transfer, []byte(text), false)
}

// fail reports a per-peripheral error and routes the peripheral to cleanup.
func (m *Manager) fail(e *entry, kind ErrorKind, cause error) {
	err := newError(kind, e.info.ID, cause)
	m.peripheralLogger(e).WithError(cause).Warn(string(kind))
	m.presenter.reportError(e.info.ID, err)
	m.cleanup(e.info.ID)
}
