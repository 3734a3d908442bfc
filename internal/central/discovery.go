package central

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ----------------------------
// Discovery & Connect Controller
// ----------------------------

func (m *Manager) handleAdapterState(ev AdapterStateChanged) {
	prev := m.adapterState
	m.adapterState = ev.State

	m.logger.WithFields(logrus.Fields{
		"from": prev,
		"to":   ev.State,
	}).Info("Adapter state changed")

	if ev.State == AdapterPoweredOn {
		m.startDiscovery()
		return
	}

	if m.scanning {
		m.radio.StopScan()
	}
	m.scanning = false
	m.retrieving = false
	m.cancelScanRetry()

	// Links do not survive the adapter going away.
	if prev == AdapterPoweredOn {
		m.dropAll()
	}

	if ev.State.unavailable() {
		m.presenter.reportError("", newError(AdapterUnavailable, "", fmt.Errorf("adapter is %s", ev.State)))
	}
}

// startDiscovery resumes discovery unless it is already running or the adapter is down.
// Platform-connected peripherals are reused first; scanning starts only when none is new.
func (m *Manager) startDiscovery() {
	if m.adapterState != AdapterPoweredOn {
		m.logger.WithField("adapter", m.adapterState).Debug("Discovery suspended, adapter not powered on")
		return
	}
	if m.scanning || m.retrieving {
		return
	}

	m.retrieving = true
	m.radio.RetrieveConnected(m.opts.ServiceUUID)
}

// handleScanStopped restarts discovery after a scan the radio ended on its own.
func (m *Manager) handleScanStopped(ev ScanStopped) {
	if !m.scanning {
		m.logger.Debug("Ignoring scan stop, no scan running")
		return
	}
	m.scanning = false

	m.logger.WithError(ev.Err).WithField("retry_in", m.opts.ScanRetryDelay).Warn("Scan stopped unexpectedly")
	if m.scanRetry != nil {
		return
	}
	m.scanRetry = time.AfterFunc(m.opts.ScanRetryDelay, func() {
		m.Post(resumeDiscovery{})
	})
}

func (m *Manager) cancelScanRetry() {
	if m.scanRetry != nil {
		m.scanRetry.Stop()
		m.scanRetry = nil
	}
}

func (m *Manager) handleRetrieved(ev ConnectedRetrieved) {
	m.retrieving = false
	if m.adapterState != AdapterPoweredOn || m.scanning {
		return
	}
	if ev.Err != nil {
		m.logger.WithError(ev.Err).Warn("Failed to retrieve connected peripherals")
	}

	reused := 0
	for _, p := range ev.Peripherals {
		if m.registry.Contains(p.ID) || !m.hasCapacity() {
			continue
		}
		m.registry.Upsert(PeripheralInfo{ID: p.ID, Name: p.Name, RSSI: p.RSSI, State: Discovered})
		m.connect(m.registry.get(p.ID))
		reused++
	}

	if reused > 0 {
		m.logger.WithField("count", reused).Info("Reusing platform-connected peripherals, scan skipped")
		m.notifyList()
		return
	}

	m.logger.WithFields(logrus.Fields{
		"service":          m.opts.ServiceUUID.String(),
		"allow_duplicates": m.opts.AllowDuplicates,
	}).Info("Scanning for peripherals")
	m.radio.Scan(m.opts.ServiceUUID, m.opts.AllowDuplicates)
	m.scanning = true
}

func (m *Manager) handleAdvertisement(ev AdvertisementObserved) {
	if m.adapterState != AdapterPoweredOn {
		return
	}

	log := m.logger.WithFields(logrus.Fields{
		"peripheral": ev.Peripheral,
		"name":       ev.Name,
		"rssi":       ev.RSSI,
	})

	if ev.RSSI < m.opts.RSSIThreshold {
		log.Debug("Advertisement below RSSI threshold, ignored")
		return
	}

	if m.registry.Contains(ev.Peripheral) {
		m.registry.Observe(PeripheralInfo{ID: ev.Peripheral, Name: ev.Name, RSSI: ev.RSSI})
		return
	}

	if !m.hasCapacity() {
		log.WithField("max_connections", m.opts.MaxConnections).Debug("Connection limit reached, advertisement ignored")
		return
	}

	m.registry.Observe(PeripheralInfo{ID: ev.Peripheral, Name: ev.Name, RSSI: ev.RSSI, State: Discovered})
	log.Info("Discovered peripheral")
	m.connect(m.registry.get(ev.Peripheral))
	m.notifyList()
}

func (m *Manager) connect(e *entry) {
	m.transition(e, Connecting)
	m.radio.Connect(e.info.ID)
}

func (m *Manager) handleConnected(ev Connected) {
	m.registry.Upsert(PeripheralInfo{ID: ev.Peripheral, State: Connecting})
	e := m.registry.get(ev.Peripheral)

	if e.info.State != Discovered && e.info.State != Connecting {
		m.peripheralLogger(e).Debug("Duplicate connect event ignored")
		return
	}

	m.peripheralLogger(e).Info("Connected")
	m.notifyList()
	m.beginNegotiation(e)
	m.startDiscovery()
}

func (m *Manager) handleConnectFailed(ev ConnectFailedEvent) {
	err := newError(ConnectFailed, ev.Peripheral, ev.Err)
	m.logger.WithField("peripheral", ev.Peripheral).WithError(ev.Err).Warn("Failed to connect")
	m.presenter.reportError(ev.Peripheral, err)

	m.cleanup(ev.Peripheral)
	m.startDiscovery()
}

func (m *Manager) handleDisconnected(ev Disconnected) {
	log := m.logger.WithField("peripheral", ev.Peripheral)
	if ev.Err != nil {
		log.WithError(ev.Err).Info("Disconnected with error")
	} else {
		log.Info("Disconnected")
	}

	m.forget(ev.Peripheral)
	m.startDiscovery()
}

func (m *Manager) hasCapacity() bool {
	return m.opts.MaxConnections <= 0 || m.registry.Len() < m.opts.MaxConnections
}
