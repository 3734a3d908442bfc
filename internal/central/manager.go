package central

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/groutine"
)

// Manager is the central-role connection manager.
//
// A single worker goroutine owns the registry, the per-peripheral negotiation state and
// every call into the Radio. Radio events, UI commands and timer expiries are queued to
// that worker and processed in arrival order.
type Manager struct {
	radio  Radio
	opts   Options
	logger *logrus.Logger

	events   chan Event
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
	group    *groutine.Group

	registry  *Registry
	messages  *MessageLog
	presenter *presenter

	// Worker-owned state
	adapterState AdapterState
	scanning     bool
	retrieving   bool
	scanRetry    *time.Timer
	timers       map[Identity]*time.Timer
}

// NewManager creates a Manager driving radio and reporting to observer.
// A nil observer discards notifications; a nil logger gets a default one.
func NewManager(radio Radio, observer Observer, opts Options, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	opts.applyDefaults()

	return &Manager{
		radio:     radio,
		opts:      opts,
		logger:    logger,
		events:    make(chan Event, opts.EventBuffer),
		done:      make(chan struct{}),
		group:     groutine.NewGroup(logger),
		registry:  NewRegistry(),
		messages:  NewMessageLog(),
		presenter: newPresenter(observer, opts.NotifyBuffer, logger),
		timers:    make(map[Identity]*time.Timer),
	}
}

// Start launches the worker and presenter goroutines and opens the radio.
// Cancelling ctx has the same effect as Stop without waiting.
func (m *Manager) Start(ctx context.Context) error {
	if m.radio == nil {
		return errors.New("central: radio is nil")
	}
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("central: manager already started")
	}

	m.logger.WithFields(logrus.Fields{
		"service":        m.opts.ServiceUUID.String(),
		"characteristic": m.opts.CharacteristicUUID.String(),
		"rssi_threshold": m.opts.RSSIThreshold,
	}).Info("Starting central manager")

	m.radio.SetEventSink(m.Post)
	m.group.Go(ctx, "central-presenter", m.presenter.run)
	m.group.Go(ctx, "central-worker", m.run)
	m.radio.Open()
	return nil
}

// Stop tears down every peripheral, stops the worker, drains pending observer
// notifications and closes the radio. It returns ctx.Err() if ctx expires first.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.started.Load() {
		return nil
	}

	select {
	case m.events <- shutdownCommand{}:
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	waited := make(chan struct{})
	go func() {
		m.group.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	var err error
	m.stopOnce.Do(func() {
		if cerr := m.radio.Close(); cerr != nil {
			err = fmt.Errorf("failed to close radio: %w", cerr)
		}
	})
	m.logger.Info("Central manager stopped")
	return err
}

// Done is closed once the worker has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Post queues an event for the worker. It is the EventSink handed to the radio.
// Events posted after the worker exited are discarded.
func (m *Manager) Post(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// RequestSend writes text to id's subscribed characteristic without acknowledgment.
// It is a silent no-op when id has no subscribed characteristic.
func (m *Manager) RequestSend(id Identity, text string) {
	if id == "" {
		return
	}
	m.Post(sendCommand{peripheral: id, text: text})
}

// Broadcast sends text to every subscribed peripheral.
func (m *Manager) Broadcast(text string) {
	m.Post(sendCommand{text: text})
}

// Peripherals returns the latest registry snapshot in discovery order.
func (m *Manager) Peripherals() []PeripheralInfo {
	return m.registry.All()
}

// LastMessage returns the last text received from id.
func (m *Manager) LastMessage(id Identity) (string, bool) {
	return m.messages.Get(id)
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	defer m.presenter.close()

	m.logger.WithField("goroutine", groutine.GetName(ctx)).Debug("Worker started")

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case ev := <-m.events:
			if _, ok := ev.(shutdownCommand); ok {
				m.shutdown()
				return
			}
			m.handle(ev)
		}
	}
}

func (m *Manager) handle(ev Event) {
	switch e := ev.(type) {
	case AdapterStateChanged:
		m.handleAdapterState(e)
	case ConnectedRetrieved:
		m.handleRetrieved(e)
	case AdvertisementObserved:
		m.handleAdvertisement(e)
	case Connected:
		m.handleConnected(e)
	case ConnectFailedEvent:
		m.handleConnectFailed(e)
	case Disconnected:
		m.handleDisconnected(e)
	case ScanStopped:
		m.handleScanStopped(e)
	case ServicesDiscovered:
		m.handleServicesDiscovered(e)
	case CharacteristicsDiscovered:
		m.handleCharacteristicsDiscovered(e)
	case NotifyStateChanged:
		m.handleNotifyStateChanged(e)
	case ValueUpdated:
		m.handleValueUpdated(e)
	case ServicesInvalidated:
		m.handleServicesInvalidated(e)
	case sendCommand:
		m.handleSend(e)
	case stepExpired:
		m.handleStepExpired(e)
	case resumeDiscovery:
		m.scanRetry = nil
		m.startDiscovery()
	default:
		m.logger.WithField("event", fmt.Sprintf("%T", ev)).Warn("Unhandled event")
	}
}

func (m *Manager) shutdown() {
	m.logger.WithField("peripherals", m.registry.Len()).Info("Shutting down, tearing down peripherals")
	m.cleanupAll()
	if m.scanning {
		m.radio.StopScan()
		m.scanning = false
	}
	m.cancelScanRetry()
	for id := range m.timers {
		m.stopTimer(id)
	}
}

func (m *Manager) notifyList() {
	m.presenter.listChanged(m.registry.All())
}

func (m *Manager) peripheralLogger(e *entry) *logrus.Entry {
	return m.logger.WithFields(logrus.Fields{
		"peripheral": e.info.ID,
		"name":       e.info.Name,
		"state":      e.info.State,
	})
}
