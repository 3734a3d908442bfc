// Package goble implements central.Radio on top of github.com/go-ble/ble
// (CoreBluetooth on macOS, raw HCI on Linux).
package goble

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/groutine"
)

// closeTimeout bounds how long Close waits for connections to tear down.
const closeTimeout = 3 * time.Second

// Radio is a go-ble backed central.Radio.
//
// Each connection runs its own operation goroutine, so requests and events of one
// peripheral stay ordered while different peripherals progress independently.
type Radio struct {
	logger *logrus.Logger
	open   func() (adapter, error)
	group  *groutine.Group

	mu      sync.RWMutex
	sink    central.EventSink
	adapter adapter
	scan    *scanSession

	conns *hashmap.Map[central.Identity, *conn]
	// connsMu orders replacing a closing connection against its own removal.
	connsMu sync.Mutex

	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

type scanSession struct {
	cancel context.CancelFunc
}

var _ central.Radio = (*Radio)(nil)

// New creates a Radio. The device is not opened until Open.
func New(logger *logrus.Logger) *Radio {
	return newRadio(openDevice, logger)
}

func newRadio(open func() (adapter, error), logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Radio{
		logger: logger,
		open:   open,
		group:  groutine.NewGroup(logger),
		conns:  hashmap.New[central.Identity, *conn](),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (r *Radio) SetEventSink(sink central.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

func (r *Radio) emit(ev central.Event) {
	if r.closed.Load() {
		return
	}
	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()
	if sink != nil {
		sink(ev)
	}
}

// async emits ev from a fresh goroutine; request methods never call the sink directly.
func (r *Radio) async(name string, ev central.Event) {
	r.group.Go(r.ctx, name, func(context.Context) {
		r.emit(ev)
	})
}

// Open creates the platform device and reports the resulting adapter state.
func (r *Radio) Open() {
	r.group.Go(r.ctx, "goble-open", func(ctx context.Context) {
		a, err := r.open()
		if err != nil {
			state := adapterStateFor(err)
			r.logger.WithError(err).WithField("state", state).Error("Failed to open BLE device")
			r.emit(central.AdapterStateChanged{State: state})
			return
		}

		r.mu.Lock()
		r.adapter = a
		r.mu.Unlock()

		r.logger.Info("BLE device opened")
		r.emit(central.AdapterStateChanged{State: central.AdapterPoweredOn})
	})
}

// Close stops scanning, tears down every connection and releases the device.
func (r *Radio) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.StopScan()

	var pending []*conn
	r.conns.Range(func(_ central.Identity, c *conn) bool {
		c.requestClose()
		pending = append(pending, c)
		return true
	})

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	for _, c := range pending {
		select {
		case <-c.done:
		case <-ctx.Done():
			r.logger.WithField("peripheral", c.id).Warn("Connection did not close in time, abandoning")
			c.finish()
		}
	}

	r.cancel()

	r.mu.Lock()
	a := r.adapter
	r.adapter = nil
	r.mu.Unlock()

	var err error
	if a != nil {
		err = NormalizeError(a.Stop())
	}
	r.group.Wait()
	return err
}

// Scan starts an unfiltered go-ble scan and reports only advertisements listing service.
func (r *Radio) Scan(service ble.UUID, allowDuplicates bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.adapter == nil {
		r.logger.Warn("Scan requested before the adapter is open")
		return
	}
	if r.scan != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.ctx)
	session := &scanSession{cancel: cancel}
	r.scan = session
	a := r.adapter

	r.group.Go(ctx, "goble-scan", func(ctx context.Context) {
		err := a.Scan(ctx, allowDuplicates, func(adv advertisement) {
			if !adv.advertises(service) {
				return
			}
			r.emit(central.AdvertisementObserved{
				Peripheral: central.Identity(adv.addr),
				Name:       adv.name,
				RSSI:       adv.rssi,
			})
		})

		r.mu.Lock()
		if r.scan == session {
			r.scan = nil
		}
		r.mu.Unlock()

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			r.logger.Debug("Scan stopped")
			return
		}
		if err == nil {
			r.logger.Warn("Scan ended by the platform")
			r.emit(central.ScanStopped{})
			return
		}

		err = NormalizeError(err)
		if errors.Is(err, ErrBluetoothOff) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrUnsupported) {
			r.logger.WithError(err).Warn("Scan aborted by adapter state")
			r.emit(central.AdapterStateChanged{State: adapterStateFor(err)})
			return
		}
		r.logger.WithError(err).Error("Scan failed")
		r.emit(central.ScanStopped{Err: err})
	})
}

func (r *Radio) StopScan() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scan != nil {
		r.scan.cancel()
		r.scan = nil
	}
}

// RetrieveConnected always answers with an empty set: go-ble has no way to enumerate
// links owned by other processes.
func (r *Radio) RetrieveConnected(service ble.UUID) {
	r.async("goble-retrieve", central.ConnectedRetrieved{})
}

func (r *Radio) Connect(id central.Identity) {
	r.mu.RLock()
	a := r.adapter
	r.mu.RUnlock()

	if a == nil {
		r.async("goble-connect-reject", central.ConnectFailedEvent{Peripheral: id, Err: ErrAdapterNotOpen})
		return
	}

	c := newConn(r, a, id)
	r.connsMu.Lock()
	existing, loaded := r.conns.GetOrInsert(id, c)
	reused := loaded && existing.reusable() && existing.enqueue(existing.dial)
	if loaded && !reused {
		// The previous link is still winding down; it must not swallow this request.
		r.logger.WithField("peripheral", id).Debug("Replacing closing connection")
		r.conns.Set(id, c)
	}
	r.connsMu.Unlock()

	if reused {
		c.finish()
		return
	}
	r.group.Go(c.ctx, "goble-conn", c.loop)
	if loaded {
		c.enqueue(func() { c.after(existing) })
	}
	c.enqueue(c.dial)
}

func (r *Radio) Disconnect(id central.Identity) {
	c, ok := r.conns.Get(id)
	if !ok {
		r.logger.WithField("peripheral", id).Debug("Disconnect for unknown connection ignored")
		return
	}
	c.requestClose()
}

func (r *Radio) DiscoverServices(id central.Identity, filter []ble.UUID) {
	r.submit(id, func(c *conn) { c.discoverServices(filter) },
		central.ServicesDiscovered{Peripheral: id, Err: ErrNotConnected})
}

func (r *Radio) DiscoverCharacteristics(id central.Identity, service central.ServiceRef, filter []ble.UUID) {
	r.submit(id, func(c *conn) { c.discoverCharacteristics(service, filter) },
		central.CharacteristicsDiscovered{Peripheral: id, Service: service, Err: ErrNotConnected})
}

func (r *Radio) SetNotify(id central.Identity, characteristic central.CharacteristicRef, enabled bool) {
	r.submit(id, func(c *conn) { c.setNotify(characteristic, enabled) },
		central.NotifyStateChanged{Peripheral: id, Characteristic: characteristic, Err: ErrNotConnected})
}

func (r *Radio) Write(id central.Identity, characteristic central.CharacteristicRef, data []byte, ackRequired bool) {
	buf := append([]byte(nil), data...)
	r.submit(id, func(c *conn) { c.write(characteristic, buf, ackRequired) }, nil)
}

// submit queues op on id's connection, or reports rejected when there is none.
func (r *Radio) submit(id central.Identity, op func(*conn), rejected central.Event) {
	if c, ok := r.conns.Get(id); ok && c.enqueue(func() { op(c) }) {
		return
	}
	if rejected == nil {
		r.logger.WithField("peripheral", id).Debug("Request for unknown connection dropped")
		return
	}
	r.async("goble-reject", rejected)
}
