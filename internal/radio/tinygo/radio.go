// Package tinygo implements central.Radio on top of tinygo.org/x/bluetooth
// (BlueZ over D-Bus on Linux, CoreBluetooth on macOS).
package tinygo

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

const closeTimeout = 3 * time.Second

// Radio is a tinygo bluetooth backed central.Radio. Like the go-ble backend it runs
// one operation goroutine per connection.
type Radio struct {
	logger *logrus.Logger
	group  *groutine.Group

	mu       sync.RWMutex
	sink     central.EventSink
	adapter  adapter
	enabled  bool
	scanning bool
	// stopping marks a scan end requested through StopScan.
	stopping bool

	conns   *hashmap.Map[central.Identity, *conn]
	connsMu sync.Mutex

	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

var _ central.Radio = (*Radio)(nil)

// New creates a Radio on bluetooth.DefaultAdapter.
func New(logger *logrus.Logger) *Radio {
	return newRadio(newTinyAdapter(), logger)
}

func newRadio(a adapter, logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Radio{
		logger:  logger,
		group:   groutine.NewGroup(logger),
		adapter: a,
		conns:   hashmap.New[central.Identity, *conn](),
		ctx:     ctx,
		cancel:  cancel,
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

func (r *Radio) async(name string, ev central.Event) {
	r.group.Go(r.ctx, name, func(context.Context) {
		r.emit(ev)
	})
}

func (r *Radio) ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

func (r *Radio) Open() {
	r.group.Go(r.ctx, "tinygo-open", func(ctx context.Context) {
		if err := r.adapter.Enable(); err != nil {
			err = NormalizeError(err)
			state := adapterStateFor(err)
			r.logger.WithError(err).WithField("state", state).Error("Failed to enable BLE adapter")
			r.emit(central.AdapterStateChanged{State: state})
			return
		}
		r.adapter.OnDisconnect(r.linkLost)

		r.mu.Lock()
		r.enabled = true
		r.mu.Unlock()

		r.logger.Info("BLE adapter enabled")
		r.emit(central.AdapterStateChanged{State: central.AdapterPoweredOn})
	})
}

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
	r.group.Wait()
	return nil
}

// Scan runs a blocking tinygo scan on its own goroutine until StopScan.
func (r *Radio) Scan(svc ble.UUID, allowDuplicates bool) {
	target, err := toUUID(svc)
	if err != nil {
		r.logger.WithError(err).Error("Invalid scan service UUID")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		r.logger.Warn("Scan requested before the adapter is enabled")
		return
	}
	if r.scanning {
		return
	}
	r.scanning = true

	seen := make(map[string]bool)
	r.group.Go(r.ctx, "tinygo-scan", func(ctx context.Context) {
		err := r.adapter.Scan(target, func(adv advertisement) {
			// The callback runs on the scan goroutine only.
			if !allowDuplicates {
				if seen[adv.addr] {
					return
				}
				seen[adv.addr] = true
			}
			r.emit(central.AdvertisementObserved{
				Peripheral: central.Identity(adv.addr),
				Name:       adv.name,
				RSSI:       adv.rssi,
			})
		})

		r.mu.Lock()
		requested := r.stopping
		r.scanning = false
		r.stopping = false
		r.mu.Unlock()

		if requested {
			r.logger.Debug("Scan stopped")
			return
		}
		if err == nil {
			r.logger.Warn("Scan ended by the platform")
			r.emit(central.ScanStopped{})
			return
		}
		err = NormalizeError(err)
		r.logger.WithError(err).Error("Scan failed")
		if errors.Is(err, ErrBluetoothOff) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrUnsupported) {
			r.emit(central.AdapterStateChanged{State: adapterStateFor(err)})
			return
		}
		r.emit(central.ScanStopped{Err: err})
	})
}

func (r *Radio) StopScan() {
	r.mu.Lock()
	scanning := r.scanning
	if scanning {
		r.stopping = true
	}
	r.mu.Unlock()
	if !scanning {
		return
	}
	if err := r.adapter.StopScan(); err != nil {
		r.logger.WithError(NormalizeError(err)).Debug("StopScan failed")
	}
}

// RetrieveConnected answers with an empty set; tinygo bluetooth cannot enumerate
// links established by other processes.
func (r *Radio) RetrieveConnected(ble.UUID) {
	r.async("tinygo-retrieve", central.ConnectedRetrieved{})
}

func (r *Radio) Connect(id central.Identity) {
	if !r.ready() {
		r.async("tinygo-connect-reject", central.ConnectFailedEvent{Peripheral: id, Err: ErrAdapterNotOpen})
		return
	}

	c := newConn(r, id)
	r.connsMu.Lock()
	existing, loaded := r.conns.GetOrInsert(id, c)
	reused := loaded && existing.reusable() && existing.enqueue(existing.dial)
	if loaded && !reused {
		// A closing connection would drop the dial; take its place once it is gone.
		r.logger.WithField("peripheral", id).Debug("Replacing closing connection")
		r.conns.Set(id, c)
	}
	r.connsMu.Unlock()

	if reused {
		c.finish()
		return
	}
	r.group.Go(c.ctx, "tinygo-conn", c.loop)
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

func (r *Radio) linkLost(addr string) {
	if c, ok := r.conns.Get(central.Identity(addr)); ok {
		c.enqueue(c.linkLost)
	}
}

func (r *Radio) DiscoverServices(id central.Identity, filter []ble.UUID) {
	r.submit(id, func(c *conn) { c.discoverServices(filter) },
		central.ServicesDiscovered{Peripheral: id, Err: ErrNotConnected})
}

func (r *Radio) DiscoverCharacteristics(id central.Identity, svc central.ServiceRef, filter []ble.UUID) {
	r.submit(id, func(c *conn) { c.discoverCharacteristics(svc, filter) },
		central.CharacteristicsDiscovered{Peripheral: id, Service: svc, Err: ErrNotConnected})
}

func (r *Radio) SetNotify(id central.Identity, ch central.CharacteristicRef, enabled bool) {
	r.submit(id, func(c *conn) { c.setNotify(ch, enabled) },
		central.NotifyStateChanged{Peripheral: id, Characteristic: ch, Err: ErrNotConnected})
}

func (r *Radio) Write(id central.Identity, ch central.CharacteristicRef, data []byte, ackRequired bool) {
	buf := append([]byte(nil), data...)
	r.submit(id, func(c *conn) { c.write(ch, buf, ackRequired) }, nil)
}

func (r *Radio) submit(id central.Identity, op func(*conn), rejected central.Event) {
	if c, ok := r.conns.Get(id); ok && c.enqueue(func() { op(c) }) {
		return
	}
	if rejected == nil {
		r.logger.WithField("peripheral", id).Debug("Request for unknown connection dropped")
		return
	}
	r.async("tinygo-reject", rejected)
}
