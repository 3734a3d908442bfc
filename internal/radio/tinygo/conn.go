package tinygo

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/groutine"
)

// conn serializes all requests of one peripheral on its op goroutine. The op queue is
// unbounded: the manager's worker must never wait on a link busy emitting values.
type conn struct {
	id     central.Identity
	radio  *Radio
	logger *logrus.Entry

	ops     *groutine.Serial
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	closing atomic.Bool

	device    device
	nextRef   uint16
	services  map[uint16]service
	chars     map[uint16]characteristic
	notifying map[uint16]bool
}

func newConn(r *Radio, id central.Identity) *conn {
	ctx, cancel := context.WithCancel(r.ctx)
	return &conn{
		id:        id,
		radio:     r,
		logger:    r.logger.WithField("peripheral", id),
		ops:       groutine.NewSerial(),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		services:  make(map[uint16]service),
		chars:     make(map[uint16]characteristic),
		notifying: make(map[uint16]bool),
	}
}

func (c *conn) loop(ctx context.Context) {
	defer close(c.done)
	c.ops.Run(ctx)
}

func (c *conn) enqueue(op func()) bool {
	if c.ctx.Err() != nil {
		return false
	}
	return c.ops.Push(op)
}

func (c *conn) reusable() bool {
	return !c.closing.Load() && c.ctx.Err() == nil
}

// after holds this connection back until prev has released the link.
func (c *conn) after(prev *conn) {
	select {
	case <-prev.done:
	case <-c.ctx.Done():
	}
}

func (c *conn) finish() {
	c.radio.connsMu.Lock()
	if existing, ok := c.radio.conns.Get(c.id); ok && existing == c {
		c.radio.conns.Del(c.id)
	}
	c.radio.connsMu.Unlock()
	c.cancel()
}

func (c *conn) requestClose() {
	c.closing.Store(true)
	if !c.enqueue(c.teardown) {
		c.logger.Debug("Connection already closed")
	}
}

// dial blocks the op goroutine; tinygo offers no way to abort a pending connect,
// so a close requested meanwhile is handled by the queued teardown.
func (c *conn) dial() {
	if c.device != nil {
		c.radio.emit(central.Connected{Peripheral: c.id})
		return
	}

	c.logger.Info("Connecting to peripheral")
	d, err := c.radio.adapter.Connect(string(c.id))
	if err != nil {
		c.finish()
		if c.closing.Load() {
			return
		}
		err = NormalizeError(err)
		c.logger.WithError(err).Warn("Failed to connect")
		c.radio.emit(central.ConnectFailedEvent{Peripheral: c.id, Err: err})
		return
	}

	c.device = d
	if c.closing.Load() {
		c.logger.Debug("Connected after close was requested")
		return
	}
	c.logger.Info("Peripheral connected")
	c.radio.emit(central.Connected{Peripheral: c.id})
}

func (c *conn) teardown() {
	d := c.device
	c.device = nil
	c.finish()
	if d == nil {
		return
	}
	if err := d.Disconnect(); err != nil {
		c.logger.WithError(NormalizeError(err)).Warn("Disconnect failed")
	}
	c.logger.Info("Peripheral disconnected")
	c.radio.emit(central.Disconnected{Peripheral: c.id})
}

func (c *conn) linkLost() {
	if c.device == nil {
		return
	}
	c.device = nil
	c.finish()
	c.logger.Warn("Link lost")
	c.radio.emit(central.Disconnected{Peripheral: c.id, Err: fmt.Errorf("link lost: %w", ErrNotConnected)})
}

func (c *conn) ref() uint16 {
	c.nextRef++
	return c.nextRef
}

func (c *conn) discoverServices(filter []ble.UUID) {
	fail := func(err error) {
		c.radio.emit(central.ServicesDiscovered{Peripheral: c.id, Err: err})
	}
	if c.device == nil {
		fail(ErrNotConnected)
		return
	}
	uuids, err := toUUIDs(filter)
	if err != nil {
		fail(err)
		return
	}

	svcs, err := c.device.DiscoverServices(uuids)
	if err != nil {
		fail(NormalizeError(err))
		return
	}

	refs := make([]central.ServiceRef, 0, len(svcs))
	for _, s := range svcs {
		h := c.ref()
		c.services[h] = s
		refs = append(refs, central.ServiceRef{UUID: fromUUID(s.UUID()), Handle: h})
	}
	c.radio.emit(central.ServicesDiscovered{Peripheral: c.id, Services: refs})
}

func (c *conn) discoverCharacteristics(svc central.ServiceRef, filter []ble.UUID) {
	fail := func(err error) {
		c.radio.emit(central.CharacteristicsDiscovered{Peripheral: c.id, Service: svc, Err: err})
	}
	if c.device == nil {
		fail(ErrNotConnected)
		return
	}
	s, ok := c.services[svc.Handle]
	if !ok {
		fail(fmt.Errorf("service %s: %w", svc.UUID, central.ErrNotFound))
		return
	}
	uuids, err := toUUIDs(filter)
	if err != nil {
		fail(err)
		return
	}

	chars, err := s.DiscoverCharacteristics(uuids)
	if err != nil {
		fail(NormalizeError(err))
		return
	}

	refs := make([]central.CharacteristicRef, 0, len(chars))
	for _, ch := range chars {
		h := c.ref()
		c.chars[h] = ch
		refs = append(refs, central.CharacteristicRef{Service: svc, UUID: fromUUID(ch.UUID()), Handle: h})
	}
	c.radio.emit(central.CharacteristicsDiscovered{Peripheral: c.id, Service: svc, Characteristics: refs})
}

func (c *conn) setNotify(ref central.CharacteristicRef, enabled bool) {
	report := func(state bool, err error) {
		c.radio.emit(central.NotifyStateChanged{Peripheral: c.id, Characteristic: ref, Enabled: state, Err: err})
	}
	if c.device == nil {
		report(false, ErrNotConnected)
		return
	}
	ch, ok := c.chars[ref.Handle]
	if !ok {
		report(false, fmt.Errorf("characteristic %s: %w", ref.UUID, central.ErrNotFound))
		return
	}

	if enabled == c.notifying[ref.Handle] {
		report(enabled, nil)
		return
	}

	var handler func([]byte)
	if enabled {
		id := c.id
		handler = func(buf []byte) {
			value := append([]byte(nil), buf...)
			c.radio.emit(central.ValueUpdated{Peripheral: id, Characteristic: ref, Value: value})
		}
	}
	// A nil callback disables notifications.
	if err := ch.EnableNotifications(handler); err != nil {
		report(!enabled, NormalizeError(err))
		return
	}
	if enabled {
		c.notifying[ref.Handle] = true
	} else {
		delete(c.notifying, ref.Handle)
	}
	report(enabled, nil)
}

func (c *conn) write(ref central.CharacteristicRef, data []byte, ackRequired bool) {
	if c.device == nil {
		c.logger.Debug("Write on closed connection dropped")
		return
	}
	ch, ok := c.chars[ref.Handle]
	if !ok {
		c.logger.WithField("characteristic", ref.UUID.String()).Warn("Write to unknown characteristic dropped")
		return
	}

	write := ch.WriteWithoutResponse
	if ackRequired {
		// BlueZ and the HCI stack only offer unacknowledged writes.
		if acked, ok := ch.(ackWriter); ok {
			write = acked.Write
		} else {
			c.logger.Debug("Acknowledged write unsupported, writing without response")
		}
	}

	parts := central.SplitPayload(data, central.MaxWriteChunk)
	for i, part := range parts {
		_, err := write(part)
		if err != nil {
			c.logger.WithError(NormalizeError(err)).WithFields(logrus.Fields{
				"chunk":  i + 1,
				"chunks": len(parts),
			}).Warn("Write failed")
			return
		}
	}
	c.logger.WithField("bytes", len(data)).Debug("Write complete")
}
