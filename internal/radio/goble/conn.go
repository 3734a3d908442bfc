package goble

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/groutine"
)

// chunkDelay spaces unacknowledged chunks so the peer's buffers keep up.
const chunkDelay = 10 * time.Millisecond

// conn is one peripheral link. Fields below the op queue are touched only by the
// op goroutine. The queue is unbounded so request methods never wait on a link
// that is busy emitting.
type conn struct {
	id      central.Identity
	radio   *Radio
	adapter adapter
	logger  *logrus.Entry

	ops        *groutine.Serial
	done       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	dialCtx    context.Context
	dialCancel context.CancelFunc
	closing    atomic.Bool

	client    gattClient
	nextRef   uint16
	services  map[uint16]*ble.Service
	chars     map[uint16]*ble.Characteristic
	notifying map[uint16]bool
}

func newConn(r *Radio, a adapter, id central.Identity) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	dialCtx, dialCancel := context.WithCancel(ctx)
	return &conn{
		id:         id,
		radio:      r,
		adapter:    a,
		logger:     r.logger.WithField("peripheral", id),
		ops:        groutine.NewSerial(),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		dialCtx:    dialCtx,
		dialCancel: dialCancel,
		services:   make(map[uint16]*ble.Service),
		chars:      make(map[uint16]*ble.Characteristic),
		notifying:  make(map[uint16]bool),
	}
}

func (c *conn) loop(ctx context.Context) {
	defer close(c.done)
	c.ops.Run(ctx)
}

// enqueue never blocks. It reports false once the connection is finished.
func (c *conn) enqueue(op func()) bool {
	if c.ctx.Err() != nil {
		return false
	}
	return c.ops.Push(op)
}

// after blocks until prev, the connection this one replaced, has wound down.
func (c *conn) after(prev *conn) {
	select {
	case <-prev.done:
	case <-c.ctx.Done():
	}
}

// reusable reports whether a new Connect may be handed to this connection.
func (c *conn) reusable() bool {
	return !c.closing.Load() && c.ctx.Err() == nil
}

// finish unregisters the connection and stops its goroutines. Safe from any goroutine.
func (c *conn) finish() {
	c.radio.connsMu.Lock()
	if existing, ok := c.radio.conns.Get(c.id); ok && existing == c {
		c.radio.conns.Del(c.id)
	}
	c.radio.connsMu.Unlock()
	c.dialCancel()
	c.cancel()
}

// requestClose aborts a pending dial and queues the teardown.
func (c *conn) requestClose() {
	c.closing.Store(true)
	c.dialCancel()
	if !c.enqueue(c.teardown) {
		c.logger.Debug("Connection already closed")
	}
}

func (c *conn) dial() {
	if c.client != nil {
		c.radio.emit(central.Connected{Peripheral: c.id})
		return
	}

	c.logger.Info("Dialing peripheral")
	client, err := c.adapter.Dial(c.dialCtx, string(c.id))
	if err != nil {
		c.finish()
		if c.closing.Load() {
			c.logger.Debug("Dial cancelled")
			return
		}
		err = NormalizeError(err)
		c.logger.WithError(err).Warn("Failed to dial peripheral")
		c.radio.emit(central.ConnectFailedEvent{Peripheral: c.id, Err: err})
		return
	}

	c.client = client
	c.logger.Info("Peripheral connected")
	c.radio.emit(central.Connected{Peripheral: c.id})
	c.radio.group.Go(c.ctx, "goble-link-watch", func(ctx context.Context) {
		select {
		case <-client.Disconnected():
			c.enqueue(c.linkLost)
		case <-ctx.Done():
		}
	})
}

// teardown is a requested disconnect.
func (c *conn) teardown() {
	client := c.client
	c.client = nil
	if client == nil {
		c.finish()
		return
	}

	if err := client.CancelConnection(); err != nil {
		c.logger.WithError(err).Warn("CancelConnection failed")
	}
	c.finish()
	c.logger.Info("Peripheral disconnected")
	c.radio.emit(central.Disconnected{Peripheral: c.id})
}

// linkLost handles a disconnect the platform reported on its own.
func (c *conn) linkLost() {
	if c.client == nil {
		return
	}
	c.client = nil
	c.finish()
	c.logger.Warn("Link lost")
	c.radio.emit(central.Disconnected{Peripheral: c.id, Err: fmt.Errorf("link lost: %w", ErrNotConnected)})
}

func (c *conn) ref() uint16 {
	c.nextRef++
	return c.nextRef
}

func (c *conn) discoverServices(filter []ble.UUID) {
	if c.client == nil {
		c.radio.emit(central.ServicesDiscovered{Peripheral: c.id, Err: ErrNotConnected})
		return
	}

	services, err := c.client.DiscoverServices(filter)
	if err != nil {
		c.radio.emit(central.ServicesDiscovered{Peripheral: c.id, Err: NormalizeError(err)})
		return
	}

	refs := make([]central.ServiceRef, 0, len(services))
	for _, s := range services {
		h := c.ref()
		c.services[h] = s
		refs = append(refs, central.ServiceRef{UUID: s.UUID, Handle: h})
	}
	c.logger.WithField("services", len(refs)).Debug("Services discovered")
	c.radio.emit(central.ServicesDiscovered{Peripheral: c.id, Services: refs})
}

func (c *conn) discoverCharacteristics(service central.ServiceRef, filter []ble.UUID) {
	fail := func(err error) {
		c.radio.emit(central.CharacteristicsDiscovered{Peripheral: c.id, Service: service, Err: err})
	}
	if c.client == nil {
		fail(ErrNotConnected)
		return
	}
	s, ok := c.services[service.Handle]
	if !ok {
		fail(fmt.Errorf("service %s: %w", service.UUID, central.ErrNotFound))
		return
	}

	chars, err := c.client.DiscoverCharacteristics(filter, s)
	if err != nil {
		fail(NormalizeError(err))
		return
	}

	refs := make([]central.CharacteristicRef, 0, len(chars))
	for _, ch := range chars {
		h := c.ref()
		c.chars[h] = ch
		refs = append(refs, central.CharacteristicRef{Service: service, UUID: ch.UUID, Handle: h})
	}
	c.radio.emit(central.CharacteristicsDiscovered{Peripheral: c.id, Service: service, Characteristics: refs})
}

func (c *conn) setNotify(ref central.CharacteristicRef, enabled bool) {
	report := func(state bool, err error) {
		c.radio.emit(central.NotifyStateChanged{Peripheral: c.id, Characteristic: ref, Enabled: state, Err: err})
	}
	if c.client == nil {
		report(false, ErrNotConnected)
		return
	}
	ch, ok := c.chars[ref.Handle]
	if !ok {
		report(false, fmt.Errorf("characteristic %s: %w", ref.UUID, central.ErrNotFound))
		return
	}

	if enabled {
		// Subscribing twice would register a second handler.
		if c.notifying[ref.Handle] {
			report(true, nil)
			return
		}
		if err := c.subscribe(ref, ch); err != nil {
			report(false, err)
			return
		}
		c.notifying[ref.Handle] = true
		report(true, nil)
		return
	}

	if !c.notifying[ref.Handle] {
		report(false, nil)
		return
	}
	if err := c.client.Unsubscribe(ch, false); err != nil {
		report(true, NormalizeError(err))
		return
	}
	delete(c.notifying, ref.Handle)
	report(false, nil)
}

func (c *conn) subscribe(ref central.CharacteristicRef, ch *ble.Characteristic) error {
	if ch.Property&ble.CharNotify == 0 {
		return ErrNotifyUnsupported
	}
	if ch.CCCD == nil {
		if _, err := c.client.DiscoverDescriptors(nil, ch); err != nil {
			return NormalizeError(err)
		}
	}

	id := c.id
	err := c.client.Subscribe(ch, false, func(data []byte) {
		value := append([]byte(nil), data...)
		c.radio.emit(central.ValueUpdated{Peripheral: id, Characteristic: ref, Value: value})
	})
	return NormalizeError(err)
}

func (c *conn) write(ref central.CharacteristicRef, data []byte, ackRequired bool) {
	if c.client == nil {
		c.logger.Debug("Write on closed connection dropped")
		return
	}
	ch, ok := c.chars[ref.Handle]
	if !ok {
		c.logger.WithField("characteristic", ref.UUID.String()).Warn("Write to unknown characteristic dropped")
		return
	}

	parts := central.SplitPayload(data, central.MaxWriteChunk)
	for i, part := range parts {
		if err := c.client.WriteCharacteristic(ch, part, !ackRequired); err != nil {
			c.logger.WithError(NormalizeError(err)).WithFields(logrus.Fields{
				"chunk":  i + 1,
				"chunks": len(parts),
			}).Warn("Write failed")
			return
		}
		if !ackRequired && i < len(parts)-1 {
			time.Sleep(chunkDelay)
		}
	}
	c.logger.WithField("bytes", len(data)).Debug("Write complete")
}
