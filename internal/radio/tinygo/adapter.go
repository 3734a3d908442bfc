package tinygo

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"tinygo.org/x/bluetooth"
)

// adapter is the slice of *bluetooth.Adapter the radio needs.
type adapter interface {
	Enable() error
	// Scan blocks until StopScan, reporting advertisements that list service.
	Scan(service bluetooth.UUID, handler func(advertisement)) error
	StopScan() error
	// Connect blocks until the link is up or the platform gives up.
	Connect(addr string) (device, error)
	// OnDisconnect installs the callback for links dropped by the platform.
	OnDisconnect(func(addr string))
}

type device interface {
	DiscoverServices(filter []bluetooth.UUID) ([]service, error)
	Disconnect() error
}

type service interface {
	UUID() bluetooth.UUID
	DiscoverCharacteristics(filter []bluetooth.UUID) ([]characteristic, error)
}

type characteristic interface {
	UUID() bluetooth.UUID
	EnableNotifications(callback func(buf []byte)) error
	WriteWithoutResponse(p []byte) (int, error)
}

// ackWriter is the acknowledged write some platforms (CoreBluetooth, WinRT) add.
type ackWriter interface {
	Write(p []byte) (int, error)
}

var (
	_ adapter        = (*tinyAdapter)(nil)
	_ characteristic = (*bluetooth.DeviceCharacteristic)(nil)
)

type advertisement struct {
	addr string
	name string
	rssi int
}

// ----------------------------
// tinygo.org/x/bluetooth binding
// ----------------------------

type tinyAdapter struct {
	adapter *bluetooth.Adapter

	mu           sync.Mutex
	onDisconnect func(addr string)
	// addresses keeps the platform address of every peripheral seen while scanning.
	addresses map[string]bluetooth.Address
}

func newTinyAdapter() adapter {
	return &tinyAdapter{
		adapter:   bluetooth.DefaultAdapter,
		addresses: make(map[string]bluetooth.Address),
	}
}

func (t *tinyAdapter) Enable() error {
	if err := t.adapter.Enable(); err != nil {
		return err
	}
	t.adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		if connected {
			return
		}
		t.mu.Lock()
		cb := t.onDisconnect
		t.mu.Unlock()
		if cb != nil {
			cb(d.Address.String())
		}
	})
	return nil
}

func (t *tinyAdapter) Scan(svc bluetooth.UUID, handler func(advertisement)) error {
	return t.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.HasServiceUUID(svc) {
			return
		}
		addr := result.Address.String()
		t.mu.Lock()
		t.addresses[addr] = result.Address
		t.mu.Unlock()
		handler(advertisement{
			addr: addr,
			name: result.LocalName(),
			rssi: int(result.RSSI),
		})
	})
}

func (t *tinyAdapter) StopScan() error {
	return t.adapter.StopScan()
}

func (t *tinyAdapter) Connect(addr string) (device, error) {
	t.mu.Lock()
	a, ok := t.addresses[addr]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("peripheral %s was never advertised", addr)
	}
	d, err := t.adapter.Connect(a, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}
	return &tinyDevice{device: d}, nil
}

func (t *tinyAdapter) OnDisconnect(cb func(addr string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnect = cb
}

type tinyDevice struct {
	device bluetooth.Device
}

func (d *tinyDevice) DiscoverServices(filter []bluetooth.UUID) ([]service, error) {
	svcs, err := d.device.DiscoverServices(filter)
	if err != nil {
		return nil, err
	}
	out := make([]service, len(svcs))
	for i := range svcs {
		out[i] = &tinyService{service: svcs[i]}
	}
	return out, nil
}

func (d *tinyDevice) Disconnect() error {
	return d.device.Disconnect()
}

type tinyService struct {
	service bluetooth.DeviceService
}

func (s *tinyService) UUID() bluetooth.UUID {
	return s.service.UUID()
}

func (s *tinyService) DiscoverCharacteristics(filter []bluetooth.UUID) ([]characteristic, error) {
	chars, err := s.service.DiscoverCharacteristics(filter)
	if err != nil {
		return nil, err
	}
	out := make([]characteristic, len(chars))
	for i := range chars {
		out[i] = &chars[i]
	}
	return out, nil
}

// ----------------------------
// UUID conversion
// ----------------------------

// toUUID converts a go-ble UUID (little-endian bytes) to its tinygo form.
func toUUID(u ble.UUID) (bluetooth.UUID, error) {
	switch len(u) {
	case 2:
		return bluetooth.New16BitUUID(binary.LittleEndian.Uint16(u)), nil
	case 4:
		return bluetooth.New32BitUUID(binary.LittleEndian.Uint32(u)), nil
	case 16:
		b := ble.Reverse(u)
		return bluetooth.ParseUUID(fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16]))
	default:
		return bluetooth.UUID{}, fmt.Errorf("invalid UUID length %d", len(u))
	}
}

func toUUIDs(uuids []ble.UUID) ([]bluetooth.UUID, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	out := make([]bluetooth.UUID, 0, len(uuids))
	for _, u := range uuids {
		v, err := toUUID(u)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// fromUUID converts back, keeping 16-bit UUIDs short.
func fromUUID(u bluetooth.UUID) ble.UUID {
	if u.Is16Bit() {
		return ble.UUID16(u.Get16Bit())
	}
	return ble.MustParse(u.String())
}
