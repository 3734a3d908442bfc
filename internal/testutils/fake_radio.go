package testutils

import (
	"sync"

	"github.com/go-ble/ble"
	"github.com/srg/blecentral/internal/central"
)

// Radio operations recorded by FakeRadio.
const (
	OpOpen                    = "Open"
	OpClose                   = "Close"
	OpScan                    = "Scan"
	OpStopScan                = "StopScan"
	OpRetrieveConnected       = "RetrieveConnected"
	OpConnect                 = "Connect"
	OpDisconnect              = "Disconnect"
	OpDiscoverServices        = "DiscoverServices"
	OpDiscoverCharacteristics = "DiscoverCharacteristics"
	OpSetNotify               = "SetNotify"
	OpWrite                   = "Write"
)

// Call is one recorded request to the radio. Only the fields relevant to Op are set.
type Call struct {
	Op              string
	Peripheral      central.Identity
	Service         ble.UUID
	AllowDuplicates bool
	Filter          []ble.UUID
	ServiceRef      central.ServiceRef
	Characteristic  central.CharacteristicRef
	Enabled         bool
	Data            []byte
	AckRequired     bool
}

// FakeRadio is a central.Radio that records every request and emits only the events
// a test pushes through Emit. It never answers on its own.
type FakeRadio struct {
	mu     sync.Mutex
	sink   central.EventSink
	calls  []Call
	closed bool
}

var _ central.Radio = (*FakeRadio)(nil)

// NewFakeRadio creates an idle FakeRadio.
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{}
}

func (f *FakeRadio) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *FakeRadio) SetEventSink(sink central.EventSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
}

func (f *FakeRadio) Open() { f.record(Call{Op: OpOpen}) }

func (f *FakeRadio) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.record(Call{Op: OpClose})
	return nil
}

func (f *FakeRadio) Scan(service ble.UUID, allowDuplicates bool) {
	f.record(Call{Op: OpScan, Service: service, AllowDuplicates: allowDuplicates})
}

func (f *FakeRadio) StopScan() { f.record(Call{Op: OpStopScan}) }

func (f *FakeRadio) RetrieveConnected(service ble.UUID) {
	f.record(Call{Op: OpRetrieveConnected, Service: service})
}

func (f *FakeRadio) Connect(id central.Identity) {
	f.record(Call{Op: OpConnect, Peripheral: id})
}

func (f *FakeRadio) Disconnect(id central.Identity) {
	f.record(Call{Op: OpDisconnect, Peripheral: id})
}

func (f *FakeRadio) DiscoverServices(id central.Identity, filter []ble.UUID) {
	f.record(Call{Op: OpDiscoverServices, Peripheral: id, Filter: filter})
}

func (f *FakeRadio) DiscoverCharacteristics(id central.Identity, service central.ServiceRef, filter []ble.UUID) {
	f.record(Call{Op: OpDiscoverCharacteristics, Peripheral: id, ServiceRef: service, Filter: filter})
}

func (f *FakeRadio) SetNotify(id central.Identity, characteristic central.CharacteristicRef, enabled bool) {
	f.record(Call{Op: OpSetNotify, Peripheral: id, Characteristic: characteristic, Enabled: enabled})
}

func (f *FakeRadio) Write(id central.Identity, characteristic central.CharacteristicRef, data []byte, ackRequired bool) {
	buf := append([]byte(nil), data...)
	f.record(Call{Op: OpWrite, Peripheral: id, Characteristic: characteristic, Data: buf, AckRequired: ackRequired})
}

// Emit delivers ev to the installed sink, as the platform would.
func (f *FakeRadio) Emit(ev central.Event) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

// Calls returns a copy of every recorded call in order.
func (f *FakeRadio) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded calls of op, optionally restricted to one peripheral.
func (f *FakeRadio) CallsOf(op string, id central.Identity) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op != op {
			continue
		}
		if id != "" && c.Peripheral != id {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Count returns how many times op was called (for any peripheral).
func (f *FakeRadio) Count(op string) int {
	return len(f.CallsOf(op, ""))
}

// Ops returns the op names recorded for id, in order.
func (f *FakeRadio) Ops(id central.Identity) []string {
	var ops []string
	for _, c := range f.Calls() {
		if c.Peripheral == id {
			ops = append(ops, c.Op)
		}
	}
	return ops
}

// Closed reports whether Close was called.
func (f *FakeRadio) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
