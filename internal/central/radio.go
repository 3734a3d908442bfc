package central

import "github.com/go-ble/ble"

// EventSink receives events emitted by a Radio. It may block briefly while the
// worker queue is full; it must not be called after Radio.Close returns.
type EventSink func(Event)

// Radio is the platform BLE stack as seen by the manager.
//
// Every request is fire-and-forget: a method must return without waiting for radio
// I/O or for an earlier request of the same peripheral, and its outcome is reported
// later through the EventSink. Implementations must
// not call the sink synchronously from inside a request method, and must preserve the
// emission order of events belonging to one peripheral.
type Radio interface {
	// SetEventSink installs the receiver of all adapter and GATT events.
	SetEventSink(sink EventSink)
	// Open brings the adapter up; the outcome arrives as AdapterStateChanged.
	Open()
	// Close releases the adapter. No events are emitted afterwards.
	Close() error

	// Scan reports AdvertisementObserved until StopScan. A scan that ends any other way
	// is reported as ScanStopped, or as AdapterStateChanged when the adapter went away.
	Scan(service ble.UUID, allowDuplicates bool)
	StopScan()
	// RetrieveConnected asks for peripherals already connected at the platform level
	// that expose service; the answer arrives as ConnectedRetrieved.
	RetrieveConnected(service ble.UUID)

	Connect(id Identity)
	Disconnect(id Identity)

	DiscoverServices(id Identity, filter []ble.UUID)
	DiscoverCharacteristics(id Identity, service ServiceRef, filter []ble.UUID)
	SetNotify(id Identity, characteristic CharacteristicRef, enabled bool)
	Write(id Identity, characteristic CharacteristicRef, data []byte, ackRequired bool)
}
