package central

import "github.com/go-ble/ble"

// Event is anything the worker loop processes: radio events from the adapter,
// per-peripheral GATT events, and internal commands. The set is closed.
type Event interface {
	isEvent()
}

// AdapterEvent is emitted by the radio about the adapter or the link layer.
type AdapterEvent interface {
	Event
	adapterEvent()
}

// PeripheralEvent is emitted by the radio for one connected peripheral's GATT session.
// Events of one peripheral arrive in the order the radio emitted them.
type PeripheralEvent interface {
	Event
	PeripheralID() Identity
}

// ----------------------------
// Adapter events
// ----------------------------

// AdapterStateChanged reports a power or authorization change.
type AdapterStateChanged struct {
	State AdapterState
}

// AdvertisementObserved reports an advertisement for the target service.
type AdvertisementObserved struct {
	Peripheral Identity
	Name       string
	RSSI       int
}

// ConnectedRetrieved answers Radio.RetrieveConnected with the peripherals already
// connected at the platform level for the target service.
type ConnectedRetrieved struct {
	Peripherals []PeripheralInfo
	Err         error
}

// Connected reports an established link.
type Connected struct {
	Peripheral Identity
}

// ConnectFailedEvent reports a connect request that did not produce a link.
type ConnectFailedEvent struct {
	Peripheral Identity
	Err        error
}

// Disconnected reports that a link is gone, requested or not.
type Disconnected struct {
	Peripheral Identity
	Err        error
}

// ScanStopped reports a scan that ended without a StopScan request, for example on a
// transient controller error. Adapter power and authorization losses are reported as
// AdapterStateChanged instead.
type ScanStopped struct {
	Err error
}

func (AdapterStateChanged) isEvent()   {}
func (AdvertisementObserved) isEvent() {}
func (ConnectedRetrieved) isEvent()    {}
func (Connected) isEvent()             {}
func (ConnectFailedEvent) isEvent()    {}
func (Disconnected) isEvent()          {}
func (ScanStopped) isEvent()           {}

func (AdapterStateChanged) adapterEvent()   {}
func (AdvertisementObserved) adapterEvent() {}
func (ConnectedRetrieved) adapterEvent()    {}
func (Connected) adapterEvent()             {}
func (ConnectFailedEvent) adapterEvent()    {}
func (Disconnected) adapterEvent()          {}
func (ScanStopped) adapterEvent()           {}

// ----------------------------
// Peripheral (GATT) events
// ----------------------------

// ServicesDiscovered answers Radio.DiscoverServices.
type ServicesDiscovered struct {
	Peripheral Identity
	Services   []ServiceRef
	Err        error
}

// CharacteristicsDiscovered answers Radio.DiscoverCharacteristics for one service.
type CharacteristicsDiscovered struct {
	Peripheral      Identity
	Service         ServiceRef
	Characteristics []CharacteristicRef
	Err             error
}

// NotifyStateChanged answers Radio.SetNotify. Enabled is the resulting state.
type NotifyStateChanged struct {
	Peripheral     Identity
	Characteristic CharacteristicRef
	Enabled        bool
	Err            error
}

// ValueUpdated carries one notification payload.
type ValueUpdated struct {
	Peripheral     Identity
	Characteristic CharacteristicRef
	Value          []byte
	Err            error
}

// ServicesInvalidated reports a peer-initiated service table change.
type ServicesInvalidated struct {
	Peripheral Identity
	Services   []ble.UUID
}

func (ServicesDiscovered) isEvent()        {}
func (CharacteristicsDiscovered) isEvent() {}
func (NotifyStateChanged) isEvent()        {}
func (ValueUpdated) isEvent()              {}
func (ServicesInvalidated) isEvent()       {}

func (e ServicesDiscovered) PeripheralID() Identity        { return e.Peripheral }
func (e CharacteristicsDiscovered) PeripheralID() Identity { return e.Peripheral }
func (e NotifyStateChanged) PeripheralID() Identity        { return e.Peripheral }
func (e ValueUpdated) PeripheralID() Identity              { return e.Peripheral }
func (e ServicesInvalidated) PeripheralID() Identity       { return e.Peripheral }

// ----------------------------
// Internal commands
// ----------------------------

type sendCommand struct {
	peripheral Identity // empty means every subscribed peripheral
	text       string
}

type stepExpired struct {
	peripheral Identity
	generation uint64
}

// resumeDiscovery fires after the scan retry delay.
type resumeDiscovery struct{}

type shutdownCommand struct{}

func (sendCommand) isEvent()     {}
func (stepExpired) isEvent()     {}
func (resumeDiscovery) isEvent() {}
func (shutdownCommand) isEvent() {}
