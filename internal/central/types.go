package central

import (
	"github.com/go-ble/ble"
)

// Identity is the platform-assigned peripheral identifier (MAC address on Linux,
// CoreBluetooth UUID on macOS).
type Identity string

// PeripheralInfo is a read-only snapshot of one registry entry.
type PeripheralInfo struct {
	ID    Identity
	Name  string // may be empty
	RSSI  int    // last seen, dBm
	State ConnectionState
}

// DisplayName returns the advertised name, falling back to the identity.
func (p PeripheralInfo) DisplayName() string {
	if p.Name == "" {
		return string(p.ID)
	}
	return p.Name
}

// ConnectionState is the lifecycle state of a registered peripheral.
type ConnectionState int

const (
	Discovered ConnectionState = iota
	Connecting
	ServicesDiscovering
	CharacteristicDiscovering
	Subscribing
	Subscribed
	Disconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Discovered:
		return "discovered"
	case Connecting:
		return "connecting"
	case ServicesDiscovering:
		return "services_discovering"
	case CharacteristicDiscovering:
		return "characteristic_discovering"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// linkUp reports whether the radio link is (or was) established in this state.
func (s ConnectionState) linkUp() bool {
	return s != Discovered && s != Connecting
}

// AdapterState mirrors the power/authorization state reported by the radio.
type AdapterState int

const (
	AdapterUnknown AdapterState = iota
	AdapterResetting
	AdapterUnsupported
	AdapterUnauthorized
	AdapterPoweredOff
	AdapterPoweredOn
)

func (s AdapterState) String() string {
	switch s {
	case AdapterResetting:
		return "resetting"
	case AdapterUnsupported:
		return "unsupported"
	case AdapterUnauthorized:
		return "unauthorized"
	case AdapterPoweredOff:
		return "powered_off"
	case AdapterPoweredOn:
		return "powered_on"
	default:
		return "unknown"
	}
}

// unavailable reports whether the state is a hard failure that must be surfaced
// as AdapterUnavailable (as opposed to a transient state).
func (s AdapterState) unavailable() bool {
	return s == AdapterUnsupported || s == AdapterUnauthorized || s == AdapterPoweredOff
}

// ServiceRef references a discovered service inside a radio connection.
// Handle disambiguates multiple instances of the same service UUID.
type ServiceRef struct {
	UUID   ble.UUID
	Handle uint16
}

// CharacteristicRef references a discovered characteristic inside a radio connection.
type CharacteristicRef struct {
	Service ServiceRef
	UUID    ble.UUID
	Handle  uint16
}

// Same reports whether both refs point at the same characteristic of the same service instance.
func (c CharacteristicRef) Same(other CharacteristicRef) bool {
	return c.Handle == other.Handle && c.UUID.Equal(other.UUID) && c.Service.Same(other.Service)
}

// Same reports whether both refs point at the same service instance.
func (s ServiceRef) Same(other ServiceRef) bool {
	return s.Handle == other.Handle && s.UUID.Equal(other.UUID)
}
