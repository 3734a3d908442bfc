package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blecentral/internal/central"
)

var (
	ErrBluetoothOff      = errors.New("bluetooth is turned off")
	ErrUnauthorized      = errors.New("bluetooth access is not authorized")
	ErrUnsupported       = errors.New("bluetooth is not supported on this host")
	ErrNotConnected      = errors.New("peripheral not connected")
	ErrNotifyUnsupported = errors.New("characteristic does not support notifications")
	ErrAdapterNotOpen    = errors.New("adapter is not open")
)

// NormalizeError maps known go-ble error strings to the sentinels above.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "operation not permitted"),
		containsIgnoreCase(msg, "permission denied"),
		containsIgnoreCase(msg, "have=3 want=5"):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case containsIgnoreCase(msg, "no devices available"),
		containsIgnoreCase(msg, "no such device"),
		containsIgnoreCase(msg, "have=2 want=5"):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return err
	}
}

// adapterStateFor translates a normalized open/scan failure into an adapter state.
func adapterStateFor(err error) central.AdapterState {
	switch {
	case errors.Is(err, ErrBluetoothOff):
		return central.AdapterPoweredOff
	case errors.Is(err, ErrUnauthorized):
		return central.AdapterUnauthorized
	default:
		return central.AdapterUnsupported
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
