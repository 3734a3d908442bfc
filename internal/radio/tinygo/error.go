package tinygo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blecentral/internal/central"
)

var (
	ErrBluetoothOff   = errors.New("bluetooth is turned off")
	ErrUnauthorized   = errors.New("bluetooth access is not authorized")
	ErrUnsupported    = errors.New("no usable bluetooth adapter")
	ErrNotConnected   = errors.New("peripheral not connected")
	ErrAdapterNotOpen = errors.New("adapter is not open")
)

// NormalizeError maps BlueZ/CoreBluetooth error strings surfaced by tinygo to the
// sentinels above, wrapping the original error.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "notready"),
		strings.Contains(msg, "not powered"),
		strings.Contains(msg, "poweredoff"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case strings.Contains(msg, "accessdenied"),
		strings.Contains(msg, "notpermitted"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "unauthorized"):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case strings.Contains(msg, "no bluetooth adapter"),
		strings.Contains(msg, "adapter not found"),
		strings.Contains(msg, "serviceunknown"),
		strings.Contains(msg, "unsupported"):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	case strings.Contains(msg, "notconnected"),
		strings.Contains(msg, "not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return err
	}
}

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
