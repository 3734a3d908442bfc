package main

import (
	"errors"

	"github.com/srg/blecentral/internal/radio/goble"
	"github.com/srg/blecentral/internal/radio/tinygo"
)

// FormatUserError turns known platform failures into actionable messages.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, goble.ErrBluetoothOff), errors.Is(err, tinygo.ErrBluetoothOff):
		return "Bluetooth is turned off. Enable it and try again."
	case errors.Is(err, goble.ErrUnauthorized), errors.Is(err, tinygo.ErrUnauthorized):
		return "Bluetooth access denied. On Linux run with CAP_NET_ADMIN (or sudo); on macOS grant Bluetooth permission to the terminal."
	case errors.Is(err, goble.ErrUnsupported), errors.Is(err, tinygo.ErrUnsupported):
		return "No usable Bluetooth adapter found."
	default:
		return err.Error()
	}
}
