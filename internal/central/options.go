package central

import (
	"time"

	"github.com/go-ble/ble"
)

const (
	// DefaultRSSIThreshold is the weakest signal admitted for a connect attempt.
	DefaultRSSIThreshold = -50

	// DefaultEventBuffer is the worker queue capacity.
	DefaultEventBuffer = 256

	// DefaultNotifyBuffer is the presentation queue capacity; older notices are dropped when full.
	DefaultNotifyBuffer = 128

	// DefaultScanRetryDelay is the pause before scanning again after a scan died on its own.
	DefaultScanRetryDelay = time.Second
)

// Transfer service and characteristic of the reference peripheral.
var (
	DefaultServiceUUID        = ble.MustParse("E20A39F4-73F5-4BC4-A12F-17D1AD07A961")
	DefaultCharacteristicUUID = ble.MustParse("08590F7E-DB05-467E-8757-72F6FAEB13D4")
)

// Options configures a Manager.
type Options struct {
	ServiceUUID        ble.UUID
	CharacteristicUUID ble.UUID

	// RSSIThreshold rejects advertisements with rssi < RSSIThreshold.
	RSSIThreshold   int
	AllowDuplicates bool
	// MaxConnections bounds the registry size; 0 means unbounded.
	MaxConnections int

	// ConnectTimeout bounds the Connecting state; 0 waits indefinitely.
	ConnectTimeout time.Duration
	// StepTimeout bounds every negotiation step and the disconnect confirmation; 0 waits indefinitely.
	StepTimeout time.Duration

	// RearmNotifications re-enables notifications after a delivered value. At most one
	// re-arm per peripheral is in flight; values arriving before its answer do not add more.
	RearmNotifications bool

	// ScanRetryDelay is the pause before restarting a scan that stopped unexpectedly.
	ScanRetryDelay time.Duration

	EventBuffer  int
	NotifyBuffer int
}

// DefaultOptions returns the reference behavior: -50 dBm admission, duplicate
// suppression, no bound on connections, no timeouts, notification re-arm enabled.
func DefaultOptions() Options {
	return Options{
		ServiceUUID:        DefaultServiceUUID,
		CharacteristicUUID: DefaultCharacteristicUUID,
		RSSIThreshold:      DefaultRSSIThreshold,
		RearmNotifications: true,
		ScanRetryDelay:     DefaultScanRetryDelay,
		EventBuffer:        DefaultEventBuffer,
		NotifyBuffer:       DefaultNotifyBuffer,
	}
}

func (o *Options) applyDefaults() {
	if len(o.ServiceUUID) == 0 {
		o.ServiceUUID = DefaultServiceUUID
	}
	if len(o.CharacteristicUUID) == 0 {
		o.CharacteristicUUID = DefaultCharacteristicUUID
	}
	if o.ScanRetryDelay <= 0 {
		o.ScanRetryDelay = DefaultScanRetryDelay
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.NotifyBuffer <= 0 {
		o.NotifyBuffer = DefaultNotifyBuffer
	}
}
