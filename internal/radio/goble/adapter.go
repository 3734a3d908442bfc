package goble

import (
	"context"

	"github.com/go-ble/ble"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDevice

// adapter is the part of a ble.Device the radio drives.
type adapter interface {
	Scan(ctx context.Context, allowDup bool, handler func(advertisement)) error
	Dial(ctx context.Context, addr string) (gattClient, error)
	Stop() error
}

// gattClient is the part of a ble.Client a connection drives.
type gattClient interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// advertisement is the subset of ble.Advertisement the central consumes.
type advertisement struct {
	addr     string
	name     string
	rssi     int
	services []ble.UUID
}

func fromBLE(adv ble.Advertisement) advertisement {
	services := append([]ble.UUID{}, adv.Services()...)
	services = append(services, adv.OverflowService()...)
	return advertisement{
		addr:     adv.Addr().String(),
		name:     adv.LocalName(),
		rssi:     adv.RSSI(),
		services: services,
	}
}

// advertises reports whether the advertisement lists service.
// go-ble scans are unfiltered, so filtering happens here.
func (a advertisement) advertises(service ble.UUID) bool {
	if len(service) == 0 {
		return true
	}
	for _, s := range a.services {
		if s.Equal(service) {
			return true
		}
	}
	return false
}

// bleAdapter wraps a ble.Device.
type bleAdapter struct {
	dev ble.Device
}

func openDevice() (adapter, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &bleAdapter{dev: dev}, nil
}

func (a *bleAdapter) Scan(ctx context.Context, allowDup bool, handler func(advertisement)) error {
	return a.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(fromBLE(adv))
	})
}

func (a *bleAdapter) Dial(ctx context.Context, addr string) (gattClient, error) {
	client, err := a.dev.Dial(ctx, ble.NewAddr(addr))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (a *bleAdapter) Stop() error {
	return a.dev.Stop()
}
