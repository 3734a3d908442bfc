package central

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_UpsertIsIdempotent(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Observe(PeripheralInfo{ID: "A", Name: "alpha", RSSI: -40}))
	assert.False(t, r.Observe(PeripheralInfo{ID: "A", RSSI: -45}))
	assert.False(t, r.Upsert(PeripheralInfo{ID: "A"}))

	all := r.All()
	require.Len(t, all, 1)
	assert.Equal(t, Identity("A"), all[0].ID)
	assert.Equal(t, "alpha", all[0].Name, "empty name must not overwrite a known one")
	assert.Equal(t, -45, all[0].RSSI, "a registration without a reading keeps the last RSSI")
}

func TestRegistry_ObserveAcceptsZeroDBm(t *testing.T) {
	r := NewRegistry()
	r.Observe(PeripheralInfo{ID: "A", RSSI: -40})

	r.Observe(PeripheralInfo{ID: "A", RSSI: 0})

	assert.Equal(t, 0, r.All()[0].RSSI)
}

func TestRegistry_UpsertKeepsState(t *testing.T) {
	r := NewRegistry()
	r.Upsert(PeripheralInfo{ID: "A"})
	r.setState(r.get("A"), Subscribed)

	r.Upsert(PeripheralInfo{ID: "A", Name: "renamed", State: Discovered})

	assert.Equal(t, Subscribed, r.All()[0].State)
	assert.Equal(t, "renamed", r.All()[0].Name)
}

func TestRegistry_InsertionOrder(t *testing.T) {
	r := NewRegistry()
	for _, id := range []Identity{"C", "A", "B"} {
		r.Upsert(PeripheralInfo{ID: id})
	}
	r.Upsert(PeripheralInfo{ID: "A", Name: "refresh"})

	var ids []Identity
	for _, p := range r.All() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []Identity{"C", "A", "B"}, ids)
	assert.Equal(t, []Identity{"C", "A", "B"}, r.ids())
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Upsert(PeripheralInfo{ID: "A"})
	r.Upsert(PeripheralInfo{ID: "B"})

	assert.True(t, r.Remove("A"))
	assert.False(t, r.Remove("A"))
	assert.False(t, r.Contains("A"))
	assert.True(t, r.Contains("B"))
	assert.Equal(t, 1, r.Len())
	assert.Nil(t, r.get("A"))
}

func TestRegistry_SnapshotIsImmutable(t *testing.T) {
	r := NewRegistry()
	r.Upsert(PeripheralInfo{ID: "A", Name: "first"})

	before := r.All()
	r.Upsert(PeripheralInfo{ID: "A", Name: "second"})
	r.Upsert(PeripheralInfo{ID: "B"})

	require.Len(t, before, 1)
	assert.Equal(t, "first", before[0].Name)
	assert.Len(t, r.All(), 2)
}

func TestRegistry_SetStateBumpsGeneration(t *testing.T) {
	r := NewRegistry()
	r.Upsert(PeripheralInfo{ID: "A"})
	e := r.get("A")

	g := e.generation
	r.setState(e, Connecting)
	assert.Equal(t, g+1, e.generation)
	assert.Equal(t, Connecting, r.All()[0].State)
}

func TestRegistry_EmptySnapshot(t *testing.T) {
	r := NewRegistry()
	assert.NotNil(t, r.All())
	assert.Equal(t, 0, r.Len())
}

func TestMessageLog(t *testing.T) {
	l := NewMessageLog()

	_, ok := l.Get("A")
	assert.False(t, ok)

	l.Set("A", "hello")
	l.Set("A", "world")
	l.Set("B", "other")

	text, ok := l.Get("A")
	assert.True(t, ok)
	assert.Equal(t, "world", text)
	assert.Equal(t, 2, l.Len())

	l.Remove("A")
	_, ok = l.Get("A")
	assert.False(t, ok)
	assert.Equal(t, 1, l.Len())
}

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		expected string
	}{
		{Discovered, "discovered"},
		{Connecting, "connecting"},
		{ServicesDiscovering, "services_discovering"},
		{CharacteristicDiscovering, "characteristic_discovering"},
		{Subscribing, "subscribing"},
		{Subscribed, "subscribed"},
		{Disconnecting, "disconnecting"},
		{ConnectionState(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestConnectionState_LinkUp(t *testing.T) {
	assert.False(t, Discovered.linkUp())
	assert.False(t, Connecting.linkUp())
	for _, s := range []ConnectionState{ServicesDiscovering, CharacteristicDiscovering, Subscribing, Subscribed, Disconnecting} {
		assert.True(t, s.linkUp(), s.String())
	}
}

func TestAdapterState_Unavailable(t *testing.T) {
	tests := []struct {
		state       AdapterState
		unavailable bool
	}{
		{AdapterUnknown, false},
		{AdapterResetting, false},
		{AdapterUnsupported, true},
		{AdapterUnauthorized, true},
		{AdapterPoweredOff, true},
		{AdapterPoweredOn, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.unavailable, tt.state.unavailable())
		})
	}
}

func TestPeripheralInfo_DisplayName(t *testing.T) {
	assert.Equal(t, "Sensor", PeripheralInfo{ID: "A", Name: "Sensor"}.DisplayName())
	assert.Equal(t, "A", PeripheralInfo{ID: "A"}.DisplayName())
}

func TestCharacteristicRef_Same(t *testing.T) {
	svc := ServiceRef{UUID: DefaultServiceUUID, Handle: 10}
	a := CharacteristicRef{Service: svc, UUID: DefaultCharacteristicUUID, Handle: 12}

	assert.True(t, a.Same(a))

	b := a
	b.Handle = 14
	assert.False(t, a.Same(b))

	c := a
	c.Service.UUID = DefaultCharacteristicUUID
	assert.False(t, a.Same(c))

	// Same characteristic UUID and handle under another instance of the service.
	d := a
	d.Service.Handle = 20
	assert.False(t, a.Same(d))
}
