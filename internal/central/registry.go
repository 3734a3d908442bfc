package central

import (
	"sync/atomic"

	"github.com/cornelk/hashmap"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ----------------------------
// Connection Registry
// ----------------------------

// entry is the worker-owned state of one peripheral.
type entry struct {
	info PeripheralInfo

	// transfer is the subscribed characteristic; set from characteristic discovery
	// until teardown or service invalidation.
	transfer  *CharacteristicRef
	notifying bool
	// rearming is set while a re-arm request awaits its NotifyStateChanged.
	rearming bool

	// pendingDiscoveries counts outstanding characteristic discovery requests.
	pendingDiscoveries int

	// generation changes on every state transition; timers carry it to detect staleness.
	generation uint64
}

// Registry holds the known peripherals in insertion order.
//
// Mutations happen only on the manager's worker goroutine. Every mutation publishes an
// immutable snapshot, so All and Len may be called from any goroutine without locking.
type Registry struct {
	entries  *orderedmap.OrderedMap[Identity, *entry]
	snapshot atomic.Pointer[[]PeripheralInfo]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		entries: orderedmap.New[Identity, *entry](),
	}
	r.publish()
	return r
}

// Upsert registers info.ID or refreshes its name. It reports whether a new entry was created.
// An existing entry keeps its state and RSSI; an empty name never overwrites a known one.
func (r *Registry) Upsert(info PeripheralInfo) bool {
	return r.upsert(info, false)
}

// Observe is Upsert for a sighting that carries a signal reading: info.RSSI always
// replaces the stored value, 0 dBm included.
func (r *Registry) Observe(info PeripheralInfo) bool {
	return r.upsert(info, true)
}

func (r *Registry) upsert(info PeripheralInfo, hasRSSI bool) bool {
	if e, ok := r.entries.Get(info.ID); ok {
		if info.Name != "" {
			e.info.Name = info.Name
		}
		if hasRSSI {
			e.info.RSSI = info.RSSI
		}
		r.publish()
		return false
	}

	r.entries.Set(info.ID, &entry{info: info})
	r.publish()
	return true
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(id Identity) bool {
	_, ok := r.entries.Delete(id)
	if ok {
		r.publish()
	}
	return ok
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id Identity) bool {
	_, ok := r.entries.Get(id)
	return ok
}

// All returns the latest snapshot in insertion order. The slice must not be modified.
func (r *Registry) All() []PeripheralInfo {
	return *r.snapshot.Load()
}

// Len returns the number of entries in the latest snapshot.
func (r *Registry) Len() int {
	return len(*r.snapshot.Load())
}

func (r *Registry) get(id Identity) *entry {
	e, _ := r.entries.Get(id)
	return e
}

func (r *Registry) setState(e *entry, state ConnectionState) {
	e.info.State = state
	e.generation++
	r.publish()
}

func (r *Registry) ids() []Identity {
	ids := make([]Identity, 0, r.entries.Len())
	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

func (r *Registry) publish() {
	list := make([]PeripheralInfo, 0, r.entries.Len())
	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, pair.Value.info)
	}
	r.snapshot.Store(&list)
}

// ----------------------------
// Received Message Log
// ----------------------------

// MessageLog maps a peripheral to the last text it delivered.
// Written by the worker, readable from any goroutine.
type MessageLog struct {
	messages *hashmap.Map[Identity, string]
}

// NewMessageLog creates an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{messages: hashmap.New[Identity, string]()}
}

// Set records text as the last message of id.
func (l *MessageLog) Set(id Identity, text string) {
	l.messages.Set(id, text)
}

// Get returns the last message of id.
func (l *MessageLog) Get(id Identity) (string, bool) {
	return l.messages.Get(id)
}

// Remove forgets id.
func (l *MessageLog) Remove(id Identity) {
	l.messages.Del(id)
}

// Len returns the number of peripherals with a message.
func (l *MessageLog) Len() int {
	return l.messages.Len()
}
