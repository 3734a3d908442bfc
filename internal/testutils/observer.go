package testutils

import (
	"sync"

	"github.com/srg/blecentral/internal/central"
)

// ReceivedMessage is one OnMessageReceived call.
type ReceivedMessage struct {
	Peripheral central.Identity
	Text       string
}

// ReportedError is one OnError call.
type ReportedError struct {
	Peripheral central.Identity
	Err        error
}

// RecordingObserver is a central.Observer that keeps every notification for assertions.
type RecordingObserver struct {
	mu       sync.Mutex
	lists    [][]central.PeripheralInfo
	messages []ReceivedMessage
	ready    []central.Identity
	errors   []ReportedError
}

var _ central.Observer = (*RecordingObserver)(nil)

func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

func (o *RecordingObserver) OnPeripheralListChanged(peripherals []central.PeripheralInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lists = append(o.lists, peripherals)
}

func (o *RecordingObserver) OnMessageReceived(id central.Identity, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, ReceivedMessage{Peripheral: id, Text: text})
}

func (o *RecordingObserver) OnReadyToSend(id central.Identity) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ready = append(o.ready, id)
}

func (o *RecordingObserver) OnError(id central.Identity, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, ReportedError{Peripheral: id, Err: err})
}

// Lists returns every list notification received so far.
func (o *RecordingObserver) Lists() [][]central.PeripheralInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]central.PeripheralInfo(nil), o.lists...)
}

// LastList returns the most recent list, or nil.
func (o *RecordingObserver) LastList() []central.PeripheralInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.lists) == 0 {
		return nil
	}
	return o.lists[len(o.lists)-1]
}

func (o *RecordingObserver) Messages() []ReceivedMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ReceivedMessage(nil), o.messages...)
}

func (o *RecordingObserver) Ready() []central.Identity {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]central.Identity(nil), o.ready...)
}

func (o *RecordingObserver) Errors() []ReportedError {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ReportedError(nil), o.errors...)
}
