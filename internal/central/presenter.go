package central

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/ringchan"
)

// Observer is the presentation collaborator. All methods are called from a single
// presenter goroutine, never from the worker, in the order the worker produced them.
type Observer interface {
	OnPeripheralListChanged(peripherals []PeripheralInfo)
	OnMessageReceived(id Identity, text string)
	// OnReadyToSend signals that id has a subscribed characteristic available for writes.
	OnReadyToSend(id Identity)
	OnError(id Identity, err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	PeripheralListChanged func(peripherals []PeripheralInfo)
	MessageReceived       func(id Identity, text string)
	ReadyToSend           func(id Identity)
	Error                 func(id Identity, err error)
}

func (f ObserverFuncs) OnPeripheralListChanged(peripherals []PeripheralInfo) {
	if f.PeripheralListChanged != nil {
		f.PeripheralListChanged(peripherals)
	}
}

func (f ObserverFuncs) OnMessageReceived(id Identity, text string) {
	if f.MessageReceived != nil {
		f.MessageReceived(id, text)
	}
}

func (f ObserverFuncs) OnReadyToSend(id Identity) {
	if f.ReadyToSend != nil {
		f.ReadyToSend(id)
	}
}

func (f ObserverFuncs) OnError(id Identity, err error) {
	if f.Error != nil {
		f.Error(id, err)
	}
}

type noticeKind int

const (
	noticeListChanged noticeKind = iota
	noticeMessage
	noticeReady
	noticeError
)

type notice struct {
	kind        noticeKind
	peripherals []PeripheralInfo
	peripheral  Identity
	text        string
	err         error
}

// presenter hands notices from the worker to the observer through a drop-oldest queue,
// so a slow observer can never stall radio processing.
type presenter struct {
	observer Observer
	queue    *ringchan.RingChannel[notice]
	logger   *logrus.Logger
}

func newPresenter(observer Observer, capacity int, logger *logrus.Logger) *presenter {
	if observer == nil {
		observer = ObserverFuncs{}
	}
	return &presenter{
		observer: observer,
		queue:    ringchan.New[notice](capacity),
		logger:   logger,
	}
}

// run delivers notices until the queue is closed and drained.
func (p *presenter) run(_ context.Context) {
	for n := range p.queue.C() {
		switch n.kind {
		case noticeListChanged:
			p.observer.OnPeripheralListChanged(n.peripherals)
		case noticeMessage:
			p.observer.OnMessageReceived(n.peripheral, n.text)
		case noticeReady:
			p.observer.OnReadyToSend(n.peripheral)
		case noticeError:
			p.observer.OnError(n.peripheral, n.err)
		}
	}
	p.logger.Debug("Presenter drained")
}

func (p *presenter) post(n notice) {
	if p.queue.ForceSend(n) {
		p.logger.WithField("capacity", p.queue.Cap()).Warn("Presentation queue full, dropped oldest notice")
	}
}

func (p *presenter) listChanged(peripherals []PeripheralInfo) {
	p.post(notice{kind: noticeListChanged, peripherals: peripherals})
}

func (p *presenter) messageReceived(id Identity, text string) {
	p.post(notice{kind: noticeMessage, peripheral: id, text: text})
}

func (p *presenter) readyToSend(id Identity) {
	p.post(notice{kind: noticeReady, peripheral: id})
}

func (p *presenter) reportError(id Identity, err error) {
	p.post(notice{kind: noticeError, peripheral: id, err: err})
}

func (p *presenter) close() {
	p.queue.Close()
}
