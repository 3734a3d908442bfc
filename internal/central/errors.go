package central

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported by the manager.
type ErrorKind string

const (
	AdapterUnavailable            ErrorKind = "adapter_unavailable"
	ConnectFailed                 ErrorKind = "connect_failed"
	ServiceDiscoveryFailed        ErrorKind = "service_discovery_failed"
	CharacteristicDiscoveryFailed ErrorKind = "characteristic_discovery_failed"
	NotificationStateChangeFailed ErrorKind = "notification_state_change_failed"
	DecodeFailed                  ErrorKind = "decode_failed"
)

// Error is a classified failure, optionally tied to a peripheral.
type Error struct {
	Kind       ErrorKind
	Peripheral Identity
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Kind)
	if e.Peripheral != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Peripheral)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per kind
var (
	ErrAdapterUnavailable            = &Error{Kind: AdapterUnavailable}
	ErrConnectFailed                 = &Error{Kind: ConnectFailed}
	ErrServiceDiscoveryFailed        = &Error{Kind: ServiceDiscoveryFailed}
	ErrCharacteristicDiscoveryFailed = &Error{Kind: CharacteristicDiscoveryFailed}
	ErrNotificationStateChangeFailed = &Error{Kind: NotificationStateChangeFailed}
	ErrDecodeFailed                  = &Error{Kind: DecodeFailed}
)

// Causes carried inside an Error
var (
	ErrTimeout  = errors.New("timeout")
	ErrNotFound = errors.New("not found")
)

func newError(kind ErrorKind, id Identity, err error) *Error {
	return &Error{Kind: kind, Peripheral: id, Err: err}
}

// IsKind reports whether err is an Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind == kind
	}
	return false
}
