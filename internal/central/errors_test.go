package central

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsComparesKind(t *testing.T) {
	err := newError(ConnectFailed, "A", errors.New("link refused"))

	assert.True(t, errors.Is(err, ErrConnectFailed))
	assert.False(t, errors.Is(err, ErrServiceDiscoveryFailed))

	wrapped := fmt.Errorf("attempt 2: %w", err)
	assert.True(t, errors.Is(wrapped, ErrConnectFailed))
	assert.True(t, IsKind(wrapped, ConnectFailed))
	assert.False(t, IsKind(errors.New("plain"), ConnectFailed))
}

func TestError_UnwrapsCause(t *testing.T) {
	err := newError(NotificationStateChangeFailed, "A", fmt.Errorf("subscribing: %w", ErrTimeout))

	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "kind only",
			err:      &Error{Kind: AdapterUnavailable},
			expected: "adapter_unavailable",
		},
		{
			name:     "with peripheral",
			err:      &Error{Kind: ConnectFailed, Peripheral: "A"},
			expected: "connect_failed [A]",
		},
		{
			name:     "with peripheral and cause",
			err:      newError(ServiceDiscoveryFailed, "A", ErrNotFound),
			expected: "service_discovery_failed [A]: not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Nil(t *testing.T) {
	var err *Error
	assert.Equal(t, "<nil>", err.Error())
	assert.Nil(t, err.Unwrap())
	assert.False(t, err.Is(ErrConnectFailed))
}
