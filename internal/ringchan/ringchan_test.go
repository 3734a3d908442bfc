package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}

func TestForceSend_DropsOldest(t *testing.T) {
	rc := New[int](3)

	for i := 0; i < 10; i++ {
		rc.ForceSend(i)
	}
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}

	assert.Equal(t, []int{7, 8, 9}, got)
	m := rc.Metrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
}

func TestForceSend_ReportsDrop(t *testing.T) {
	rc := New[string](1)

	assert.False(t, rc.ForceSend("a"))
	assert.True(t, rc.ForceSend("b"))

	v, ok := <-rc.C()
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestTrySend_FullBuffer(t *testing.T) {
	rc := New[int](1)

	assert.True(t, rc.TrySend(1))
	assert.False(t, rc.TrySend(2))
	assert.Equal(t, 1, rc.Len())
	assert.Equal(t, 1, rc.Cap())
}
