package syncclient

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerCollapsesBurst(t *testing.T) {
	d := NewDebouncer()
	defer d.Stop()

	var calls atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		n := int32(i)
		d.Arm("pages", 50*time.Millisecond, func() {
			calls.Add(1)
			last.Store(n)
		})
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, d.Pending("pages"))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(5), last.Load())
	assert.False(t, d.Pending("pages"))
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer()
	defer d.Stop()

	var pages, folders atomic.Int32
	d.Arm("pages", 20*time.Millisecond, func() { pages.Add(1) })
	d.Arm("folders", 20*time.Millisecond, func() { folders.Add(1) })

	require.Eventually(t, func() bool { return pages.Load() == 1 && folders.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer()
	defer d.Stop()

	var calls atomic.Int32
	d.Arm("pages", 30*time.Millisecond, func() { calls.Add(1) })
	assert.True(t, d.Cancel("pages"))
	assert.False(t, d.Cancel("pages"))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDebouncerIgnoresArmAfterStop(t *testing.T) {
	d := NewDebouncer()
	var calls atomic.Int32
	d.Arm("pages", 30*time.Millisecond, func() { calls.Add(1) })
	d.Stop()
	d.Arm("pages", 10*time.Millisecond, func() { calls.Add(1) })

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.False(t, d.Pending("pages"))
}
