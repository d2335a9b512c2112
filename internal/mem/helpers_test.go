package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnx9/sof/internal/platform"
	"github.com/pnx9/sof/internal/trace"
)

const (
	testCaps       = platform.CapRAM | platform.CapCache
	testBufferCaps = platform.CapRAM | platform.CapCache | platform.CapDMA
)

// smallLayout is a single-core map whose buffer heap carries the given block
// maps, for scenario tests that reason about individual blocks.
func smallLayout(bufBase uint32, blocks []platform.BlockDesc) platform.Layout {
	size := uint32(0)
	for _, b := range blocks {
		size += b.Size * b.Count
	}
	return platform.Layout{
		Cores: 1,
		System: []platform.HeapDesc{
			{Base: 0x1000, Size: 0x1000, Caps: testCaps},
		},
		SystemRuntime: []platform.HeapDesc{
			{Base: 0x2000, Size: 0x2000, Caps: testCaps,
				Blocks: []platform.BlockDesc{{Size: 64, Count: 128}}},
		},
		Runtime: []platform.HeapDesc{
			{Base: 0x4000, Size: 0x2000, Caps: testCaps,
				Blocks: []platform.BlockDesc{{Size: 64, Count: 64}, {Size: 128, Count: 32}}},
		},
		Buffer: []platform.HeapDesc{
			{Base: bufBase, Size: size, Caps: testBufferCaps, Blocks: blocks},
		},
	}
}

func newTestHost(layout platform.Layout) *platform.Host {
	return platform.NewHost(
		platform.NewSliceMemory(0x10_0000),
		platform.WithCores(layout.Cores),
		platform.WithSystemHeapStart(layout.System[0].Base),
	)
}

func newTestMap(t *testing.T, layout platform.Layout, opts ...Option) (*MemMap, *platform.Host) {
	t.Helper()
	host := newTestHost(layout)
	ring := trace.NewRing(256)
	m := InitHeap(host, layout, append([]Option{WithTrace(ring)}, opts...)...)
	require.NotNil(t, m)
	return m, host
}

// assertPanicCode asserts fn panics with the given platform panic code.
func assertPanicCode(t *testing.T, code uint32, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a platform panic")
		pe, ok := r.(*platform.PanicError)
		require.True(t, ok, "expected *platform.PanicError, got %T", r)
		assert.Equal(t, code, pe.Code)
	}()
	fn()
}

// checkInvariants verifies the block-map and heap bookkeeping invariants.
func checkInvariants(t *testing.T, m *MemMap) {
	t.Helper()
	for _, h := range m.blockHeaps() {
		accounted := uint32(0)
		for i := range h.maps {
			mp := &h.maps[i]
			free := uint32(0)
			for _, b := range mp.blocks {
				if !b.used {
					free++
				}
			}
			assert.Equal(t, free, mp.freeCount, "free_count mismatch in %v map %d", h.zone, i)
			require.LessOrEqual(t, mp.firstFree, mp.count)
			if mp.firstFree < mp.count {
				assert.False(t, mp.blocks[mp.firstFree].used, "first_free points at a used block")
			}
			for j := uint32(0); j < mp.firstFree; j++ {
				assert.True(t, mp.blocks[j].used, "free block below first_free")
			}
			accounted += mp.blockSize * (mp.count - mp.freeCount)
		}
		assert.Equal(t, accounted, h.info.used, "heap used counter mismatch in %v", h.zone)
		assert.LessOrEqual(t, h.info.used+h.info.free, h.size)
	}
}

// errorCount returns the number of error entries in the memory map's ring.
func errorCount(m *MemMap) uint64 {
	_, errs := m.Trace().Stats()
	return errs
}
