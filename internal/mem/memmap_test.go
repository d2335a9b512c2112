package mem

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnx9/sof/internal/platform"
	"github.com/pnx9/sof/internal/trace"
)

func TestInitHeapValidatesLinkerBase(t *testing.T) {
	layout := platform.DefaultLayout()
	host := platform.NewHost(
		platform.NewSliceMemory(0x10_0000),
		platform.WithCores(layout.Cores),
		platform.WithSystemHeapStart(layout.System[0].Base+0x100),
	)
	assertPanicCode(t, platform.PanicCodeInit, func() {
		InitHeap(host, layout)
	})
}

func TestInitHeapRejectsBrokenPartition(t *testing.T) {
	layout := platform.DefaultLayout()
	// A block map that no longer fills its heap region.
	layout.Runtime[0].Blocks = []platform.BlockDesc{{Size: 64, Count: 4}}
	host := newTestHost(layout)
	assertPanicCode(t, platform.PanicCodeInit, func() {
		InitHeap(host, layout)
	})
}

func TestInitHeapRejectsOddBlockSize(t *testing.T) {
	layout := smallLayout(0x8000, []platform.BlockDesc{{Size: 96, Count: 4}})
	host := newTestHost(layout)
	assertPanicCode(t, platform.PanicCodeInit, func() {
		InitHeap(host, layout)
	})
}

func TestInitHeapRejectsUndersizedMemory(t *testing.T) {
	layout := platform.DefaultLayout()
	host := platform.NewHost(
		platform.NewSliceMemory(0x2_0000),
		platform.WithCores(layout.Cores),
		platform.WithSystemHeapStart(layout.System[0].Base),
	)
	assertPanicCode(t, platform.PanicCodeMem, func() {
		InitHeap(host, layout)
	})
}

func TestInitHeapPoisonsBlockHeaps(t *testing.T) {
	layout := smallLayout(0x8000, []platform.BlockDesc{{Size: 64, Count: 4}})
	m, host := newTestMap(t, layout, WithPoison(true))

	for _, h := range m.blockHeaps() {
		buf := make([]byte, h.size)
		require.NoError(t, host.Memory().ReadAt(h.base, buf))
		for i, b := range buf {
			require.Equal(t, PoisonByte, b, "%v heap byte %d not poisoned", h.zone, i)
		}
	}
}

func TestSharedCommitPairing(t *testing.T) {
	layout := smallLayout(0x8000, []platform.BlockDesc{{Size: 64, Count: 4}})
	m, host := newTestMap(t, layout)
	h := &m.buffer[0]

	host.ResetCommits()
	ptr := m.AllocBufferAligned(0, testBufferCaps, 40, 8)
	require.NotZero(t, ptr)
	requireCommitFor(t, host, h.base, h.size)

	host.ResetCommits()
	m.Free(ptr)
	requireCommitFor(t, host, h.base, h.size)
}

func requireCommitFor(t *testing.T, host *platform.Host, base, size uint32) {
	t.Helper()
	for _, c := range host.Commits() {
		if c.Addr == base && c.Size == size {
			return
		}
	}
	t.Fatalf("no SharedCommit recorded for descriptor [0x%x,+%d): %v", base, size, host.Commits())
}

func TestSnapshotReflectsAllocations(t *testing.T) {
	layout := smallLayout(0x8000, []platform.BlockDesc{{Size: 64, Count: 4}})
	m, _ := newTestMap(t, layout)

	require.NotZero(t, m.AllocBufferAligned(0, testBufferCaps, 40, 8))
	snaps := m.Snapshot()

	var buf *HeapSnapshot
	for i := range snaps {
		if snaps[i].Zone == "buffer" {
			buf = &snaps[i]
		}
	}
	require.NotNil(t, buf)
	assert.Equal(t, uint32(64), buf.Used)
	require.Len(t, buf.Maps, 1)
	assert.Equal(t, uint32(3), buf.Maps[0].FreeCount)
	assert.Equal(t, uint32(1), buf.Maps[0].FirstFree)
}

func TestHeapTraceEmitsOnceWhileClean(t *testing.T) {
	m, _ := newTestMap(t, platform.DefaultLayout())

	require.NotZero(t, m.Alloc(ZoneRuntime, 0, platform.CapRAM, 64))
	m.HeapTrace()
	events, _ := m.Trace().Stats()
	require.NotZero(t, events)

	m.HeapTrace()
	again, _ := m.Trace().Stats()
	assert.Equal(t, events, again, "a clean map must not re-dump")

	found := false
	for _, e := range m.Trace().Entries() {
		if e.Level == trace.LevelEvent && strings.Contains(e.Message, "heap runtime") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestWriteDumpCoversHeapRegions(t *testing.T) {
	layout := smallLayout(0x8000, []platform.BlockDesc{{Size: 64, Count: 4}})
	m, host := newTestMap(t, layout)

	ptr := m.AllocBufferAligned(0, testBufferCaps, 8, 8)
	require.NotZero(t, ptr)
	require.NoError(t, host.Memory().WriteAt(ptr, []byte("dumpdata")))

	var out bytes.Buffer
	require.NoError(t, m.WriteDump(&out))
	assert.Contains(t, out.String(), "heap buffer[0] base=0x8000")
	assert.Contains(t, out.String(), "dumpdata")
}

func TestInvariantsUnderRandomChurn(t *testing.T) {
	m, _ := newTestMap(t, platform.DefaultLayout(), WithPoison(true))
	rng := rand.New(rand.NewSource(7))

	var live []uint32
	for i := 0; i < 400; i++ {
		if len(live) > 0 && rng.Intn(2) == 0 {
			j := rng.Intn(len(live))
			m.Free(live[j])
			live = append(live[:j], live[j+1:]...)
		} else {
			size := uint32(1 + rng.Intn(6000))
			align := uint32(1) << rng.Intn(8)
			ptr := m.AllocBufferAligned(0, platform.CapRAM, size, align)
			if ptr != 0 {
				assert.Zero(t, ptr%align)
				live = append(live, ptr)
			}
		}
		checkInvariants(t, m)
	}
	for _, ptr := range live {
		m.Free(ptr)
	}
	checkInvariants(t, m)
}

func TestPMContextStubs(t *testing.T) {
	m, _ := newTestMap(t, platform.DefaultLayout())
	assert.ErrorIs(t, m.PMContextSave(), ErrPMUnsupported)
	assert.ErrorIs(t, m.PMContextRestore(), ErrPMUnsupported)
}
