package mem

import (
	"fmt"
	"io"
)

// MapSnapshot is the observable state of one block map.
type MapSnapshot struct {
	BlockSize uint32 `json:"block_size"`
	Count     uint32 `json:"count"`
	FreeCount uint32 `json:"free_count"`
	FirstFree uint32 `json:"first_free"`
}

// HeapSnapshot is the observable state of one heap.
type HeapSnapshot struct {
	Zone  string        `json:"zone"`
	Index int           `json:"index"`
	Base  uint32        `json:"base"`
	Size  uint32        `json:"size"`
	Caps  uint32        `json:"caps"`
	Used  uint32        `json:"used"`
	Free  uint32        `json:"free"`
	Maps  []MapSnapshot `json:"maps,omitempty"`
}

// Snapshot captures the state of every heap under the global lock. The
// result is a copy; the inspector serves it without touching live
// descriptors.
func (m *MemMap) Snapshot() []HeapSnapshot {
	irq := m.lock.LockIRQSave()
	defer m.lock.UnlockIRQRestore(irq)

	var out []HeapSnapshot
	groups := []struct {
		heaps []heap
	}{
		{m.system}, {m.systemRuntime}, {m.runtime}, {m.buffer},
	}
	for _, g := range groups {
		for i := range g.heaps {
			out = append(out, snapshotHeap(&g.heaps[i], i))
		}
	}
	return out
}

func snapshotHeap(h *heap, index int) HeapSnapshot {
	s := HeapSnapshot{
		Zone:  h.zone.String(),
		Index: index,
		Base:  h.base,
		Size:  h.size,
		Caps:  h.caps,
		Used:  h.info.used,
		Free:  h.info.free,
	}
	for i := range h.maps {
		mp := &h.maps[i]
		s.Maps = append(s.Maps, MapSnapshot{
			BlockSize: mp.blockSize,
			Count:     mp.count,
			FreeCount: mp.freeCount,
			FirstFree: mp.firstFree,
		})
	}
	return s
}

// HeapTrace emits a usage summary of every heap into the trace ring when
// heap state changed or an allocation failed since the last call, and clears
// the dirty flag.
func (m *MemMap) HeapTrace() {
	irq := m.lock.LockIRQSave()
	defer m.lock.UnlockIRQRestore(irq)

	if !m.traceDirty {
		return
	}
	for i := range m.system {
		m.dumpHeapLocked(&m.system[i])
	}
	for _, h := range m.blockHeaps() {
		m.dumpHeapLocked(h)
	}
	m.traceDirty = false
}

// dumpHeapLocked traces one heap's usage counters and per-map occupancy.
func (m *MemMap) dumpHeapLocked(h *heap) {
	m.tr.Event(traceClass, "heap %v base=0x%x size=%d caps=0x%x used=%d free=%d",
		h.zone, h.base, h.size, h.caps, h.info.used, h.info.free)
	for i := range h.maps {
		mp := &h.maps[i]
		m.tr.Event(traceClass, "  map %d block=%d count=%d free=%d first=%d",
			i, mp.blockSize, mp.count, mp.freeCount, mp.firstFree)
	}
}

// WriteDump writes the raw contents of every heap region to w, each region
// preceded by a one-line header. The memory is read under the global lock
// region by region.
func (m *MemMap) WriteDump(w io.Writer) error {
	snaps := m.Snapshot()
	for _, s := range snaps {
		if _, err := fmt.Fprintf(w, "heap %s[%d] base=0x%x size=%d\n", s.Zone, s.Index, s.Base, s.Size); err != nil {
			return err
		}
		buf := make([]byte, s.Size)
		irq := m.lock.LockIRQSave()
		err := m.plat.Memory().ReadAt(s.Base, buf)
		m.lock.UnlockIRQRestore(irq)
		if err != nil {
			return err
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
