package mem

import (
	"github.com/pnx9/sof/internal/platform"
	"github.com/pnx9/sof/internal/trace"
)

// traceClass tags all memory-core trace entries.
const traceClass = "mem"

// PoisonByte is the debug pattern written over freed block-map memory. A
// freed region that still reads back as all-poison on the next free is a
// double free.
const PoisonByte byte = 0xA5

// MemMap is the process-wide allocator state: per-core system and
// system-runtime heaps, the shared runtime and buffer heap arrays, and the
// global lock serializing every operation. It is constructed once from the
// static platform layout and never destroyed.
type MemMap struct {
	plat platform.Platform
	tr   *trace.Ring

	system        []heap
	systemRuntime []heap
	runtime       []heap
	buffer        []heap

	lock       platform.SpinLock
	traceDirty bool

	regionBase uint32
	regionSize uint32

	poison    bool
	heapTrace bool
}

// Option configures a MemMap.
type Option func(*MemMap)

// WithPoison enables debug poisoning: freed block-map memory is filled with
// PoisonByte and verified on the next free to detect double frees.
func WithPoison(enabled bool) Option {
	return func(m *MemMap) { m.poison = enabled }
}

// WithHeapTrace enables a full dump of candidate heaps whenever a
// recoverable allocation fails.
func WithHeapTrace(enabled bool) Option {
	return func(m *MemMap) { m.heapTrace = enabled }
}

// WithTrace routes trace output to the given ring instead of a private one.
func WithTrace(r *trace.Ring) Option {
	return func(m *MemMap) { m.tr = r }
}

// InitHeap builds the allocator state from the static layout. It panics with
// the init panic code when the layout contradicts the linker-placed system
// heap base or a heap's block maps do not partition its region, and with the
// memory panic code when the layout exceeds the physical address space.
// The debug poison pattern, when enabled, is written across every block-map
// heap region before first use.
func InitHeap(p platform.Platform, layout platform.Layout, opts ...Option) *MemMap {
	m := &MemMap{plat: p}
	for _, opt := range opts {
		opt(m)
	}
	if m.tr == nil {
		m.tr = trace.NewRing(1024)
	}

	if len(layout.System) == 0 || layout.System[0].Base != p.SystemHeapStart() {
		p.Panic(platform.PanicCodeInit)
		return nil
	}
	if uint32(len(layout.System)) != layout.Cores ||
		uint32(len(layout.SystemRuntime)) != layout.Cores {
		p.Panic(platform.PanicCodeInit)
		return nil
	}

	for _, desc := range layout.System {
		m.system = append(m.system, newHeap(ZoneSys, desc))
	}
	for _, desc := range layout.SystemRuntime {
		m.systemRuntime = append(m.systemRuntime, newHeap(ZoneSysRuntime, desc))
	}
	for _, desc := range layout.Runtime {
		m.runtime = append(m.runtime, newHeap(ZoneRuntime, desc))
	}
	for _, desc := range layout.Buffer {
		m.buffer = append(m.buffer, newHeap(ZoneBuffer, desc))
	}

	m.regionBase = layout.System[0].Base
	m.regionSize = layout.End() - m.regionBase
	if layout.End() > p.Memory().Size() {
		p.Panic(platform.PanicCodeMem)
		return nil
	}

	for _, h := range m.blockHeaps() {
		if err := m.validateHeap(h); err != ErrnoNone {
			p.Panic(platform.PanicCodeInit)
			return nil
		}
		if m.poison {
			m.fill(h.base, h.size, PoisonByte)
		}
	}

	m.lock.Init()
	m.commitAll()
	return m
}

// validateHeap checks that a heap's block maps exactly partition its region
// and use power-of-two block sizes.
func (m *MemMap) validateHeap(h *heap) Errno {
	next := h.base
	for i := range h.maps {
		mp := &h.maps[i]
		if !isPowerOfTwo(mp.blockSize) || mp.base != next {
			return ErrnoOutOfBounds
		}
		next = mp.end()
	}
	if next != h.base+h.size {
		return ErrnoOutOfBounds
	}
	return ErrnoNone
}

// blockHeaps returns every heap backed by block maps, in selection order.
func (m *MemMap) blockHeaps() []*heap {
	out := make([]*heap, 0, len(m.systemRuntime)+len(m.runtime)+len(m.buffer))
	for i := range m.systemRuntime {
		out = append(out, &m.systemRuntime[i])
	}
	for i := range m.runtime {
		out = append(out, &m.runtime[i])
	}
	for i := range m.buffer {
		out = append(out, &m.buffer[i])
	}
	return out
}

// selectRuntimeHeap picks the heap serving a runtime-zone request: the first
// runtime heap whose capabilities cover the request, falling through to the
// buffer array under the same rule. Returns nil when no heap qualifies.
func (m *MemMap) selectRuntimeHeap(caps uint32) *heap {
	for i := range m.runtime {
		if m.runtime[i].covers(caps) {
			return &m.runtime[i]
		}
	}
	for i := range m.buffer {
		if m.buffer[i].covers(caps) {
			return &m.buffer[i]
		}
	}
	return nil
}

// heapFromPtr looks up the heap owning addr by address range: the current
// core's system-runtime heap first, then the runtime and buffer arrays.
// Returns nil on miss; the system heaps are deliberately excluded, the free
// path treats them separately.
func (m *MemMap) heapFromPtr(addr uint32) *heap {
	if h := &m.systemRuntime[m.plat.CPUID()]; h.contains(addr) {
		return h
	}
	for i := range m.runtime {
		if m.runtime[i].contains(addr) {
			return &m.runtime[i]
		}
	}
	for i := range m.buffer {
		if m.buffer[i].contains(addr) {
			return &m.buffer[i]
		}
	}
	return nil
}

// commitAll publishes the whole descriptor state; InitHeap calls it once the
// heaps are built.
func (m *MemMap) commitAll() {
	m.plat.SharedCommit(m.regionBase, m.regionSize)
}

// fill writes the byte pattern over physical memory, panicking on a range
// violation: the layout was validated against the address space at init, so
// a miss here is corruption.
func (m *MemMap) fill(addr, size uint32, value byte) {
	if err := m.plat.Memory().Fill(addr, size, value); err != nil {
		m.plat.Panic(platform.PanicCodeMem)
	}
}

// Platform returns the platform the memory map was built on.
func (m *MemMap) Platform() platform.Platform {
	return m.plat
}

// Trace returns the trace ring the core reports into.
func (m *MemMap) Trace() *trace.Ring {
	return m.tr
}

// PMContextSave is the power-management save hook. Unsupported: the core
// holds no state that survives a power cycle.
func (m *MemMap) PMContextSave() error {
	return ErrPMUnsupported
}

// PMContextRestore is the power-management restore hook. Unsupported.
func (m *MemMap) PMContextRestore() error {
	return ErrPMUnsupported
}
