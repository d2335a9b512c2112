package mem

import "github.com/pnx9/sof/internal/platform"

// Alloc allocates bytes from the given zone. Runtime and buffer exhaustion
// returns zero and emits a trace error; system-zone exhaustion panics, since
// boot-time code has no recovery path. With FlagShared the returned address
// is the shared coherent view.
func (m *MemMap) Alloc(zone Zone, flags, caps, bytes uint32) uint32 {
	if bytes == 0 {
		return 0
	}
	irq := m.lock.LockIRQSave()
	defer m.lock.UnlockIRQRestore(irq)

	ptr := m.allocLocked(zone, caps, bytes)
	return m.finish(ptr, flags, bytes)
}

// AllocZeroed is Alloc with the returned region zeroed before any shared
// remapping.
func (m *MemMap) AllocZeroed(zone Zone, flags, caps, bytes uint32) uint32 {
	if bytes == 0 {
		return 0
	}
	irq := m.lock.LockIRQSave()
	defer m.lock.UnlockIRQRestore(irq)

	ptr := m.allocLocked(zone, caps, bytes)
	if ptr != 0 {
		m.fill(ptr, bytes, 0)
	}
	return m.finish(ptr, flags, bytes)
}

// AllocBufferAligned allocates a buffer-zone region aligned to the given
// power of two. Alignment zero selects the data-cache line size. Returns
// zero on exhaustion or invalid alignment.
func (m *MemMap) AllocBufferAligned(flags, caps, bytes, align uint32) uint32 {
	if bytes == 0 {
		return 0
	}
	align = normalizeAlign(align)
	if !isPowerOfTwo(align) {
		m.tr.Error(traceClass, "buffer alloc: %v (align=%d)", ErrnoBadAlignment, align)
		return 0
	}
	irq := m.lock.LockIRQSave()
	defer m.lock.UnlockIRQRestore(irq)

	ptr := m.allocBufferLocked(caps, bytes, align)
	return m.finish(ptr, flags, bytes)
}

// AllocZeroedCoreSys allocates zeroed system-zone memory on behalf of the
// given core, panicking on exhaustion. Used by the master core to seed
// secondary-core state before the core is started.
func (m *MemMap) AllocZeroedCoreSys(core, bytes uint32) uint32 {
	if bytes == 0 {
		return 0
	}
	irq := m.lock.LockIRQSave()
	defer m.lock.UnlockIRQRestore(irq)

	if core >= uint32(len(m.system)) {
		m.plat.Panic(platform.PanicCodeMem)
		return 0
	}
	ptr := m.sysAllocLocked(&m.system[core], bytes)
	if ptr != 0 {
		m.fill(ptr, bytes, 0)
	}
	return ptr
}

// normalizeAlign maps the default alignment request to the cache line size.
func normalizeAlign(align uint32) uint32 {
	if align == 0 {
		return platform.DcacheAlign
	}
	return align
}

// finish applies the shared remap to a successful allocation.
func (m *MemMap) finish(ptr, flags, bytes uint32) uint32 {
	if ptr != 0 && flags&FlagShared != 0 {
		ptr = m.plat.SharedGet(ptr, bytes)
	}
	return ptr
}

// allocLocked dispatches an allocation with the global lock held. Buffer
// requests use the default cache-line alignment; AllocBufferAligned passes
// an explicit alignment through allocBufferLocked instead.
func (m *MemMap) allocLocked(zone Zone, caps, bytes uint32) uint32 {
	switch zone {
	case ZoneSys:
		h := &m.system[m.plat.CPUID()]
		if !h.covers(caps) {
			m.plat.Panic(platform.PanicCodeMem)
			return 0
		}
		return m.sysAllocLocked(h, bytes)

	case ZoneSysRuntime:
		h := &m.systemRuntime[m.plat.CPUID()]
		if !h.covers(caps) {
			m.plat.Panic(platform.PanicCodeMem)
			return 0
		}
		ptr := h.allocBlockMem(bytes, 1)
		m.finishHeapAlloc(h, ptr, zone, caps, bytes)
		return ptr

	case ZoneRuntime:
		h := m.selectRuntimeHeap(caps)
		if h == nil {
			m.traceOOM(zone, caps, bytes, nil)
			return 0
		}
		ptr := h.allocBlockMem(bytes, 1)
		m.finishHeapAlloc(h, ptr, zone, caps, bytes)
		return ptr

	case ZoneBuffer:
		return m.allocBufferLocked(caps, bytes, platform.DcacheAlign)
	}
	m.tr.Error(traceClass, "alloc: unknown zone %d", int(zone))
	return 0
}

// allocBufferLocked walks the buffer heaps in declaration order, retrying
// successive capability-matching heaps on allocation failure.
func (m *MemMap) allocBufferLocked(caps, bytes, align uint32) uint32 {
	var candidates []*heap
	for i := range m.buffer {
		h := &m.buffer[i]
		if !h.covers(caps) {
			continue
		}
		candidates = append(candidates, h)
		if ptr := h.allocBufferMem(bytes, align); ptr != 0 {
			m.traceDirty = true
			h.commit(m.plat)
			return ptr
		}
	}
	m.traceOOM(ZoneBuffer, caps, bytes, candidates)
	return 0
}

// finishHeapAlloc commits a block-map heap after an allocation attempt and
// traces the failure path.
func (m *MemMap) finishHeapAlloc(h *heap, ptr uint32, zone Zone, caps, bytes uint32) {
	if ptr == 0 {
		m.traceOOM(zone, caps, bytes, []*heap{h})
		return
	}
	m.traceDirty = true
	h.commit(m.plat)
}

// sysAllocLocked serves the system bump arena: no free list, no headers,
// alignment to the cache line, panic on exhaustion.
func (m *MemMap) sysAllocLocked(h *heap, bytes uint32) uint32 {
	ptr := alignUp(h.base+h.info.used, platform.DcacheAlign)
	end := ptr + bytes
	if end > h.base+h.size || end < ptr {
		m.plat.Panic(platform.PanicCodeMem)
		return 0
	}
	h.info.used = end - h.base
	h.info.free = h.size - h.info.used
	m.traceDirty = true
	h.commit(m.plat)
	return ptr
}

// traceOOM reports a recoverable allocation failure, with a dump of the
// candidate heaps when debug heap tracing is on.
func (m *MemMap) traceOOM(zone Zone, caps, bytes uint32, candidates []*heap) {
	m.tr.Error(traceClass, "alloc failed: %v (zone=%v caps=0x%x bytes=%d)",
		ErrnoExhausted, zone, caps, bytes)
	if m.heapTrace {
		for _, h := range candidates {
			m.dumpHeapLocked(h)
		}
	}
	m.traceDirty = true
}
