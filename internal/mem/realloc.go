package mem

// Realloc resizes an allocation by allocating from the zone, copying and
// freeing the old region, all under the global lock. On failure the old
// pointer is preserved untouched and zero is returned. The copy length is
// min(new, old): the old size is recovered from the block header.
func (m *MemMap) Realloc(ptr uint32, zone Zone, flags, caps, bytes uint32) uint32 {
	if bytes == 0 {
		return 0
	}
	irq := m.lock.LockIRQSave()
	defer m.lock.UnlockIRQRestore(irq)

	next := m.allocLocked(zone, caps, bytes)
	return m.moveLocked(ptr, next, flags, bytes)
}

// ReallocBufferAligned is Realloc over the buffer policy with an explicit
// power-of-two alignment.
func (m *MemMap) ReallocBufferAligned(ptr uint32, flags, caps, bytes, align uint32) uint32 {
	if bytes == 0 {
		return 0
	}
	align = normalizeAlign(align)
	if !isPowerOfTwo(align) {
		m.tr.Error(traceClass, "buffer realloc: %v (align=%d)", ErrnoBadAlignment, align)
		return 0
	}
	irq := m.lock.LockIRQSave()
	defer m.lock.UnlockIRQRestore(irq)

	next := m.allocBufferLocked(caps, bytes, align)
	return m.moveLocked(ptr, next, flags, bytes)
}

// moveLocked completes a realloc: copy into the fresh region, release the
// old one, apply the shared remap.
func (m *MemMap) moveLocked(ptr, next, flags, bytes uint32) uint32 {
	if next == 0 {
		return 0
	}
	if ptr != 0 {
		old := m.plat.FreePrepare(ptr)
		n := bytes
		if size := m.allocSizeLocked(old); size > 0 && size < n {
			n = size
		}
		m.copy(next, old, n)
		m.freeLocked(ptr)
	}
	return m.finish(next, flags, bytes)
}

// allocSizeLocked recovers the byte size recorded for a live allocation, or
// zero when the address does not resolve to one.
func (m *MemMap) allocSizeLocked(addr uint32) uint32 {
	h := m.heapFromPtr(addr)
	if h == nil {
		return 0
	}
	mp := h.mapFor(addr)
	if mp == nil {
		return 0
	}
	idx := (addr - mp.base) / mp.blockSize
	hdr := &mp.blocks[idx]
	if hdr.unalignedBase != 0 && hdr.unalignedBase != addr {
		idx = (hdr.unalignedBase - mp.base) / mp.blockSize
		hdr = &mp.blocks[idx]
	}
	if !hdr.used {
		return 0
	}
	return hdr.bytes
}

// copy moves n bytes between two live, non-overlapping regions through the
// physical memory backing.
func (m *MemMap) copy(dst, src, n uint32) {
	if n == 0 {
		return
	}
	buf := make([]byte, n)
	if err := m.plat.Memory().ReadAt(src, buf); err != nil {
		m.tr.Error(traceClass, "realloc copy: %v (src=0x%x n=%d)", ErrnoOutOfBounds, src, n)
		return
	}
	if err := m.plat.Memory().WriteAt(dst, buf); err != nil {
		m.tr.Error(traceClass, "realloc copy: %v (dst=0x%x n=%d)", ErrnoOutOfBounds, dst, n)
	}
}
