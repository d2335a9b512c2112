package mem

import "github.com/pnx9/sof/internal/platform"

// Free releases an allocation. Freeing zero is a no-op; an address outside
// every known heap is a caller error, trace-logged without crashing the DSP;
// an address inside the calling core's system heap, or one that does not
// resolve to a block base, is corruption and panics.
func (m *MemMap) Free(ptr uint32) {
	if ptr == 0 {
		return
	}
	irq := m.lock.LockIRQSave()
	defer m.lock.UnlockIRQRestore(irq)

	m.freeLocked(ptr)
}

// freeLocked is the free path with the global lock held.
func (m *MemMap) freeLocked(ptr uint32) {
	addr := m.plat.FreePrepare(ptr)

	sys := &m.system[m.plat.CPUID()]
	if sys.contains(addr) {
		m.plat.Panic(platform.PanicCodeMem)
		return
	}

	h := m.heapFromPtr(addr)
	if h == nil {
		m.tr.Error(traceClass, "free: %v (ptr=0x%x)", ErrnoInvalidFree, ptr)
		return
	}
	mp := h.mapFor(addr)
	if mp == nil {
		m.tr.Error(traceClass, "free: %v (ptr=0x%x)", ErrnoInvalidFree, ptr)
		return
	}

	idx := (addr - mp.base) / mp.blockSize
	hdr := &mp.blocks[idx]

	// An aligned pointer, or a pointer interior to a contiguous run, carries
	// the run's raw base in its header. Redirect the free there.
	if hdr.unalignedBase != 0 && hdr.unalignedBase != addr {
		addr = hdr.unalignedBase
		idx = (addr - mp.base) / mp.blockSize
		hdr = &mp.blocks[idx]
	}
	if addr != mp.blockBase(idx) {
		m.plat.Panic(platform.PanicCodeMem)
		return
	}

	if !hdr.used {
		// Stale free: the block was already released. The allocator state is
		// left as is; with poisoning on, the pattern check below confirms
		// whether this is a double free.
		m.tr.Error(traceClass, "free: %v (ptr=0x%x)", ErrnoInvalidFree, ptr)
		if m.poison {
			m.checkPoison(mp, idx, 1)
			m.fill(mp.blockBase(idx), mp.blockSize, PoisonByte)
		}
		return
	}

	run := uint32(hdr.run)
	if run == 0 {
		// A used block whose header carries no run length is not the first
		// block of any allocation.
		m.plat.Panic(platform.PanicCodeMem)
		return
	}
	released := mp.releaseRun(idx, run)
	h.account(-int64(released))

	if m.poison {
		m.checkPoison(mp, idx, run)
		m.fill(mp.blockBase(idx), run*mp.blockSize, PoisonByte)
	}

	m.traceDirty = true
	h.commit(m.plat)
}

// checkPoison reports a region that already reads back as all-poison as a
// double free. A region that was allocated and never written also reads
// back as all-poison, since InitHeap poisons every block-map heap, and is
// reported the same way.
func (m *MemMap) checkPoison(mp *blockMap, idx, blocks uint32) {
	size := blocks * mp.blockSize
	buf := make([]byte, size)
	if err := m.plat.Memory().ReadAt(mp.blockBase(idx), buf); err != nil {
		m.plat.Panic(platform.PanicCodeMem)
		return
	}
	for _, b := range buf {
		if b != PoisonByte {
			return
		}
	}
	m.tr.Error(traceClass, "free: %v (ptr=0x%x blocks=%d)",
		ErrnoDoubleFree, mp.blockBase(idx), blocks)
}

// FreeHeap re-arms a secondary core's system arena to its boot state so the
// core can be restarted. Only the system zone can be released, and never by
// the master core; misuse panics.
func (m *MemMap) FreeHeap(zone Zone) {
	irq := m.lock.LockIRQSave()
	defer m.lock.UnlockIRQRestore(irq)

	core := m.plat.CPUID()
	if zone != ZoneSys || core == platform.MasterCore {
		m.plat.Panic(platform.PanicCodeMem)
		return
	}
	h := &m.system[core]
	h.info.used = 0
	h.info.free = h.size
	m.traceDirty = true
	h.commit(m.plat)
}
