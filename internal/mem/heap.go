package mem

import "github.com/pnx9/sof/internal/platform"

// heapInfo holds the usage counters of a heap. used and free are byte
// counts; used + free equals the heap size, since alignment padding in the
// bump arena is counted as used.
type heapInfo struct {
	used uint32
	free uint32
}

// heap aggregates one or more block maps over a contiguous region with a
// capability mask. A heap with no block maps is a bump arena (the system
// zone): allocation only, no free list, no per-block headers.
type heap struct {
	zone Zone
	base uint32
	size uint32
	caps uint32
	maps []blockMap
	info heapInfo
}

func newHeap(zone Zone, desc platform.HeapDesc) heap {
	h := heap{
		zone: zone,
		base: desc.Base,
		size: desc.Size,
		caps: desc.Caps,
		info: heapInfo{free: desc.Size},
	}
	// Block map bases chain from the heap base; the maps exactly partition
	// the region.
	base := desc.Base
	for _, b := range desc.Blocks {
		h.maps = append(h.maps, newBlockMap(base, b.Size, b.Count))
		base += b.Size * b.Count
	}
	return h
}

// contains reports whether addr lies inside the heap's region.
func (h *heap) contains(addr uint32) bool {
	return addr >= h.base && addr < h.base+h.size
}

// covers reports whether the heap's capabilities cover the requested bits.
func (h *heap) covers(caps uint32) bool {
	return h.caps&caps == caps
}

// mapFor returns the block map containing addr, or nil.
func (h *heap) mapFor(addr uint32) *blockMap {
	for i := range h.maps {
		if h.maps[i].contains(addr) {
			return &h.maps[i]
		}
	}
	return nil
}

// commit publishes the heap descriptor to other cores.
func (h *heap) commit(p platform.Platform) {
	p.SharedCommit(h.base, h.size)
}

// account moves bytes between the free and used counters. delta is positive
// on allocation, negative on free.
func (h *heap) account(delta int64) {
	if delta >= 0 {
		h.info.used += uint32(delta)
		h.info.free -= uint32(delta)
	} else {
		h.info.used -= uint32(-delta)
		h.info.free += uint32(-delta)
	}
}

// allocBlockMem serves a single-block request from the smallest block size
// that fits the aligned request. Full maps are skipped in favor of the next
// larger size. Returns zero when no map can serve the request.
func (h *heap) allocBlockMem(bytes, align uint32) uint32 {
	for i := range h.maps {
		mp := &h.maps[i]
		if mp.inflated(bytes, align) > mp.blockSize || mp.freeCount == 0 {
			continue
		}
		if ptr := mp.allocBlock(bytes, align); ptr != 0 {
			h.account(int64(mp.blockSize))
			return ptr
		}
	}
	return 0
}

// allocBufferMem serves a buffer request: first the smallest single block
// that fits, then a contiguous run, scanning map sizes from largest to
// smallest so the run holds the fewest blocks. Returns zero on failure; the
// caller may retry the next candidate heap.
func (h *heap) allocBufferMem(bytes, align uint32) uint32 {
	if ptr := h.allocBlockMem(bytes, align); ptr != 0 {
		return ptr
	}
	for i := len(h.maps) - 1; i >= 0; i-- {
		mp := &h.maps[i]
		if mp.blockSize >= bytes {
			continue
		}
		size := mp.inflated(bytes, align)
		if size > h.size {
			continue
		}
		if ptr := mp.allocContiguous(size, bytes, align); ptr != 0 {
			need := (size + mp.blockSize - 1) / mp.blockSize
			h.account(int64(need * mp.blockSize))
			return ptr
		}
	}
	return 0
}
