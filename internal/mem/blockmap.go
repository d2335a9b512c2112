package mem

// blockHeader tracks the state of one block slot. On the first block of a
// contiguous allocation run records the run length and bytes records the
// requested size; the following run-1 headers carry run == 0 with the same
// unalignedBase, so a free targeting any block of the run resolves to its
// first block.
type blockHeader struct {
	used bool

	// run is the number of blocks in the allocation, valid on the first
	// block only. Zero when the block is free or interior to a run.
	run uint16

	// bytes is the requested allocation size, valid on the first block only.
	// The realloc path copies min(new, old) using it.
	bytes uint32

	// unalignedBase is the raw base of the allocation before alignment
	// adjustment, or zero when the block is free.
	unalignedBase uint32
}

// blockMap is a fixed array of equal-sized blocks over a contiguous region,
// with one header per block. firstFree is the index of the lowest free
// block, or count when the map is full; all headers below firstFree are in
// use.
type blockMap struct {
	blockSize uint32
	count     uint32
	base      uint32
	firstFree uint32
	freeCount uint32
	blocks    []blockHeader
}

func newBlockMap(base, blockSize, count uint32) blockMap {
	return blockMap{
		blockSize: blockSize,
		count:     count,
		base:      base,
		freeCount: count,
		blocks:    make([]blockHeader, count),
	}
}

// end returns the first address past the map's region.
func (mp *blockMap) end() uint32 {
	return mp.base + mp.blockSize*mp.count
}

// contains reports whether addr lies inside the map's region.
func (mp *blockMap) contains(addr uint32) bool {
	return addr >= mp.base && addr < mp.end()
}

// blockBase returns the raw base address of block idx.
func (mp *blockMap) blockBase(idx uint32) uint32 {
	return mp.base + idx*mp.blockSize
}

// advanceFirstFree moves firstFree to the next free header at or after from,
// or to count when the map is full.
func (mp *blockMap) advanceFirstFree(from uint32) {
	i := from
	for i < mp.count && mp.blocks[i].used {
		i++
	}
	mp.firstFree = i
}

// rawAligned reports whether every raw block base in the map is already
// aligned to align, so a single-block placement needs no alignment slack.
func (mp *blockMap) rawAligned(align uint32) bool {
	return mp.base%align == 0 && mp.blockSize%align == 0
}

// inflated returns the conservative request size used for fit checks: bytes,
// plus align when a raw block base may be unaligned.
func (mp *blockMap) inflated(bytes, align uint32) uint32 {
	if align > 1 && !mp.rawAligned(align) {
		return bytes + align
	}
	return bytes
}

// allocBlock takes the block at firstFree and returns the aligned address,
// or zero when the map is full or the aligned request does not fit the
// block. Heap counters are the caller's responsibility.
func (mp *blockMap) allocBlock(bytes, align uint32) uint32 {
	if mp.firstFree >= mp.count {
		return 0
	}
	idx := mp.firstFree
	raw := mp.blockBase(idx)
	aligned := alignUp(raw, align)
	if aligned-raw+bytes > mp.blockSize {
		return 0
	}

	hdr := &mp.blocks[idx]
	hdr.used = true
	hdr.run = 1
	hdr.bytes = bytes
	hdr.unalignedBase = raw
	mp.freeCount--
	mp.advanceFirstFree(idx + 1)
	return aligned
}

// allocContiguous takes a run of blocks large enough for size bytes and
// returns the aligned address, or zero when no run exists. size is the
// conservatively inflated request; bytes is the caller's actual request and
// is what the first header records.
func (mp *blockMap) allocContiguous(size, bytes, align uint32) uint32 {
	need := (size + mp.blockSize - 1) / mp.blockSize
	if need == 0 || need > mp.freeCount {
		return 0
	}

	var start, remaining uint32
	found := false
	for i := mp.firstFree; i < mp.count; i++ {
		if mp.blocks[i].used {
			remaining = 0
			continue
		}
		if remaining == 0 {
			start = i
		}
		remaining++
		if remaining == need {
			found = true
			break
		}
	}
	if !found {
		return 0
	}

	raw := mp.blockBase(start)
	aligned := alignUp(raw, align)
	if aligned-raw+bytes > need*mp.blockSize {
		return 0
	}

	for i := start; i < start+need; i++ {
		hdr := &mp.blocks[i]
		hdr.used = true
		hdr.unalignedBase = raw
	}
	first := &mp.blocks[start]
	first.run = uint16(need)
	first.bytes = bytes
	mp.freeCount -= need
	if mp.firstFree == start {
		mp.advanceFirstFree(start + need)
	}
	return aligned
}

// releaseRun frees run blocks starting at idx and relaxes firstFree. It
// returns the number of bytes released. Headers interior to the run are
// reset along with the first.
func (mp *blockMap) releaseRun(idx, run uint32) uint32 {
	for i := idx; i < idx+run && i < mp.count; i++ {
		hdr := &mp.blocks[i]
		hdr.used = false
		hdr.run = 0
		hdr.bytes = 0
		hdr.unalignedBase = 0
		mp.freeCount++
	}
	if idx < mp.firstFree {
		mp.firstFree = idx
	}
	return run * mp.blockSize
}
