package platform

// Memory capability bits advertised by heaps and requested by allocations.
const (
	CapRAM uint32 = 1 << iota
	CapDMA
	CapCache
	CapExec
	CapLP
	CapHP
)

// DefaultSystemHeapStart is the simulated linker symbol for the master
// core's system heap base in the default layout.
const DefaultSystemHeapStart uint32 = 0x0001_0000

// BlockDesc describes one block map inside a heap: a run of Count blocks of
// Size bytes each. Size must be a power of two.
type BlockDesc struct {
	Size  uint32
	Count uint32
}

// HeapDesc describes one heap region in the static memory map.
type HeapDesc struct {
	Base uint32
	Size uint32
	Caps uint32

	// Blocks lists the heap's block maps in ascending block size. Empty for
	// bump-arena heaps (the system zone).
	Blocks []BlockDesc
}

// Layout is the static memory map compiled into the image. It is built from
// platform tables, never parsed from a serialized form.
type Layout struct {
	Cores uint32

	// System and SystemRuntime have one heap per core. Runtime and Buffer
	// are shared across cores.
	System        []HeapDesc
	SystemRuntime []HeapDesc
	Runtime       []HeapDesc
	Buffer        []HeapDesc
}

// DefaultLayout returns the memory map of the reference two-core platform.
// Block sizes are tuned per heap; each heap's block maps exactly partition
// its region.
func DefaultLayout() Layout {
	return Layout{
		Cores: 2,
		System: []HeapDesc{
			{Base: 0x0001_0000, Size: 0x4000, Caps: CapRAM | CapCache},
			{Base: 0x0001_4000, Size: 0x4000, Caps: CapRAM | CapCache},
		},
		SystemRuntime: []HeapDesc{
			{
				Base: 0x0001_8000, Size: 0x8000, Caps: CapRAM | CapCache,
				Blocks: []BlockDesc{
					{Size: 64, Count: 256},
					{Size: 128, Count: 64},
					{Size: 256, Count: 32},
				},
			},
			{
				Base: 0x0002_0000, Size: 0x8000, Caps: CapRAM | CapCache,
				Blocks: []BlockDesc{
					{Size: 64, Count: 256},
					{Size: 128, Count: 64},
					{Size: 256, Count: 32},
				},
			},
		},
		Runtime: []HeapDesc{
			{
				Base: 0x0002_8000, Size: 0x1_0000, Caps: CapRAM | CapCache,
				Blocks: []BlockDesc{
					{Size: 64, Count: 128},
					{Size: 128, Count: 64},
					{Size: 256, Count: 64},
					{Size: 512, Count: 64},
				},
			},
		},
		Buffer: []HeapDesc{
			{
				Base: 0x0003_8000, Size: 0x4_0000, Caps: CapRAM | CapCache | CapDMA,
				Blocks: []BlockDesc{
					{Size: 256, Count: 64},
					{Size: 1024, Count: 48},
					{Size: 4096, Count: 48},
				},
			},
			{
				Base: 0x0007_8000, Size: 0x2_0000, Caps: CapRAM | CapDMA | CapHP,
				Blocks: []BlockDesc{
					{Size: 2048, Count: 64},
				},
			},
		},
	}
}

// End returns the first address past the last heap in the layout.
func (l Layout) End() uint32 {
	end := uint32(0)
	for _, group := range [][]HeapDesc{l.System, l.SystemRuntime, l.Runtime, l.Buffer} {
		for _, h := range group {
			if h.Base+h.Size > end {
				end = h.Base + h.Size
			}
		}
	}
	return end
}
