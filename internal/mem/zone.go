// Package mem implements the firmware memory core: a multi-pool,
// capability-tagged, block-based allocator serving all dynamic memory
// requests on the DSP. Heaps are carved from a platform-provided physical
// address space and partitioned into four zones with distinct lifetime
// rules; a single irq-save spinlock serializes every operation.
package mem

// Zone is the coarse lifetime and ownership category of an allocation.
type Zone int

const (
	// ZoneSys is boot-static memory served from a per-core bump arena. It is
	// never freed; exhaustion is fatal.
	ZoneSys Zone = iota
	// ZoneSysRuntime is per-core runtime memory served from block maps.
	ZoneSysRuntime
	// ZoneRuntime is cross-core runtime memory served from block maps.
	ZoneRuntime
	// ZoneBuffer is audio data memory; allocations may span multiple
	// contiguous blocks.
	ZoneBuffer
)

// String returns the zone name used in trace output.
func (z Zone) String() string {
	switch z {
	case ZoneSys:
		return "sys"
	case ZoneSysRuntime:
		return "sys-runtime"
	case ZoneRuntime:
		return "runtime"
	case ZoneBuffer:
		return "buffer"
	default:
		return "unknown"
	}
}

// Allocation flags.
const (
	// FlagShared requests a coherent shared mapping for cross-core access.
	// The returned pointer is remapped through the platform shared view.
	FlagShared uint32 = 1 << iota
)

// alignUp rounds addr up to the nearest multiple of align. align must be a
// power of two.
func alignUp(addr, align uint32) uint32 {
	return (addr + align - 1) &^ (align - 1)
}

// isPowerOfTwo reports whether v is a non-zero power of two.
func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}
