// Package platform provides the services the memory core expects from the
// surrounding DSP image: core identification, cache geometry, interrupt-safe
// locking, shared-view address translation, the panic primitive and the
// physical memory backing itself. On hardware these come from the HAL and the
// linker; the Host implementation here stands in for them on a hosted build.
package platform

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DcacheAlign is the data-cache line size in bytes. System-zone pointers
	// and buffer allocations are aligned to it by default.
	DcacheAlign = 64

	// MasterCore is the boot core. It owns image-lifetime state and may never
	// release its system heap.
	MasterCore = 0
)

// Panic codes passed to Platform.Panic.
const (
	// PanicCodeMem reports heap corruption or fatal memory exhaustion.
	PanicCodeMem uint32 = 0x4D454D00
	// PanicCodeInit reports a malformed static memory map.
	PanicCodeInit uint32 = 0x4D454D01
)

// sharedAlias is the address bit distinguishing the shared coherent view of
// an allocation from the core-local view. On a real interconnect this is the
// uncached alias window; on the host it is a plain tag bit.
const sharedAlias uint32 = 1 << 31

// Platform is the contract the host environment fulfills for the memory core.
type Platform interface {
	// CPUID returns the id of the calling core.
	CPUID() uint32

	// CoreCount returns the number of DSP cores in the image.
	CoreCount() uint32

	// SystemHeapStart returns the base of the master core's system heap as
	// placed by the linker. Heap initialization validates the static memory
	// map against it.
	SystemHeapStart() uint32

	// Panic terminates the firmware with the given panic code. It does not
	// return.
	Panic(code uint32)

	// SharedGet translates a core-local address into its shared coherent
	// view for cross-core access.
	SharedGet(addr, size uint32) uint32

	// SharedCommit publishes local writes in [addr, addr+size) so other
	// cores observe them. A no-op on cache-coherent targets.
	SharedCommit(addr, size uint32)

	// FreePrepare reverses any shared translation so the address lies within
	// a recognized heap's native range.
	FreePrepare(addr uint32) uint32

	// Memory returns the physical address space backing the heaps.
	Memory() Memory
}

// PanicError carries a platform panic code through a Go panic on hosted
// builds, where Panic cannot halt a real core.
type PanicError struct {
	Code uint32
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("platform panic: code 0x%08x", e.Code)
}

// CommitRecord records one SharedCommit call. The host platform keeps these
// so tests can verify that descriptor mutations pair with commits.
type CommitRecord struct {
	Addr uint32
	Size uint32
}

// Host implements Platform for hosted builds and tests. The interconnect is
// coherent, so SharedGet/FreePrepare only tag addresses with the alias bit
// and SharedCommit records the committed range without flushing anything.
type Host struct {
	mem          Memory
	cores        uint32
	sysHeapStart uint32
	cpu          atomic.Uint32
	panicHook    func(code uint32)

	mu      sync.Mutex
	commits []CommitRecord
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithCores sets the number of simulated DSP cores.
func WithCores(n uint32) HostOption {
	return func(h *Host) { h.cores = n }
}

// WithSystemHeapStart overrides the simulated linker symbol for the master
// core's system heap base.
func WithSystemHeapStart(addr uint32) HostOption {
	return func(h *Host) { h.sysHeapStart = addr }
}

// WithPanicHook installs a hook invoked before the hosted panic is raised.
func WithPanicHook(fn func(code uint32)) HostOption {
	return func(h *Host) { h.panicHook = fn }
}

// NewHost creates a host platform over the given physical memory.
func NewHost(mem Memory, opts ...HostOption) *Host {
	h := &Host{
		mem:          mem,
		cores:        2,
		sysHeapStart: DefaultSystemHeapStart,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CPUID returns the current simulated core id.
func (h *Host) CPUID() uint32 {
	return h.cpu.Load()
}

// SetCPUID switches the simulated calling core.
func (h *Host) SetCPUID(core uint32) {
	h.cpu.Store(core)
}

// CoreCount returns the number of simulated cores.
func (h *Host) CoreCount() uint32 {
	return h.cores
}

// SystemHeapStart returns the simulated linker symbol.
func (h *Host) SystemHeapStart() uint32 {
	return h.sysHeapStart
}

// Panic raises the panic code as a Go panic carrying a PanicError.
func (h *Host) Panic(code uint32) {
	if h.panicHook != nil {
		h.panicHook(code)
	}
	panic(&PanicError{Code: code})
}

// SharedGet tags the address with the shared alias bit.
func (h *Host) SharedGet(addr, size uint32) uint32 {
	_ = size
	return addr | sharedAlias
}

// SharedCommit records the committed range.
func (h *Host) SharedCommit(addr, size uint32) {
	h.mu.Lock()
	h.commits = append(h.commits, CommitRecord{Addr: addr, Size: size})
	h.mu.Unlock()
}

// FreePrepare strips the shared alias bit.
func (h *Host) FreePrepare(addr uint32) uint32 {
	return addr &^ sharedAlias
}

// Memory returns the physical memory backing.
func (h *Host) Memory() Memory {
	return h.mem
}

// Commits returns a copy of the recorded SharedCommit calls.
func (h *Host) Commits() []CommitRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]CommitRecord, len(h.commits))
	copy(out, h.commits)
	return out
}

// ResetCommits clears the recorded SharedCommit calls.
func (h *Host) ResetCommits() {
	h.mu.Lock()
	h.commits = h.commits[:0]
	h.mu.Unlock()
}

// IsShared reports whether the address carries the shared alias tag.
func IsShared(addr uint32) bool {
	return addr&sharedAlias != 0
}
