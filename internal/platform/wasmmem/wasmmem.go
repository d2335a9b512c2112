// Package wasmmem hosts the DSP physical address space inside a WASM linear
// memory instantiated with wazero. Firmware harnesses use it to run the
// memory core against the same sandboxed memory a guest image would see.
package wasmmem

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

const wasmPageSize = 64 * 1024

// Memory implements platform.Memory over a wazero linear memory.
type Memory struct {
	runtime wazero.Runtime
	module  api.Module
	linear  api.Memory
	size    uint32
}

// Error reports a failed access to the hosted linear memory.
type Error struct {
	Op   string
	Addr uint32
	Size uint32
}

func (e *Error) Error() string {
	return fmt.Sprintf("wasm memory %s failed (addr=0x%x, size=%d)", e.Op, e.Addr, e.Size)
}

// New instantiates a minimal module exporting a linear memory large enough
// for size bytes and wraps it as a physical address space.
func New(ctx context.Context, size uint32) (*Memory, error) {
	pages := (size + wasmPageSize - 1) / wasmPageSize
	if pages == 0 {
		pages = 1
	}

	r := wazero.NewRuntime(ctx)
	mod, err := r.Instantiate(ctx, memoryModule(pages))
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("instantiate memory module: %w", err)
	}
	linear := mod.ExportedMemory("memory")
	if linear == nil {
		r.Close(ctx)
		return nil, fmt.Errorf("memory module exports no memory")
	}
	return &Memory{
		runtime: r,
		module:  mod,
		linear:  linear,
		size:    pages * wasmPageSize,
	}, nil
}

// ReadAt implements platform.Memory.
func (m *Memory) ReadAt(addr uint32, p []byte) error {
	buf, ok := m.linear.Read(addr, uint32(len(p)))
	if !ok {
		return &Error{Op: "read", Addr: addr, Size: uint32(len(p))}
	}
	copy(p, buf)
	return nil
}

// WriteAt implements platform.Memory.
func (m *Memory) WriteAt(addr uint32, p []byte) error {
	if !m.linear.Write(addr, p) {
		return &Error{Op: "write", Addr: addr, Size: uint32(len(p))}
	}
	return nil
}

// Fill implements platform.Memory.
func (m *Memory) Fill(addr, size uint32, value byte) error {
	buf, ok := m.linear.Read(addr, size)
	if !ok {
		return &Error{Op: "fill", Addr: addr, Size: size}
	}
	for i := range buf {
		buf[i] = value
	}
	return nil
}

// Size implements platform.Memory.
func (m *Memory) Size() uint32 {
	return m.size
}

// Close releases the hosting runtime.
func (m *Memory) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

// memoryModule builds the binary of a module that declares and exports one
// linear memory of exactly pages pages.
func memoryModule(pages uint32) []byte {
	bin := []byte{
		0x00, 0x61, 0x73, 0x6d, // magic
		0x01, 0x00, 0x00, 0x00, // version
	}

	// Memory section: one memory, min == max == pages.
	limits := append([]byte{0x01, 0x01}, uleb128(pages)...)
	limits = append(limits, uleb128(pages)...)
	bin = append(bin, section(0x05, limits)...)

	// Export section: export 0 as "memory".
	export := []byte{0x01, 0x06}
	export = append(export, []byte("memory")...)
	export = append(export, 0x02, 0x00)
	bin = append(bin, section(0x07, export)...)

	return bin
}

func section(id byte, payload []byte) []byte {
	out := append([]byte{id}, uleb128(uint32(len(payload)))...)
	return append(out, payload...)
}

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}
