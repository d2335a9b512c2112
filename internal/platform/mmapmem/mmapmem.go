//go:build unix

// Package mmapmem backs the DSP physical address space with an anonymous
// shared mapping, so a host harness can hand the same physical window to an
// out-of-process inspector.
package mmapmem

import (
	"github.com/pnx9/sof/internal/platform"
	"golang.org/x/sys/unix"
)

// Memory implements platform.Memory over an anonymous shared mapping.
type Memory struct {
	buf []byte
}

// New maps a zeroed address space of the given size.
func New(size uint32) (*Memory, error) {
	buf, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return &Memory{buf: buf}, nil
}

func (m *Memory) check(op string, addr, size uint32) error {
	end := uint64(addr) + uint64(size)
	if end > uint64(len(m.buf)) {
		return &platform.MemoryError{Op: op, Addr: addr, Size: size, Limit: uint32(len(m.buf))}
	}
	return nil
}

// ReadAt implements platform.Memory.
func (m *Memory) ReadAt(addr uint32, p []byte) error {
	if err := m.check("read", addr, uint32(len(p))); err != nil {
		return err
	}
	copy(p, m.buf[addr:])
	return nil
}

// WriteAt implements platform.Memory.
func (m *Memory) WriteAt(addr uint32, p []byte) error {
	if err := m.check("write", addr, uint32(len(p))); err != nil {
		return err
	}
	copy(m.buf[addr:], p)
	return nil
}

// Fill implements platform.Memory.
func (m *Memory) Fill(addr, size uint32, value byte) error {
	if err := m.check("fill", addr, size); err != nil {
		return err
	}
	region := m.buf[addr : addr+size]
	for i := range region {
		region[i] = value
	}
	return nil
}

// Size implements platform.Memory.
func (m *Memory) Size() uint32 {
	return uint32(len(m.buf))
}

// Close releases the mapping.
func (m *Memory) Close() error {
	buf := m.buf
	m.buf = nil
	return unix.Munmap(buf)
}
