//go:build unix

package mmapmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnx9/sof/internal/platform"
)

func TestReadWriteFill(t *testing.T) {
	mem, err := New(1 << 16)
	require.NoError(t, err)
	defer mem.Close()

	assert.Equal(t, uint32(1<<16), mem.Size())

	data := []byte("mapped region")
	require.NoError(t, mem.WriteAt(0x200, data))

	got := make([]byte, len(data))
	require.NoError(t, mem.ReadAt(0x200, got))
	assert.Equal(t, data, got)

	require.NoError(t, mem.Fill(0x200, uint32(len(data)), 0))
	require.NoError(t, mem.ReadAt(0x200, got))
	assert.Equal(t, make([]byte, len(data)), got)
}

func TestOutOfRangeAccess(t *testing.T) {
	mem, err := New(4096)
	require.NoError(t, err)
	defer mem.Close()

	var merr *platform.MemoryError
	err = mem.ReadAt(4090, make([]byte, 16))
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, uint32(4096), merr.Limit)
}
