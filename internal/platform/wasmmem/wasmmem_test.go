package wasmmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoundsUpToPages(t *testing.T) {
	ctx := context.Background()
	mem, err := New(ctx, 100_000)
	require.NoError(t, err)
	defer mem.Close(ctx)

	assert.Equal(t, uint32(2*wasmPageSize), mem.Size())
}

func TestReadWriteFill(t *testing.T) {
	ctx := context.Background()
	mem, err := New(ctx, wasmPageSize)
	require.NoError(t, err)
	defer mem.Close(ctx)

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, mem.WriteAt(0x100, data))

	got := make([]byte, 4)
	require.NoError(t, mem.ReadAt(0x100, got))
	assert.Equal(t, data, got)

	require.NoError(t, mem.Fill(0x100, 4, 0xA5))
	require.NoError(t, mem.ReadAt(0x100, got))
	assert.Equal(t, []byte{0xA5, 0xA5, 0xA5, 0xA5}, got)
}

func TestOutOfRangeAccess(t *testing.T) {
	ctx := context.Background()
	mem, err := New(ctx, wasmPageSize)
	require.NoError(t, err)
	defer mem.Close(ctx)

	var werr *Error
	err = mem.WriteAt(mem.Size()-2, make([]byte, 4))
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "write", werr.Op)

	assert.Error(t, mem.ReadAt(mem.Size(), make([]byte, 1)))
	assert.Error(t, mem.Fill(mem.Size()-1, 2, 0))
}

func TestZeroSizeGetsOnePage(t *testing.T) {
	ctx := context.Background()
	mem, err := New(ctx, 0)
	require.NoError(t, err)
	defer mem.Close(ctx)

	assert.Equal(t, uint32(wasmPageSize), mem.Size())
}
