package world

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkOfNegativeCoordinates(t *testing.T) {
	coord, lx, ly, lz := ChunkOf(-1, 16, -17)
	assert.Equal(t, ChunkCoord{X: -1, Y: 1, Z: -2}, coord)
	assert.Equal(t, 15, lx)
	assert.Equal(t, 0, ly)
	assert.Equal(t, 15, lz)

	coord, lx, _, _ = ChunkOf(31, 0, 0)
	assert.Equal(t, 1, coord.X)
	assert.Equal(t, 15, lx)
}

func TestChunkSetGet(t *testing.T) {
	c := NewChunk(ChunkCoord{X: 1, Y: 2, Z: 3})
	assert.Equal(t, Air, c.Get(3, 4, 5))

	require.NoError(t, c.Set(3, 4, 5, "stone"))
	require.NoError(t, c.Set(0, 0, 0, "dirt"))
	assert.Equal(t, "stone", c.Get(3, 4, 5))
	assert.Equal(t, 2, c.Count())

	// перезапись не меняет счётчик
	require.NoError(t, c.Set(3, 4, 5, "glass"))
	assert.Equal(t, 2, c.Count())

	require.NoError(t, c.Set(3, 4, 5, Air))
	assert.Equal(t, 1, c.Count())

	assert.Error(t, c.Set(16, 0, 0, "stone"))
	assert.Error(t, c.Set(0, -1, 0, "stone"))
	assert.Equal(t, Air, c.Get(-1, 0, 0))
}

func TestChunkPlacementsOrder(t *testing.T) {
	c := NewChunk(ChunkCoord{})
	require.NoError(t, c.Set(1, 1, 0, "b"))
	require.NoError(t, c.Set(0, 0, 1, "a"))
	require.NoError(t, c.Set(5, 0, 0, "c"))

	assert.Equal(t, []BlockPlacement{
		{X: 5, Y: 0, Z: 0, Type: "c"},
		{X: 0, Y: 0, Z: 1, Type: "a"},
		{X: 1, Y: 1, Z: 0, Type: "b"},
	}, c.Placements())
}

func TestDemoSource(t *testing.T) {
	ctx := context.Background()
	src := NewDemoSource("")

	blocks, err := src.Blocks(ctx, ChunkCoord{X: 3, Y: -1, Z: 0})
	require.NoError(t, err)
	assert.Equal(t, []BlockPlacement{{X: 8, Y: 8, Z: 8, Type: "stone"}}, blocks)

	typ, ok, err := src.BlockAt(ctx, 8+16*3, 8-16, 8)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "stone", typ)

	_, ok, err = src.BlockAt(ctx, 9, 8, 8)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemorySourceAcrossChunks(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource()
	require.NoError(t, src.SetBlock(15, 0, 0, "stone"))
	require.NoError(t, src.SetBlock(16, 0, 0, "dirt"))
	require.NoError(t, src.SetBlock(-1, 0, 0, "sand"))
	// удаление в несуществующем чанке ничего не создаёт
	require.NoError(t, src.SetBlock(100, 100, 100, Air))
	_, exists := src.Chunk(ChunkCoord{X: 6, Y: 6, Z: 6})
	assert.False(t, exists)

	blocks, err := src.Blocks(ctx, ChunkCoord{X: 1})
	require.NoError(t, err)
	assert.Equal(t, []BlockPlacement{{X: 0, Y: 0, Z: 0, Type: "dirt"}}, blocks)

	typ, ok, err := src.BlockAt(ctx, -1, 0, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sand", typ)

	blocks, err = src.Blocks(ctx, ChunkCoord{X: 9})
	require.NoError(t, err)
	assert.Empty(t, blocks)
}
