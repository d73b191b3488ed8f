package world

import "fmt"

// Chunk куб 16x16x16 блоков. Типы хранятся через палитру:
// индекс 0 палитры всегда воздух.
type Chunk struct {
	Coord ChunkCoord

	palette []string
	lookup  map[string]uint16
	blocks  [ChunkVolume]uint16
	count   int
}

// NewChunk создаёт пустой чанк (только воздух)
func NewChunk(coord ChunkCoord) *Chunk {
	return &Chunk{
		Coord:   coord,
		palette: []string{Air},
		lookup:  map[string]uint16{Air: 0},
	}
}

func index(x, y, z int) int {
	return (y*ChunkSize+z)*ChunkSize + x
}

// Set ставит блок в локальные координаты; Air удаляет блок
func (c *Chunk) Set(x, y, z int, typ string) error {
	if !InBounds(x, y, z) {
		return fmt.Errorf("позиция (%d,%d,%d) вне чанка", x, y, z)
	}

	id, ok := c.lookup[typ]
	if !ok {
		if len(c.palette) >= 1<<16 {
			return fmt.Errorf("палитра чанка %s переполнена", c.Coord)
		}
		id = uint16(len(c.palette))
		c.palette = append(c.palette, typ)
		c.lookup[typ] = id
	}

	i := index(x, y, z)
	switch {
	case c.blocks[i] == 0 && id != 0:
		c.count++
	case c.blocks[i] != 0 && id == 0:
		c.count--
	}
	c.blocks[i] = id
	return nil
}

// Get возвращает тип блока; вне чанка: Air
func (c *Chunk) Get(x, y, z int) string {
	if !InBounds(x, y, z) {
		return Air
	}
	return c.palette[c.blocks[index(x, y, z)]]
}

// Count количество непустых блоков
func (c *Chunk) Count() int {
	return c.count
}

// Placements все непустые блоки в порядке y, z, x
func (c *Chunk) Placements() []BlockPlacement {
	out := make([]BlockPlacement, 0, c.count)
	for y := 0; y < ChunkSize; y++ {
		for z := 0; z < ChunkSize; z++ {
			for x := 0; x < ChunkSize; x++ {
				if id := c.blocks[index(x, y, z)]; id != 0 {
					out = append(out, BlockPlacement{X: x, Y: y, Z: z, Type: c.palette[id]})
				}
			}
		}
	}
	return out
}
