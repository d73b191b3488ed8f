package world

import (
	"context"
	"sync"
)

// ChunkSource источник данных мира для построения мешей.
//
// Blocks возвращает непустые блоки чанка в локальных координатах;
// количество и позиции блоков ничем не ограничены.
// BlockAt нужен для отсечения граней на границах чанков: возвращает тип блока
// по мировым координатам и признак его наличия.
type ChunkSource interface {
	Blocks(ctx context.Context, coord ChunkCoord) ([]BlockPlacement, error)
	BlockAt(ctx context.Context, wx, wy, wz int) (string, bool, error)
}

// DemoPosition локальная позиция единственного блока DemoSource
const DemoPosition = ChunkSize / 2

// DemoSource в каждом чанке один блок в локальной позиции (8,8,8)
type DemoSource struct {
	Type string
}

// NewDemoSource создаёт демонстрационный источник с блоком typ (по умолчанию stone)
func NewDemoSource(typ string) *DemoSource {
	if typ == Air {
		typ = "stone"
	}
	return &DemoSource{Type: typ}
}

func (d *DemoSource) Blocks(ctx context.Context, coord ChunkCoord) ([]BlockPlacement, error) {
	return []BlockPlacement{{X: DemoPosition, Y: DemoPosition, Z: DemoPosition, Type: d.Type}}, nil
}

func (d *DemoSource) BlockAt(ctx context.Context, wx, wy, wz int) (string, bool, error) {
	_, lx, ly, lz := ChunkOf(wx, wy, wz)
	if lx == DemoPosition && ly == DemoPosition && lz == DemoPosition {
		return d.Type, true, nil
	}
	return Air, false, nil
}

// MemorySource разреженное хранилище чанков в памяти
type MemorySource struct {
	mu     sync.RWMutex
	chunks map[ChunkCoord]*Chunk
}

// NewMemorySource создаёт пустой источник
func NewMemorySource() *MemorySource {
	return &MemorySource{chunks: make(map[ChunkCoord]*Chunk)}
}

// SetBlock ставит блок по мировым координатам
func (m *MemorySource) SetBlock(wx, wy, wz int, typ string) error {
	coord, lx, ly, lz := ChunkOf(wx, wy, wz)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.chunks[coord]
	if !ok {
		if typ == Air {
			return nil
		}
		c = NewChunk(coord)
		m.chunks[coord] = c
	}
	return c.Set(lx, ly, lz, typ)
}

// PutChunk заменяет чанк целиком
func (m *MemorySource) PutChunk(c *Chunk) {
	m.mu.Lock()
	m.chunks[c.Coord] = c
	m.mu.Unlock()
}

// Chunk возвращает чанк, если он есть
func (m *MemorySource) Chunk(coord ChunkCoord) (*Chunk, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chunks[coord]
	return c, ok
}

func (m *MemorySource) Blocks(ctx context.Context, coord ChunkCoord) ([]BlockPlacement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.chunks[coord]
	if !ok {
		return nil, nil
	}
	return c.Placements(), nil
}

func (m *MemorySource) BlockAt(ctx context.Context, wx, wy, wz int) (string, bool, error) {
	coord, lx, ly, lz := ChunkOf(wx, wy, wz)

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.chunks[coord]
	if !ok {
		return Air, false, nil
	}
	typ := c.Get(lx, ly, lz)
	return typ, typ != Air, nil
}
