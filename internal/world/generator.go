package world

import (
	"context"
	"sync"

	"github.com/annel0/voxel-mesher/internal/util"
)

// Константы генерации ландшафта
const (
	MinTerrainHeight = 4
	TerrainAmplitude = 40
	MountainStart    = 36 // выше: каменная поверхность
	TreeChance       = 4  // процентов колонн леса с деревом
	TrunkHeight      = 4

	maxCachedChunks = 4096
)

// BiomeType тип биома колонны
type BiomeType int

const (
	BiomePlains BiomeType = iota
	BiomeDesert
	BiomeForest
)

// column описание одной колонны мира (x, z)
type column struct {
	height int // первая пустая высота над поверхностью
	biome  BiomeType
	tree   bool
}

// GeneratorSource детерминированно генерирует ландшафт из шума Перлина.
// Один и тот же сид всегда даёт одинаковые чанки.
type GeneratorSource struct {
	Seed     int64
	SeaLevel int

	height *util.Noise
	biome  *util.Noise

	mu    sync.Mutex
	cache map[ChunkCoord]*Chunk
}

// NewGeneratorSource создаёт генератор с указанным сидом и уровнем моря
func NewGeneratorSource(seed int64, seaLevel int) *GeneratorSource {
	return &GeneratorSource{
		Seed:     seed,
		SeaLevel: seaLevel,
		height:   util.NewNoise(seed, 0.02),
		biome:    util.NewNoise(seed+42, 0.005),
		cache:    make(map[ChunkCoord]*Chunk),
	}
}

func (g *GeneratorSource) Blocks(ctx context.Context, coord ChunkCoord) ([]BlockPlacement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.chunk(coord).Placements(), nil
}

func (g *GeneratorSource) BlockAt(ctx context.Context, wx, wy, wz int) (string, bool, error) {
	coord, lx, ly, lz := ChunkOf(wx, wy, wz)

	g.mu.Lock()
	c, ok := g.cache[coord]
	g.mu.Unlock()
	if ok {
		typ := c.Get(lx, ly, lz)
		return typ, typ != Air, nil
	}

	typ := g.blockAt(g.column, wx, wy, wz)
	return typ, typ != Air, nil
}

// chunk возвращает сгенерированный чанк из кеша или генерирует его
func (g *GeneratorSource) chunk(coord ChunkCoord) *Chunk {
	g.mu.Lock()
	if c, ok := g.cache[coord]; ok {
		g.mu.Unlock()
		return c
	}
	g.mu.Unlock()

	c := g.generate(coord)

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.cache[coord]; ok {
		return existing
	}
	if len(g.cache) >= maxCachedChunks {
		g.cache = make(map[ChunkCoord]*Chunk)
	}
	g.cache[coord] = c
	return c
}

func (g *GeneratorSource) generate(coord ChunkCoord) *Chunk {
	ox, oy, oz := coord.Origin()

	// колонны чанка плюс кайма в 1 блок для крон соседних деревьев
	const span = ChunkSize + 2
	var cols [span][span]column
	for dz := 0; dz < span; dz++ {
		for dx := 0; dx < span; dx++ {
			cols[dx][dz] = g.column(ox+dx-1, oz+dz-1)
		}
	}
	lookup := func(wx, wz int) column {
		return cols[wx-ox+1][wz-oz+1]
	}

	c := NewChunk(coord)
	for ly := 0; ly < ChunkSize; ly++ {
		for lz := 0; lz < ChunkSize; lz++ {
			for lx := 0; lx < ChunkSize; lx++ {
				if typ := g.blockAt(lookup, ox+lx, oy+ly, oz+lz); typ != Air {
					_ = c.Set(lx, ly, lz, typ)
				}
			}
		}
	}
	return c
}

// column вычисляет высоту, биом и наличие дерева для колонны
func (g *GeneratorSource) column(wx, wz int) column {
	h := MinTerrainHeight + int(g.height.At2D(float64(wx), float64(wz))*TerrainAmplitude)

	b := g.biome.At2D(float64(wx), float64(wz))
	biome := BiomePlains
	switch {
	case b < 0.35:
		biome = BiomeDesert
	case b > 0.65:
		biome = BiomeForest
	}

	col := column{height: h, biome: biome}
	if biome == BiomeForest && h-1 >= g.SeaLevel && h < MountainStart {
		col.tree = hash2(g.Seed, wx, wz)%100 < TreeChance
	}
	return col
}

// blockAt тип блока в мировых координатах
func (g *GeneratorSource) blockAt(columnAt func(wx, wz int) column, wx, wy, wz int) string {
	if wy < 0 {
		return "stone"
	}

	col := columnAt(wx, wz)
	h := col.height

	switch {
	case wy < h-4:
		return "stone"
	case wy < h-1:
		if col.biome == BiomeDesert {
			return "sand"
		}
		return "dirt"
	case wy == h-1:
		return g.surface(col)
	case wy < g.SeaLevel:
		return "water"
	case col.tree && wy < h+TrunkHeight:
		return "log"
	}

	// листва соседних деревьев
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			n := columnAt(wx+dx, wz+dz)
			if !n.tree {
				continue
			}
			crown := n.height + TrunkHeight
			if wy == crown || (wy == crown-1 && (dx != 0 || dz != 0)) {
				return "leaves"
			}
		}
	}
	return Air
}

func (g *GeneratorSource) surface(col column) string {
	switch {
	case col.height-1 < g.SeaLevel:
		return "sand"
	case col.height >= MountainStart:
		return "stone"
	case col.biome == BiomeDesert:
		return "sand"
	default:
		return "grass"
	}
}

// hash2 детерминированный хеш координат колонны (splitmix64)
func hash2(seed int64, x, z int) uint64 {
	v := uint64(seed) ^ uint64(int64(x))*0x9E3779B97F4A7C15 ^ uint64(int64(z))*0xC2B2AE3D27D4EB4F
	v ^= v >> 30
	v *= 0xBF58476D1CE4E5B9
	v ^= v >> 27
	v *= 0x94D049BB133111EB
	v ^= v >> 31
	return v
}
