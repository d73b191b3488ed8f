package world

import "fmt"

const (
	// ChunkSize длина ребра чанка в блоках
	ChunkSize = 16
	// ChunkVolume количество ячеек в чанке
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize
)

// ChunkCoord координаты чанка в сетке чанков
type ChunkCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("%d:%d:%d", c.X, c.Y, c.Z)
}

// Origin мировые координаты блока (0,0,0) чанка
func (c ChunkCoord) Origin() (int, int, int) {
	return c.X * ChunkSize, c.Y * ChunkSize, c.Z * ChunkSize
}

// BlockPlacement блок в локальных координатах чанка (0..15)
type BlockPlacement struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Z    int    `json:"z"`
	Type string `json:"type"`
}

// ChunkOf переводит мировые координаты блока в координаты чанка и локальную позицию
func ChunkOf(wx, wy, wz int) (ChunkCoord, int, int, int) {
	cx, lx := floorDivMod(wx, ChunkSize)
	cy, ly := floorDivMod(wy, ChunkSize)
	cz, lz := floorDivMod(wz, ChunkSize)
	return ChunkCoord{X: cx, Y: cy, Z: cz}, lx, ly, lz
}

// floorDivMod деление с округлением вниз, остаток всегда неотрицателен
func floorDivMod(a, b int) (int, int) {
	q, r := a/b, a%b
	if r < 0 {
		q--
		r += b
	}
	return q, r
}

// InBounds проверяет, что локальные координаты лежат внутри чанка
func InBounds(x, y, z int) bool {
	return x >= 0 && x < ChunkSize && y >= 0 && y < ChunkSize && z >= 0 && z < ChunkSize
}
