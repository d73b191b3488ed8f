package mesher

import (
	"fmt"

	"github.com/annel0/voxel-mesher/internal/atlas"
	"github.com/go-gl/mathgl/mgl32"
)

// FaceIndices два треугольника грани относительно её четырёх вершин
var FaceIndices = [6]uint32{0, 1, 2, 2, 3, 0}

// Face одна квадратная грань блока
type Face struct {
	Vertices [4]mgl32.Vec3
	UVs      [4]mgl32.Vec2
	Normal   mgl32.Vec3
}

// VerticesForFace четыре угла единичного квадрата на стороне d куба с началом в (x,y,z).
// Порядок вершин для каждой стороны фиксирован, UV идут в том же порядке.
func VerticesForFace(x, y, z int, d Direction) [4]mgl32.Vec3 {
	fx, fy, fz := float32(x), float32(y), float32(z)

	switch d {
	case Top:
		return [4]mgl32.Vec3{
			{fx, fy + 1, fz}, {fx + 1, fy + 1, fz}, {fx + 1, fy + 1, fz + 1}, {fx, fy + 1, fz + 1},
		}
	case Bottom:
		return [4]mgl32.Vec3{
			{fx, fy, fz}, {fx + 1, fy, fz}, {fx + 1, fy, fz + 1}, {fx, fy, fz + 1},
		}
	case Front:
		return [4]mgl32.Vec3{
			{fx, fy, fz + 1}, {fx + 1, fy, fz + 1}, {fx + 1, fy + 1, fz + 1}, {fx, fy + 1, fz + 1},
		}
	case Back:
		return [4]mgl32.Vec3{
			{fx, fy, fz}, {fx + 1, fy, fz}, {fx + 1, fy + 1, fz}, {fx, fy + 1, fz},
		}
	case Left:
		return [4]mgl32.Vec3{
			{fx, fy, fz}, {fx, fy, fz + 1}, {fx, fy + 1, fz + 1}, {fx, fy + 1, fz},
		}
	case Right:
		return [4]mgl32.Vec3{
			{fx + 1, fy, fz}, {fx + 1, fy, fz + 1}, {fx + 1, fy + 1, fz + 1}, {fx + 1, fy + 1, fz},
		}
	}
	panic(fmt.Sprintf("mesher: неизвестное направление %d", d))
}

// UVsForFace углы прямоугольника текстуры в пикселях атласа
func UVsForFace(r atlas.TextureRecord) [4]mgl32.Vec2 {
	x, y := float32(r.X), float32(r.Y)
	w, h := float32(r.Width), float32(r.Height)
	return [4]mgl32.Vec2{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}
}

// NormalsForFace внешняя нормаль, повторённая для каждой вершины
func NormalsForFace(d Direction) [4]mgl32.Vec3 {
	n := d.Normal()
	return [4]mgl32.Vec3{n, n, n, n}
}

// NewFace собирает грань блока (x,y,z) на стороне d с текстурой r
func NewFace(x, y, z int, d Direction, r atlas.TextureRecord) Face {
	return Face{
		Vertices: VerticesForFace(x, y, z, d),
		UVs:      UVsForFace(r),
		Normal:   d.Normal(),
	}
}
