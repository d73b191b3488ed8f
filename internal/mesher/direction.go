package mesher

import (
	"fmt"

	"github.com/annel0/voxel-mesher/internal/world"
	"github.com/go-gl/mathgl/mgl32"
)

// Direction сторона куба, на которой лежит грань
type Direction uint8

const (
	Top    Direction = iota // +Y
	Bottom                  // -Y
	Front                   // +Z
	Back                    // -Z
	Left                    // -X
	Right                   // +X
)

// AllDirections порядок выдачи граней для каждого блока
var AllDirections = [6]Direction{Top, Bottom, Front, Back, Left, Right}

var directionNames = [6]string{"top", "bottom", "front", "back", "left", "right"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", d)
}

// Valid проверяет, что значение входит в закрытый набор направлений
func (d Direction) Valid() bool {
	return d <= Right
}

// Offset смещение к соседней ячейке в направлении d
func (d Direction) Offset() (int, int, int) {
	switch d {
	case Top:
		return 0, 1, 0
	case Bottom:
		return 0, -1, 0
	case Front:
		return 0, 0, 1
	case Back:
		return 0, 0, -1
	case Left:
		return -1, 0, 0
	case Right:
		return 1, 0, 0
	}
	panic(fmt.Sprintf("mesher: неизвестное направление %d", d))
}

// Normal внешняя нормаль грани
func (d Direction) Normal() mgl32.Vec3 {
	x, y, z := d.Offset()
	return mgl32.Vec3{float32(x), float32(y), float32(z)}
}

// FaceKind группа грани для выбора текстуры блока
func (d Direction) FaceKind() world.FaceKind {
	switch d {
	case Top:
		return world.FaceTop
	case Bottom:
		return world.FaceBottom
	default:
		return world.FaceSide
	}
}
