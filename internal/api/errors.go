package api

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/annel0/voxel-mesher/internal/world"
)

// maxChunkCoord граница |координаты| чанка: мировые координаты блоков
// и их соседей по ту сторону границы чанка помещаются в int
const maxChunkCoord = math.MaxInt/world.ChunkSize - 1

var errCoordinateRange = errors.New("chunk coordinate out of range")

// InvalidCoordinateError координата чанка в URL не является целым числом или вне диапазона
type InvalidCoordinateError struct {
	Axis  string
	Value string
	Err   error
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid chunk coordinate %s=%q", e.Axis, e.Value)
}

func (e *InvalidCoordinateError) Unwrap() error { return e.Err }

// parseCoordinate разбирает целую координату без приведений: "1.5", "", "0x10": ошибка
func parseCoordinate(axis, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &InvalidCoordinateError{Axis: axis, Value: value, Err: err}
	}
	if n > maxChunkCoord || n < -maxChunkCoord {
		return 0, &InvalidCoordinateError{Axis: axis, Value: value, Err: errCoordinateRange}
	}
	return n, nil
}
