package atlas

import (
	"errors"
	"fmt"
)

// Операции сборки атласа, попадающие в AtlasBuildError.Op
const (
	OpScan    = "scan"
	OpDecode  = "decode"
	OpPack    = "pack"
	OpCompose = "compose"
	OpWrite   = "write"
)

var (
	// ErrNoTextures возвращается, если в каталоге нет ни одной PNG текстуры
	ErrNoTextures = errors.New("no textures found")
	// ErrTextureTooWide текстура шире максимальной ширины атласа
	ErrTextureTooWide = errors.New("texture wider than atlas")
	// ErrDuplicateTexture два файла дают одно и то же имя текстуры
	ErrDuplicateTexture = errors.New("duplicate texture name")
)

// AtlasBuildError описывает неудачную попытку сборки атласа.
// Частичный атлас при этом не сохраняется.
type AtlasBuildError struct {
	Op   string
	Path string
	Err  error
}

func (e *AtlasBuildError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("atlas build %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("atlas build %s: %v", e.Op, e.Err)
}

func (e *AtlasBuildError) Unwrap() error {
	return e.Err
}

func buildErr(op, path string, err error) error {
	return &AtlasBuildError{Op: op, Path: path, Err: err}
}
