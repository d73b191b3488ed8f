package mesher

import "fmt"

// TextureNotFoundError блок ссылается на текстуру, которой нет в атласе.
// Рендер чанка целиком завершается ошибкой, атлас не затрагивается.
type TextureNotFoundError struct {
	Texture string
	Block   string
}

func (e *TextureNotFoundError) Error() string {
	return fmt.Sprintf("texture %q for block %q not found in atlas", e.Texture, e.Block)
}
