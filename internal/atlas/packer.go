package atlas

import "fmt"

// TextureSize размеры исходной текстуры до упаковки
type TextureSize struct {
	Name   string
	Width  int
	Height int
}

// Layout результат упаковки: итоговый размер холста и прямоугольники в порядке упаковки
type Layout struct {
	Width   int
	Height  int
	Records []TextureRecord
}

// Pack раскладывает текстуры по полкам (рядам) слева направо.
// Текстура, не помещающаяся в текущий ряд, открывает новый ряд ниже;
// высота ряда равна максимальной высоте текстур в нём.
// Порядок sizes сохраняется.
func Pack(sizes []TextureSize, maxWidth int) (Layout, error) {
	if maxWidth <= 0 {
		return Layout{}, fmt.Errorf("invalid max width %d", maxWidth)
	}

	layout := Layout{
		Width:   maxWidth,
		Records: make([]TextureRecord, 0, len(sizes)),
	}

	x, y, rowHeight := 0, 0, 0
	for _, s := range sizes {
		if s.Width <= 0 || s.Height <= 0 {
			return Layout{}, fmt.Errorf("texture %s has invalid size %dx%d", s.Name, s.Width, s.Height)
		}
		if s.Width > maxWidth {
			return Layout{}, fmt.Errorf("%w: %s (%dpx > %dpx)", ErrTextureTooWide, s.Name, s.Width, maxWidth)
		}

		if x+s.Width > maxWidth {
			x = 0
			y += rowHeight
			rowHeight = 0
		}

		layout.Records = append(layout.Records, TextureRecord{
			Name:   s.Name,
			X:      x,
			Y:      y,
			Width:  s.Width,
			Height: s.Height,
		})

		x += s.Width
		if s.Height > rowHeight {
			rowHeight = s.Height
		}
	}

	layout.Height = y + rowHeight
	return layout, nil
}

// Validate проверяет инварианты раскладки: прямоугольники внутри холста и не пересекаются
func (l Layout) Validate() error {
	for i, a := range l.Records {
		if a.X < 0 || a.Y < 0 || a.X+a.Width > l.Width || a.Y+a.Height > l.Height {
			return fmt.Errorf("texture %s out of bounds", a.Name)
		}
		for _, b := range l.Records[i+1:] {
			if a.Overlaps(b) {
				return fmt.Errorf("textures %s and %s overlap", a.Name, b.Name)
			}
		}
	}
	return nil
}
