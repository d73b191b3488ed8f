package atlas

// TextureRecord прямоугольник текстуры в пиксельных координатах атласа
type TextureRecord struct {
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Overlaps проверяет пересечение двух прямоугольников
func (r TextureRecord) Overlaps(o TextureRecord) bool {
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// Atlas описывает собранный атлас. После сборки не изменяется.
type Atlas struct {
	// Image публичная ссылка на PNG атласа (URL, не путь на диске)
	Image    string                   `json:"atlas"`
	Width    int                      `json:"width"`
	Height   int                      `json:"height"`
	Version  string                   `json:"version"`
	Textures map[string]TextureRecord `json:"textures"`

	// Order имена текстур в порядке упаковки
	Order []string `json:"-"`
}

// Lookup возвращает прямоугольник текстуры по имени
func (a *Atlas) Lookup(name string) (TextureRecord, bool) {
	if a == nil {
		return TextureRecord{}, false
	}
	r, ok := a.Textures[name]
	return r, ok
}

// Records возвращает прямоугольники в порядке упаковки
func (a *Atlas) Records() []TextureRecord {
	out := make([]TextureRecord, 0, len(a.Order))
	for _, name := range a.Order {
		out = append(out, a.Textures[name])
	}
	return out
}

func newAtlas(image, version string, layout Layout) *Atlas {
	a := &Atlas{
		Image:    image,
		Width:    layout.Width,
		Height:   layout.Height,
		Version:  version,
		Textures: make(map[string]TextureRecord, len(layout.Records)),
		Order:    make([]string, 0, len(layout.Records)),
	}
	for _, r := range layout.Records {
		a.Textures[r.Name] = r
		a.Order = append(a.Order, r.Name)
	}
	return a
}
