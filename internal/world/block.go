package world

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Air пустая ячейка; у воздуха нет граней
const Air = ""

// FaceKind группа граней для выбора текстуры
type FaceKind int

const (
	FaceTop FaceKind = iota
	FaceBottom
	FaceSide
)

// BlockType описание типа блока: текстуры и прозрачность
type BlockType struct {
	Name string `yaml:"name"`
	// Texture текстура по умолчанию для всех граней; пусто: имя блока
	Texture string `yaml:"texture"`
	// Top, Bottom, Side переопределяют текстуру отдельных граней
	Top    string `yaml:"top"`
	Bottom string `yaml:"bottom"`
	Side   string `yaml:"side"`
	// Transparent соседние грани рядом с таким блоком не отсекаются
	Transparent bool `yaml:"transparent"`
}

// TextureFor возвращает имя текстуры для грани
func (b BlockType) TextureFor(face FaceKind) string {
	switch face {
	case FaceTop:
		if b.Top != "" {
			return b.Top
		}
	case FaceBottom:
		if b.Bottom != "" {
			return b.Bottom
		}
	case FaceSide:
		if b.Side != "" {
			return b.Side
		}
	}
	if b.Texture != "" {
		return b.Texture
	}
	return b.Name
}

// Registry реестр типов блоков
type Registry struct {
	mu    sync.RWMutex
	types map[string]BlockType
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]BlockType)}
}

// DefaultRegistry реестр со стандартным набором блоков
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, bt := range []BlockType{
		{Name: "stone"},
		{Name: "dirt"},
		{Name: "sand"},
		{Name: "grass", Top: "grass_top", Bottom: "dirt", Side: "grass_side"},
		{Name: "log", Top: "log_top", Bottom: "log_top"},
		{Name: "leaves", Transparent: true},
		{Name: "glass", Transparent: true},
		{Name: "water", Transparent: true},
	} {
		_ = r.Register(bt)
	}
	return r
}

// Register добавляет или заменяет тип блока
func (r *Registry) Register(bt BlockType) error {
	if bt.Name == Air {
		return fmt.Errorf("имя типа блока не может быть пустым")
	}
	r.mu.Lock()
	r.types[bt.Name] = bt
	r.mu.Unlock()
	return nil
}

// Get возвращает тип блока по имени
func (r *Registry) Get(name string) (BlockType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bt, ok := r.types[name]
	return bt, ok
}

// TextureFor имя текстуры для грани блока. Для незарегистрированного типа: имя типа.
func (r *Registry) TextureFor(name string, face FaceKind) string {
	if bt, ok := r.Get(name); ok {
		return bt.TextureFor(face)
	}
	return name
}

// IsTransparent сквозь блок видны грани соседей. Воздух прозрачен.
func (r *Registry) IsTransparent(name string) bool {
	if name == Air {
		return true
	}
	bt, ok := r.Get(name)
	return ok && bt.Transparent
}

// Names возвращает отсортированные имена типов
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// blocksFile формат YAML файла с описанием блоков
type blocksFile struct {
	Blocks []BlockType `yaml:"blocks"`
}

// LoadYAML добавляет в реестр типы из YAML файла
func (r *Registry) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("чтение описаний блоков: %w", err)
	}

	var file blocksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("разбор %s: %w", path, err)
	}

	for i, bt := range file.Blocks {
		if err := r.Register(bt); err != nil {
			return fmt.Errorf("%s: блок #%d: %w", path, i, err)
		}
	}
	return nil
}
