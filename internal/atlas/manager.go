package atlas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/annel0/voxel-mesher/internal/logging"
	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/image/draw"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMaxWidth максимальная ширина атласа в пикселях
	DefaultMaxWidth = 2048
	// DefaultPublicURL адрес, по которому клиент получает PNG атласа
	DefaultPublicURL = "/textures/atlas.png"

	atlasFile    = "atlas.png"
	metadataFile = "atlas.json"
	textureExt   = ".png"
)

// Config настройки менеджера атласа
type Config struct {
	SourceDir    string        // каталог с PNG текстурами блоков
	OutputDir    string        // каталог для atlas.png и atlas.json
	MaxWidth     int           // максимальная ширина атласа
	BuildTimeout time.Duration // ограничение на сканирование и декодирование
	PublicURL    string        // ссылка на атлас в ответах API
	Workers      int           // число горутин декодирования
	Metrics      *Metrics
	Logger       *logging.Logger
}

// Manager собирает атлас и кеширует его на диске и в памяти.
// GetAtlas безопасен для конкурентного вызова: одновременные первые вызовы
// разделяют одну сборку.
type Manager struct {
	cfg     Config
	metrics *Metrics
	logger  *logging.Logger

	mu      sync.RWMutex
	current *Atlas

	group  singleflight.Group
	builds atomic.Int64
}

// atlasMetadata сериализуется в atlas.json рядом с PNG
type atlasMetadata struct {
	Version  string          `json:"version"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Source   string          `json:"source"`
	Textures []TextureRecord `json:"textures"`
}

// sourceTexture найденный в каталоге файл текстуры
type sourceTexture struct {
	name string
	path string
	img  image.Image
}

// NewManager создаёт менеджер атласа
func NewManager(cfg Config) *Manager {
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = DefaultMaxWidth
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = 30 * time.Second
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = DefaultPublicURL
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetAtlasLogger()
	}

	return &Manager{
		cfg:     cfg,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// ArtifactPath путь к PNG атласа на диске
func (m *Manager) ArtifactPath() string {
	return filepath.Join(m.cfg.OutputDir, atlasFile)
}

func (m *Manager) metadataPath() string {
	return filepath.Join(m.cfg.OutputDir, metadataFile)
}

// BuildCount количество выполненных сборок (для диагностики)
func (m *Manager) BuildCount() int64 {
	return m.builds.Load()
}

// GetAtlas возвращает атлас: из памяти, с диска или после сборки.
// Повторные вызовы после успешной сборки не пересобирают атлас.
func (m *Manager) GetAtlas(ctx context.Context) (*Atlas, error) {
	if a := m.cached(); a != nil {
		return a, nil
	}

	v, err, _ := m.group.Do("atlas", func() (interface{}, error) {
		if a := m.cached(); a != nil {
			return a, nil
		}

		a, err := m.loadFromDisk()
		if err == nil {
			m.store(a)
			m.logger.Info("Атлас загружен с диска: %d текстур, %dx%d", len(a.Order), a.Width, a.Height)
			return a, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("Атлас на диске не годится, пересобираем: %v", err)
		}

		return m.build(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Atlas), nil
}

// LoadTextures принудительно собирает атлас из каталога текстур.
// При ошибке текущий атлас не меняется.
func (m *Manager) LoadTextures(ctx context.Context) (*Atlas, error) {
	v, err, _ := m.group.Do("atlas", func() (interface{}, error) {
		return m.build(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Atlas), nil
}

// Rebuild синоним LoadTextures для админских ручек
func (m *Manager) Rebuild(ctx context.Context) (*Atlas, error) {
	return m.LoadTextures(ctx)
}

// Invalidate сбрасывает атлас в памяти; следующий GetAtlas загрузит или соберёт его заново
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

// Current возвращает атлас в памяти без сборки; nil, если он ещё не загружен
func (m *Manager) Current() *Atlas {
	return m.cached()
}

func (m *Manager) cached() *Atlas {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) store(a *Atlas) {
	m.mu.Lock()
	m.current = a
	m.mu.Unlock()
	m.metrics.textures.Set(float64(len(a.Order)))
}

// build выполняет полную сборку: скан, декодирование, упаковка, композиция, запись.
func (m *Manager) build(ctx context.Context) (a *Atlas, err error) {
	// сборка общая для всех ожидающих, поэтому не зависит от отмены одного из них
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.BuildTimeout)
	defer cancel()

	ctx, span := otel.Tracer("atlas").Start(ctx, "atlas.build")
	defer span.End()

	start := time.Now()
	defer func() {
		m.metrics.duration.Observe(time.Since(start).Seconds())
		if err != nil {
			m.metrics.builds.WithLabelValues("error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "atlas build failed")
			m.logger.Error("Ошибка сборки атласа: %v", err)
			return
		}
		m.metrics.builds.WithLabelValues("ok").Inc()
	}()

	sources, err := m.scan(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.decode(ctx, sources); err != nil {
		return nil, err
	}

	sizes := make([]TextureSize, len(sources))
	for i, s := range sources {
		b := s.img.Bounds()
		sizes[i] = TextureSize{Name: s.name, Width: b.Dx(), Height: b.Dy()}
	}

	layout, err := Pack(sizes, m.cfg.MaxWidth)
	if err != nil {
		return nil, buildErr(OpPack, "", err)
	}

	canvas, err := compose(layout, sources)
	if err != nil {
		return nil, buildErr(OpCompose, "", err)
	}

	fingerprint, err := m.sourceFingerprint()
	if err != nil {
		return nil, buildErr(OpScan, m.cfg.SourceDir, err)
	}

	version := layoutVersion(layout)
	if err := m.write(canvas, atlasMetadata{
		Version:  version,
		Width:    layout.Width,
		Height:   layout.Height,
		Source:   fingerprint,
		Textures: layout.Records,
	}); err != nil {
		return nil, err
	}

	a = newAtlas(m.cfg.PublicURL, version, layout)
	m.store(a)
	m.builds.Add(1)

	span.SetAttributes(
		attribute.Int("atlas.textures", len(layout.Records)),
		attribute.Int("atlas.height", layout.Height),
	)
	m.logger.Info("Атлас собран: %d текстур, %dx%d за %s", len(layout.Records), layout.Width, layout.Height, time.Since(start))
	return a, nil
}

// scan перечисляет PNG файлы каталога и сортирует их по имени
func (m *Manager) scan(ctx context.Context) ([]*sourceTexture, error) {
	entries, err := os.ReadDir(m.cfg.SourceDir)
	if err != nil {
		return nil, buildErr(OpScan, m.cfg.SourceDir, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, buildErr(OpScan, m.cfg.SourceDir, err)
	}

	seen := make(map[string]string)
	sources := make([]*sourceTexture, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !strings.EqualFold(ext, textureExt) {
			continue
		}

		name := strings.TrimSuffix(e.Name(), ext)
		if prev, dup := seen[name]; dup {
			return nil, buildErr(OpScan, m.cfg.SourceDir, fmt.Errorf("%w: %s (%s, %s)", ErrDuplicateTexture, name, prev, e.Name()))
		}
		seen[name] = e.Name()

		sources = append(sources, &sourceTexture{
			name: name,
			path: filepath.Join(m.cfg.SourceDir, e.Name()),
		})
	}

	if len(sources) == 0 {
		return nil, buildErr(OpScan, m.cfg.SourceDir, ErrNoTextures)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].name < sources[j].name })
	return sources, nil
}

// decode параллельно декодирует изображения; порядок sources не меняется
func (m *Manager) decode(ctx context.Context, sources []*sourceTexture) error {
	pool := pond.NewPool(m.cfg.Workers)
	defer pool.StopAndWait()

	var wg sync.WaitGroup
	errs := make([]error, len(sources))

	for i, src := range sources {
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			img, err := decodePNG(src.path)
			if err != nil {
				errs[i] = err
				return
			}
			src.img = img
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return buildErr(OpDecode, sources[i].path, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return buildErr(OpDecode, m.cfg.SourceDir, err)
	}
	return nil
}

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return png.Decode(f)
}

// compose рисует текстуры на прозрачном RGBA холсте
func compose(layout Layout, sources []*sourceTexture) (*image.RGBA, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, layout.Width, layout.Height))
	for i, r := range layout.Records {
		src := sources[i].img
		dst := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
		draw.Draw(canvas, dst, src, src.Bounds().Min, draw.Src)
	}
	return canvas, nil
}

// write атомарно записывает PNG и метаданные: сначала во временные файлы, затем rename
func (m *Manager) write(canvas *image.RGBA, meta atlasMetadata) error {
	if err := os.MkdirAll(m.cfg.OutputDir, 0755); err != nil {
		return buildErr(OpWrite, m.cfg.OutputDir, err)
	}

	tmpImage, err := os.CreateTemp(m.cfg.OutputDir, "atlas-*.png.tmp")
	if err != nil {
		return buildErr(OpWrite, m.cfg.OutputDir, err)
	}
	defer os.Remove(tmpImage.Name())

	if err := png.Encode(tmpImage, canvas); err != nil {
		tmpImage.Close()
		return buildErr(OpWrite, m.ArtifactPath(), err)
	}
	if err := tmpImage.Close(); err != nil {
		return buildErr(OpWrite, m.ArtifactPath(), err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return buildErr(OpWrite, m.metadataPath(), err)
	}
	tmpMeta := m.metadataPath() + ".tmp"
	if err := os.WriteFile(tmpMeta, data, 0644); err != nil {
		return buildErr(OpWrite, m.metadataPath(), err)
	}
	defer os.Remove(tmpMeta)

	if err := os.Rename(tmpImage.Name(), m.ArtifactPath()); err != nil {
		return buildErr(OpWrite, m.ArtifactPath(), err)
	}
	if err := os.Rename(tmpMeta, m.metadataPath()); err != nil {
		return buildErr(OpWrite, m.metadataPath(), err)
	}
	return nil
}

// loadFromDisk восстанавливает атлас из atlas.png + atlas.json.
// Атлас отбрасывается, если метаданные не согласуются с PNG или каталог текстур изменился.
func (m *Manager) loadFromDisk() (*Atlas, error) {
	data, err := os.ReadFile(m.metadataPath())
	if err != nil {
		return nil, err
	}

	var meta atlasMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("метаданные атласа повреждены: %w", err)
	}

	f, err := os.Open(m.ArtifactPath())
	if err != nil {
		return nil, err
	}
	cfg, err := png.DecodeConfig(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("PNG атласа повреждён: %w", err)
	}
	if cfg.Width != meta.Width || cfg.Height != meta.Height {
		return nil, fmt.Errorf("размер PNG %dx%d не совпадает с метаданными %dx%d", cfg.Width, cfg.Height, meta.Width, meta.Height)
	}

	layout := Layout{Width: meta.Width, Height: meta.Height, Records: meta.Textures}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if layoutVersion(layout) != meta.Version {
		return nil, fmt.Errorf("версия атласа не совпадает с раскладкой")
	}

	fingerprint, err := m.sourceFingerprint()
	if err != nil {
		return nil, fmt.Errorf("каталог текстур недоступен: %w", err)
	}
	if fingerprint != meta.Source {
		return nil, fmt.Errorf("каталог текстур изменился")
	}

	return newAtlas(m.cfg.PublicURL, meta.Version, layout), nil
}

// sourceFingerprint хеш списка PNG файлов каталога (имя, размер, mtime)
func (m *Manager) sourceFingerprint() (string, error) {
	entries, err := os.ReadDir(m.cfg.SourceDir)
	if err != nil {
		return "", err
	}

	h := xxhash.New()
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), textureExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return "", err
		}
		_, _ = h.WriteString(e.Name())
		_, _ = h.WriteString(strconv.FormatInt(info.Size(), 10))
		_, _ = h.WriteString(strconv.FormatInt(info.ModTime().UnixNano(), 10))
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}

// layoutVersion отпечаток раскладки; меняется при любом изменении прямоугольников
func layoutVersion(l Layout) string {
	h := xxhash.New()
	_, _ = fmt.Fprintf(h, "%dx%d;", l.Width, l.Height)
	for _, r := range l.Records {
		_, _ = fmt.Fprintf(h, "%s:%d,%d,%d,%d;", r.Name, r.X, r.Y, r.Width, r.Height)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
