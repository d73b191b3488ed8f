package mesher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/voxel-mesher/internal/atlas"
	"github.com/annel0/voxel-mesher/internal/cache"
	"github.com/annel0/voxel-mesher/internal/logging"
	"github.com/annel0/voxel-mesher/internal/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AtlasProvider источник текущего атласа (atlas.Manager)
type AtlasProvider interface {
	GetAtlas(ctx context.Context) (*atlas.Atlas, error)
}

// Config зависимости компилятора мешей
type Config struct {
	Atlas    AtlasProvider
	Source   world.ChunkSource
	Registry *world.Registry

	// CullFaces выдавать только грани, соседствующие с пустой или прозрачной ячейкой.
	// false: все шесть граней каждого блока.
	CullFaces bool

	// Cache опциональный кеш готовых мешей
	Cache    cache.MeshCache
	CacheTTL time.Duration
	Codec    *Codec

	Metrics *Metrics
	Logger  *logging.Logger
}

// Compiler строит MergedMesh для чанка.
// Не хранит изменяемого состояния между вызовами, RenderChunk безопасен для конкурентного вызова.
type Compiler struct {
	cfg     Config
	metrics *Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewCompiler создаёт компилятор
func NewCompiler(cfg Config) (*Compiler, error) {
	if cfg.Atlas == nil {
		return nil, errors.New("mesher: не задан источник атласа")
	}
	if cfg.Source == nil {
		return nil, errors.New("mesher: не задан источник чанков")
	}
	if cfg.Registry == nil {
		cfg.Registry = world.DefaultRegistry()
	}
	if cfg.Cache != nil && cfg.Codec == nil {
		codec, err := NewCodec()
		if err != nil {
			return nil, err
		}
		cfg.Codec = codec
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetMesherLogger()
	}

	return &Compiler{
		cfg:     cfg,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		tracer:  otel.Tracer("mesher"),
	}, nil
}

// RenderChunk строит меш чанка (x,y,z).
// Отсутствующая в атласе текстура завершает рендер ошибкой *TextureNotFoundError.
// Ошибки кеша только логируются.
func (c *Compiler) RenderChunk(ctx context.Context, x, y, z int) (mesh *MergedMesh, err error) {
	coord := world.ChunkCoord{X: x, Y: y, Z: z}

	ctx, span := c.tracer.Start(ctx, "mesher.render_chunk", trace.WithAttributes(
		attribute.Int("chunk.x", x),
		attribute.Int("chunk.y", y),
		attribute.Int("chunk.z", z),
	))
	defer span.End()

	start := time.Now()
	result := "ok"
	defer func() {
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.metrics.chunks.WithLabelValues(result).Inc()
		c.metrics.duration.Observe(time.Since(start).Seconds())
	}()

	a, err := c.cfg.Atlas.GetAtlas(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение атласа: %w", err)
	}

	key := cache.MeshKey(a.Version, x, y, z)
	if cached := c.fromCache(ctx, key); cached != nil {
		result = "cached"
		span.SetAttributes(attribute.Bool("mesh.cached", true))
		return cached, nil
	}

	faces, err := c.buildFaces(ctx, a, coord)
	if err != nil {
		return nil, err
	}

	mesh = MergeFaces(faces)
	c.metrics.faces.Add(float64(len(faces)))
	span.SetAttributes(attribute.Int("mesh.faces", len(faces)))
	c.logger.Debug("Чанк %s: %d граней за %v", coord, len(faces), time.Since(start))

	c.toCache(ctx, key, mesh)
	return mesh, nil
}

// Invalidate удаляет меш чанка из кеша для текущей версии атласа
func (c *Compiler) Invalidate(ctx context.Context, x, y, z int) error {
	if c.cfg.Cache == nil {
		return nil
	}
	a, err := c.cfg.Atlas.GetAtlas(ctx)
	if err != nil {
		return fmt.Errorf("получение атласа: %w", err)
	}
	return c.cfg.Cache.Invalidate(ctx, cache.MeshKey(a.Version, x, y, z))
}

// buildFaces выдаёт видимые грани всех блоков чанка
func (c *Compiler) buildFaces(ctx context.Context, a *atlas.Atlas, coord world.ChunkCoord) ([]Face, error) {
	blocks, err := c.cfg.Source.Blocks(ctx, coord)
	if err != nil {
		return nil, fmt.Errorf("чтение чанка %s: %w", coord, err)
	}

	// локальная сетка для соседей внутри чанка
	var grid [world.ChunkVolume]string
	for _, b := range blocks {
		if !world.InBounds(b.X, b.Y, b.Z) {
			return nil, fmt.Errorf("чанк %s: блок вне границ (%d,%d,%d)", coord, b.X, b.Y, b.Z)
		}
		grid[gridIndex(b.X, b.Y, b.Z)] = b.Type
	}

	ox, oy, oz := coord.Origin()
	faces := make([]Face, 0, len(blocks))
	textures := make(map[string]*[6]atlas.TextureRecord)

	for _, b := range blocks {
		if b.Type == world.Air {
			continue
		}
		// текстуры проверяются до отсечения: скрытый блок без текстуры тоже ошибка
		rects, ok := textures[b.Type]
		if !ok {
			if rects, err = c.resolveTextures(a, b.Type); err != nil {
				return nil, err
			}
			textures[b.Type] = rects
		}

		for _, d := range AllDirections {
			if c.cfg.CullFaces {
				visible, err := c.faceVisible(ctx, &grid, ox, oy, oz, b, d)
				if err != nil {
					return nil, err
				}
				if !visible {
					continue
				}
			}

			faces = append(faces, NewFace(b.X, b.Y, b.Z, d, rects[d]))
		}
	}
	return faces, nil
}

// resolveTextures находит в атласе текстуры всех шести граней типа блока
func (c *Compiler) resolveTextures(a *atlas.Atlas, blockType string) (*[6]atlas.TextureRecord, error) {
	var rects [6]atlas.TextureRecord
	for _, d := range AllDirections {
		texture := c.cfg.Registry.TextureFor(blockType, d.FaceKind())
		rect, ok := a.Lookup(texture)
		if !ok {
			return nil, &TextureNotFoundError{Texture: texture, Block: blockType}
		}
		rects[d] = rect
	}
	return &rects, nil
}

// faceVisible грань видна, если соседняя ячейка пуста или прозрачна
func (c *Compiler) faceVisible(ctx context.Context, grid *[world.ChunkVolume]string, ox, oy, oz int, b world.BlockPlacement, d Direction) (bool, error) {
	dx, dy, dz := d.Offset()
	nx, ny, nz := b.X+dx, b.Y+dy, b.Z+dz

	var neighbour string
	if world.InBounds(nx, ny, nz) {
		neighbour = grid[gridIndex(nx, ny, nz)]
	} else {
		typ, ok, err := c.cfg.Source.BlockAt(ctx, ox+nx, oy+ny, oz+nz)
		if err != nil {
			return false, fmt.Errorf("сосед (%d,%d,%d): %w", ox+nx, oy+ny, oz+nz, err)
		}
		if ok {
			neighbour = typ
		}
	}

	return c.cfg.Registry.IsTransparent(neighbour), nil
}

func (c *Compiler) fromCache(ctx context.Context, key string) *MergedMesh {
	if c.cfg.Cache == nil {
		return nil
	}

	data, err := c.cfg.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("Ошибка чтения кеша %s: %v", key, err)
		}
		c.metrics.cacheMisses.Inc()
		return nil
	}

	mesh, err := c.cfg.Codec.Decode(data)
	if err != nil {
		c.logger.Warn("Повреждённый меш в кеше %s: %v", key, err)
		c.metrics.cacheMisses.Inc()
		return nil
	}
	c.metrics.cacheHits.Inc()
	return mesh
}

func (c *Compiler) toCache(ctx context.Context, key string, mesh *MergedMesh) {
	if c.cfg.Cache == nil {
		return
	}

	data, err := c.cfg.Codec.Encode(mesh)
	if err != nil {
		c.logger.Warn("Не удалось закодировать меш %s: %v", key, err)
		return
	}
	if err := c.cfg.Cache.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Warn("Ошибка записи кеша %s: %v", key, err)
	}
}

func gridIndex(x, y, z int) int {
	return (y*world.ChunkSize+z)*world.ChunkSize + x
}
