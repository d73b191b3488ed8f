package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/annel0/voxel-mesher/internal/atlas"
	"github.com/annel0/voxel-mesher/internal/cache"
	"github.com/annel0/voxel-mesher/internal/logging"
	"github.com/annel0/voxel-mesher/internal/mesher"
	"github.com/annel0/voxel-mesher/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Сообщения об ошибках для клиента; подробности остаются в логах
const (
	msgAtlasFailed      = "Failed to get texture atlas"
	msgRebuildFailed    = "Failed to rebuild texture atlas"
	msgRenderFailed     = "Failed to render chunk"
	msgInvalidCoord     = "Invalid chunk coordinate"
	msgInvalidateFailed = "Failed to invalidate chunk"
	msgNotFound         = "Not found"
)

// AtlasService атлас текстур (atlas.Manager)
type AtlasService interface {
	GetAtlas(ctx context.Context) (*atlas.Atlas, error)
	Rebuild(ctx context.Context) (*atlas.Atlas, error)
	// Current атлас в памяти без сборки, nil если не загружен
	Current() *atlas.Atlas
	ArtifactPath() string
}

// ChunkRenderer построитель мешей чанков (mesher.Compiler)
type ChunkRenderer interface {
	RenderChunk(ctx context.Context, x, y, z int) (*mesher.MergedMesh, error)
	Invalidate(ctx context.Context, x, y, z int) error
}

// RestServer HTTP API сервиса мешей
type RestServer struct {
	router    *gin.Engine
	atlas     AtlasService
	renderer  ChunkRenderer
	cache     cache.MeshCache
	staticDir string
	port      string
	metrics   *ServerMetrics
	logger    *logging.Logger

	adminToken string
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port      string // адрес для запуска сервера, например ":3000"
	Atlas     AtlasService
	Renderer  ChunkRenderer
	Cache     cache.MeshCache // опционально, для статистики в /health
	StaticDir string          // каталог браузерного клиента; пусто: не раздаётся

	// AdminToken bearer-токен для POST маршрутов пересборки и инвалидации
	AdminToken string

	ServiceName string // префикс HTTP-метрик и имя otelgin
	Registerer  prometheus.Registerer
	Gatherer    prometheus.Gatherer
	Logger      *logging.Logger
}

// AtlasResponse ответ GET /api/textures/atlas
type AtlasResponse struct {
	Atlas    string                         `json:"atlas"`
	Width    int                            `json:"width"`
	Height   int                            `json:"height"`
	Textures map[string]atlas.TextureRecord `json:"textures"`
}

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewRestServer создаёт REST сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":3000"
	}
	if config.ServiceName == "" {
		config.ServiceName = "mesher"
	}
	if config.Logger == nil {
		config.Logger = logging.GetAPILogger()
	}

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// otelgin первым, чтобы RequestLogger взял trace-id из span
	router.Use(otelgin.Middleware(config.ServiceName))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	promMw := middleware.NewPrometheusMiddleware(config.ServiceName, config.Registerer, config.Gatherer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	server := &RestServer{
		router:    router,
		atlas:     config.Atlas,
		renderer:  config.Renderer,
		cache:     config.Cache,
		staticDir: config.StaticDir,
		port:      config.Port,
		metrics:   NewServerMetrics(),
		logger:    config.Logger,

		adminToken: config.AdminToken,
	}

	server.setupRoutes()
	return server
}

// Handler возвращает http.Handler роутера
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	api := rs.router.Group("/api")
	{
		api.GET("/textures/atlas", rs.handleGetAtlas)
		api.POST("/textures/atlas/rebuild", rs.adminMiddleware(), rs.handleRebuildAtlas)

		api.GET("/chunk/:x/:y/:z", rs.handleGetChunk)
		api.POST("/chunk/:x/:y/:z/invalidate", rs.adminMiddleware(), rs.handleInvalidateChunk)
	}

	rs.router.GET("/textures/atlas.png", rs.handleAtlasImage)
	rs.router.GET("/health", rs.handleHealth)

	rs.router.NoRoute(rs.handleStatic)
}

// handleGetAtlas отдаёт раскладку атласа
func (rs *RestServer) handleGetAtlas(c *gin.Context) {
	a, err := rs.atlas.GetAtlas(c.Request.Context())
	if err != nil {
		rs.logger.Error("Ошибка получения атласа: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgAtlasFailed})
		return
	}

	c.Header("ETag", `"`+a.Version+`"`)
	c.JSON(http.StatusOK, newAtlasResponse(a))
}

// handleRebuildAtlas принудительно пересобирает атлас из каталога текстур
func (rs *RestServer) handleRebuildAtlas(c *gin.Context) {
	a, err := rs.atlas.Rebuild(c.Request.Context())
	if err != nil {
		rs.logger.Error("Ошибка пересборки атласа: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgRebuildFailed})
		return
	}

	rs.logger.Info("🧱 Атлас пересобран: %d текстур", len(a.Textures))
	if rs.cache != nil {
		// остальные узлы перечитают атлас; меши старой версии перестают совпадать по ключу
		if err := rs.cache.Invalidate(c.Request.Context(), cache.AtlasKey); err != nil {
			rs.logger.Warn("Не удалось разослать инвалидацию атласа: %v", err)
		}
	}
	c.JSON(http.StatusOK, newAtlasResponse(a))
}

// handleAtlasImage отдаёт PNG атласа, собирая его при необходимости
func (rs *RestServer) handleAtlasImage(c *gin.Context) {
	a, err := rs.atlas.GetAtlas(c.Request.Context())
	if err != nil {
		rs.logger.Error("Ошибка получения атласа: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgAtlasFailed})
		return
	}

	c.Header("ETag", `"`+a.Version+`"`)
	c.Header("Cache-Control", "no-cache")
	c.File(rs.atlas.ArtifactPath())
}

// handleGetChunk строит меш чанка
func (rs *RestServer) handleGetChunk(c *gin.Context) {
	x, y, z, err := chunkCoordinates(c)
	if err != nil {
		rs.logger.Debug("Неверные координаты чанка: %v", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgInvalidCoord})
		return
	}

	logging.LogChunkRequest(c.ClientIP(), x, y, z)

	mesh, err := rs.renderer.RenderChunk(c.Request.Context(), x, y, z)
	if err != nil {
		var notFound *mesher.TextureNotFoundError
		if errors.As(err, &notFound) {
			rs.logger.Error("Чанк (%d,%d,%d): %v", x, y, z, notFound)
		} else {
			rs.logger.Error("Ошибка построения чанка (%d,%d,%d): %v", x, y, z, err)
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgRenderFailed})
		return
	}

	logging.LogChunkMesh(x, y, z, mesh.FaceCount(), mesh.VertexCount())
	c.JSON(http.StatusOK, mesh)
}

// handleInvalidateChunk сбрасывает кешированный меш чанка на всех узлах
func (rs *RestServer) handleInvalidateChunk(c *gin.Context) {
	x, y, z, err := chunkCoordinates(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgInvalidCoord})
		return
	}

	if err := rs.renderer.Invalidate(c.Request.Context(), x, y, z); err != nil {
		rs.logger.Error("Ошибка инвалидации чанка (%d,%d,%d): %v", x, y, z, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInvalidateFailed})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	var stats *cache.Stats
	if rs.cache != nil {
		st := rs.cache.Stats()
		stats = &st
	}
	c.JSON(http.StatusOK, rs.metrics.Report(rs.atlas.Current(), stats))
}

// handleStatic раздаёт браузерный клиент для всех остальных GET-запросов
func (rs *RestServer) handleStatic(c *gin.Context) {
	if rs.staticDir == "" || (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: msgNotFound})
		return
	}

	// path.Clean от корня не даёт выйти за пределы каталога
	rel := path.Clean("/" + c.Request.URL.Path)
	if strings.HasSuffix(rel, "/") {
		rel += "index.html"
	}
	file := filepath.Join(rs.staticDir, filepath.FromSlash(rel))

	info, err := os.Stat(file)
	if err == nil && info.IsDir() {
		file = filepath.Join(file, "index.html")
		info, err = os.Stat(file)
	}
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: msgNotFound})
		return
	}
	c.File(file)
}

func chunkCoordinates(c *gin.Context) (int, int, int, error) {
	x, err := parseCoordinate("x", c.Param("x"))
	if err != nil {
		return 0, 0, 0, err
	}
	y, err := parseCoordinate("y", c.Param("y"))
	if err != nil {
		return 0, 0, 0, err
	}
	z, err := parseCoordinate("z", c.Param("z"))
	if err != nil {
		return 0, 0, 0, err
	}
	return x, y, z, nil
}

func newAtlasResponse(a *atlas.Atlas) AtlasResponse {
	return AtlasResponse{
		Atlas:    a.Image,
		Width:    a.Width,
		Height:   a.Height,
		Textures: a.Textures,
	}
}
