package api

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/annel0/voxel-mesher/internal/atlas"
	"github.com/annel0/voxel-mesher/internal/cache"
	"github.com/annel0/voxel-mesher/internal/logging"
	"github.com/annel0/voxel-mesher/internal/mesher"
	"github.com/annel0/voxel-mesher/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logging.Logger {
	return logging.NewWriterLogger("api", io.Discard, logging.ERROR)
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.RGBA{R: 10, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

type testEnv struct {
	server   *RestServer
	atlas    *atlas.Manager
	compiler *mesher.Compiler
	cache    *cache.MemoryCache
}

func newTestEnv(t *testing.T, src world.ChunkSource, textures ...string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	texDir := filepath.Join(root, "blocks")
	require.NoError(t, os.MkdirAll(texDir, 0o755))
	for _, name := range textures {
		writePNG(t, filepath.Join(texDir, name+".png"), 16, 16)
	}

	am := atlas.NewManager(atlas.Config{
		SourceDir: texDir,
		OutputDir: filepath.Join(root, "out"),
		Logger:    quietLogger(),
	})

	mc := cache.NewMemoryCache(0, nil)
	comp, err := mesher.NewCompiler(mesher.Config{
		Atlas:     am,
		Source:    src,
		CullFaces: true,
		Cache:     mc,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	static := filepath.Join(root, "web")
	require.NoError(t, os.MkdirAll(filepath.Join(static, "js"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>client</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(static, "js", "app.js"), []byte("console.log(1)"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("secret"), 0o644))

	reg := prometheus.NewRegistry()
	server := NewRestServer(Config{
		Atlas:      am,
		Renderer:   comp,
		Cache:      mc,
		StaticDir:  static,
		Registerer: reg,
		Gatherer:   reg,
		Logger:     quietLogger(),
	})
	return &testEnv{server: server, atlas: am, compiler: comp, cache: mc}
}

func (e *testEnv) do(method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func TestGetAtlas(t *testing.T) {
	env := newTestEnv(t, world.NewDemoSource("stone"), "stone")

	w := env.do(http.MethodGet, "/api/textures/atlas")
	require.Equal(t, http.StatusOK, w.Code)

	var resp AtlasResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "/textures/atlas.png", resp.Atlas)
	assert.Equal(t, 16, resp.Height)
	assert.Equal(t, map[string]atlas.TextureRecord{
		"stone": {Name: "stone", X: 0, Y: 0, Width: 16, Height: 16},
	}, resp.Textures)
	assert.NotEmpty(t, w.Header().Get("ETag"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetAtlasFailure(t *testing.T) {
	// каталог текстур пуст
	env := newTestEnv(t, world.NewDemoSource("stone"))

	w := env.do(http.MethodGet, "/api/textures/atlas")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to get texture atlas"}`, w.Body.String())

	w = env.do(http.MethodGet, "/textures/atlas.png")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetChunk(t *testing.T) {
	env := newTestEnv(t, world.NewDemoSource("stone"), "stone")

	w := env.do(http.MethodGet, "/api/chunk/0/0/0")
	require.Equal(t, http.StatusOK, w.Code)

	var mesh mesher.MergedMesh
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mesh))
	assert.Len(t, mesh.Vertices, 72)
	assert.Len(t, mesh.UVs, 48)
	assert.Len(t, mesh.Normals, 72)
	assert.Len(t, mesh.Indices, 36)
	assert.Equal(t, []uint32{0, 1, 2, 2, 3, 0, 4, 5, 6, 6, 7, 4}, mesh.Indices[:12])
}

func TestGetChunkInvalidCoordinate(t *testing.T) {
	env := newTestEnv(t, world.NewDemoSource("stone"), "stone")

	for _, target := range []string{
		"/api/chunk/abc/0/0",
		"/api/chunk/0/1.5/0",
		"/api/chunk/0/0/NaN",
		"/api/chunk/0/0/1e3",
		"/api/chunk/576460752303423488/0/0",
		"/api/chunk/0/-576460752303423488/0",
	} {
		w := env.do(http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.JSONEq(t, `{"error":"Invalid chunk coordinate"}`, w.Body.String(), target)
	}

	// до атласа дело не дошло
	assert.Zero(t, env.atlas.BuildCount())
}

func TestGetChunkRenderFailureDoesNotLeakDetails(t *testing.T) {
	// блок stone, а в атласе только dirt
	env := newTestEnv(t, world.NewDemoSource("stone"), "dirt")

	w := env.do(http.MethodGet, "/api/chunk/0/0/0")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to render chunk"}`, w.Body.String())

	// атлас не пострадал
	w = env.do(http.MethodGet, "/api/textures/atlas")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAtlasImage(t *testing.T) {
	env := newTestEnv(t, world.NewDemoSource("stone"), "stone")

	w := env.do(http.MethodGet, "/textures/atlas.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	cfg, err := png.DecodeConfig(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.Width)
	assert.Equal(t, 16, cfg.Height)
}

func TestRebuildAtlas(t *testing.T) {
	env := newTestEnv(t, world.NewDemoSource("stone"), "stone")

	w := env.do(http.MethodPost, "/api/textures/atlas/rebuild")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), env.atlas.BuildCount())
}

func TestInvalidateChunk(t *testing.T) {
	env := newTestEnv(t, world.NewDemoSource("stone"), "stone")

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/chunk/1/2/3").Code)
	assert.Equal(t, int64(1), env.cache.Stats().Keys)

	w := env.do(http.MethodPost, "/api/chunk/1/2/3/invalidate")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, env.cache.Stats().Keys)

	w = env.do(http.MethodPost, "/api/chunk/x/2/3/invalidate")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, world.NewDemoSource("stone"), "stone")

	w := env.do(http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var before HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &before))
	assert.Equal(t, "ok", before.Status)
	assert.NotEmpty(t, before.Uptime)
	assert.False(t, before.Atlas.Ready)
	require.NotNil(t, before.MeshCache)

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/chunk/0/0/0").Code)

	w = env.do(http.MethodGet, "/health")
	var after HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	assert.True(t, after.Atlas.Ready)
	assert.Equal(t, 1, after.Atlas.Textures)
	assert.NotEmpty(t, after.Atlas.Version)
	assert.Equal(t, int64(1), after.MeshCache.Keys)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5с", formatUptime(5*time.Second))
	assert.Equal(t, "2м 5с", formatUptime(2*time.Minute+5*time.Second))
	assert.Equal(t, "1ч 0м 0с", formatUptime(time.Hour))
	assert.Equal(t, "1д 1ч 1м 1с", formatUptime(25*time.Hour+time.Minute+time.Second))
}

func TestMetricsEndpointExposesRenderMetrics(t *testing.T) {
	env := newTestEnv(t, world.NewDemoSource("stone"), "stone")
	env.do(http.MethodGet, "/api/chunk/0/0/0")

	w := env.do(http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mesher_http_request_duration_seconds")
}

func TestStaticClient(t *testing.T) {
	env := newTestEnv(t, world.NewDemoSource("stone"), "stone")

	w := env.do(http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "client")

	w = env.do(http.MethodGet, "/js/app.js")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "console.log")

	w = env.do(http.MethodGet, "/missing.js")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/../secret.txt")
	assert.NotContains(t, w.Body.String(), "secret")

	w = env.do(http.MethodPost, "/index.html")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, world.NewDemoSource("stone"), "stone")

	w := env.do(http.MethodOptions, "/api/chunk/0/0/0")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseCoordinate(t *testing.T) {
	n, err := parseCoordinate("x", "-12")
	require.NoError(t, err)
	assert.Equal(t, -12, n)

	_, err = parseCoordinate("y", "")
	var coordErr *InvalidCoordinateError
	require.True(t, errors.As(err, &coordErr))
	assert.Equal(t, "y", coordErr.Axis)
	assert.Error(t, errors.Unwrap(err))

	n, err = parseCoordinate("x", strconv.Itoa(maxChunkCoord))
	require.NoError(t, err)
	assert.Equal(t, maxChunkCoord, n)

	for _, v := range []string{strconv.Itoa(maxChunkCoord + 1), strconv.Itoa(-maxChunkCoord - 1)} {
		_, err = parseCoordinate("z", v)
		require.True(t, errors.As(err, &coordErr), v)
		assert.ErrorIs(t, err, errCoordinateRange, v)
	}

	// сосед последнего блока крайнего чанка не переполняет int
	ox, _, _ := world.ChunkCoord{X: maxChunkCoord}.Origin()
	assert.Greater(t, ox+world.ChunkSize, ox)
}

type failingRenderer struct{}

func (failingRenderer) RenderChunk(ctx context.Context, x, y, z int) (*mesher.MergedMesh, error) {
	return nil, errors.New("/srv/secret/path: permission denied")
}

func (failingRenderer) Invalidate(ctx context.Context, x, y, z int) error {
	return errors.New("redis down")
}

func TestRendererErrorsAreGeneric(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	server := NewRestServer(Config{
		Renderer:   failingRenderer{},
		Registerer: reg,
		Gatherer:   reg,
		Logger:     quietLogger(),
	})

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chunk/0/0/0", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "/srv/secret")

	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chunk/0/0/0/invalidate", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to invalidate chunk"}`, w.Body.String())
}

type channelInvalidator struct {
	keys chan string
}

func (c *channelInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	c.keys <- key
	return nil
}

func (c *channelInvalidator) SubscribeInvalidations(ctx context.Context, handler cache.InvalidationHandler) error {
	return nil
}

func (c *channelInvalidator) Close() error { return nil }

func TestRebuildAtlasBroadcastsAtlasInvalidation(t *testing.T) {
	env := newTestEnv(t, world.NewDemoSource("stone"), "stone")

	inv := &channelInvalidator{keys: make(chan string, 1)}
	reg := prometheus.NewRegistry()
	server := NewRestServer(Config{
		Atlas:      env.atlas,
		Renderer:   env.compiler,
		Cache:      cache.NewMemoryCache(0, inv),
		Registerer: reg,
		Gatherer:   reg,
		Logger:     quietLogger(),
	})

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/textures/atlas/rebuild", nil))
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case key := <-inv.keys:
		assert.Equal(t, cache.AtlasKey, key)
	case <-time.After(2 * time.Second):
		t.Fatal("инвалидация атласа не отправлена")
	}
}
