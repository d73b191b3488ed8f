package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/annel0/voxel-mesher/internal/api"
	"github.com/annel0/voxel-mesher/internal/atlas"
	"github.com/annel0/voxel-mesher/internal/cache"
	"github.com/annel0/voxel-mesher/internal/config"
	"github.com/annel0/voxel-mesher/internal/logging"
	"github.com/annel0/voxel-mesher/internal/mesher"
	"github.com/annel0/voxel-mesher/internal/observability"
	"github.com/annel0/voxel-mesher/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const badgerGCInterval = 10 * time.Minute

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $MESHER_CONFIG)")
	warm := flag.Bool("warm", true, "собрать атлас при старте")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if cfg.Logging.ToFile {
		if err := logging.InitDefaultLogger("server"); err != nil {
			log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
		}
	} else {
		logging.GetLoggerManager().SetFileless(true)
	}
	logging.SetDefaultLevel(logging.ParseLevel(cfg.Logging.Level))

	logging.Info("🧊 Запуск voxel-mesher...")

	if err := run(cfg, *warm); err != nil {
		logging.Error("❌ %v", err)
		// os.Exit не выполняет defer
		closeLogs()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
	closeLogs()
}

// closeLogs сбрасывает и закрывает файлы логов компонентов и глобального логгера
func closeLogs() {
	if err := logging.GetLoggerManager().CloseAll(); err != nil {
		log.Printf("⚠️  Закрытие логов: %v", err)
	}
	logging.CloseDefaultLogger()
}

func run(cfg *config.Config, warm bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.InitTelemetry(ctx, observability.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("ошибка инициализации OpenTelemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("Ошибка остановки OpenTelemetry: %v", err)
		}
	}()

	reg := prometheus.DefaultRegisterer

	// === АТЛАС ===
	atlasManager := atlas.NewManager(atlas.Config{
		SourceDir:    cfg.Atlas.SourceDir,
		OutputDir:    cfg.Atlas.OutputDir,
		MaxWidth:     cfg.Atlas.MaxWidth,
		BuildTimeout: cfg.Atlas.BuildTimeout,
		Metrics:      atlas.NewMetrics(reg),
	})
	if warm {
		if a, err := atlasManager.GetAtlas(ctx); err != nil {
			// не фатально: API вернёт 500, следующий запрос попробует снова
			logging.Warn("⚠️  Атлас не собран: %v", err)
		} else {
			logging.Info("🧱 Атлас готов: %d текстур, %dx%d", len(a.Textures), a.Width, a.Height)
		}
	}

	// === МИР ===
	registry := world.DefaultRegistry()
	if cfg.World.BlocksFile != "" {
		if err := registry.LoadYAML(cfg.World.BlocksFile); err != nil {
			return fmt.Errorf("ошибка загрузки блоков: %w", err)
		}
		logging.Info("Загружены типы блоков из %s", cfg.World.BlocksFile)
	}

	var source world.ChunkSource
	switch cfg.World.Source {
	case "generator":
		source = world.NewGeneratorSource(cfg.World.Seed, cfg.World.SeaLevel)
		logging.Info("🌍 Источник мира: генератор (seed=%d, sea=%d)", cfg.World.Seed, cfg.World.SeaLevel)
	default:
		source = world.NewDemoSource("stone")
		logging.Info("🌍 Источник мира: демо (один блок на чанк)")
	}

	// === КЕШ МЕШЕЙ ===
	meshCache, closeCache, err := buildCache(ctx, cfg.Cache, atlasManager.Invalidate)
	if err != nil {
		return err
	}
	defer closeCache()

	compiler, err := mesher.NewCompiler(mesher.Config{
		Atlas:     atlasManager,
		Source:    source,
		Registry:  registry,
		CullFaces: cfg.Mesher.CullFacesEnabled(),
		Cache:     meshCache,
		CacheTTL:  cfg.Mesher.CacheTTL,
		Metrics:   mesher.NewMetrics(reg),
	})
	if err != nil {
		return err
	}

	// === REST API ===
	gin.SetMode(gin.ReleaseMode)
	restServer := api.NewRestServer(api.Config{
		Port:        fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		Atlas:       atlasManager,
		Renderer:    compiler,
		Cache:       meshCache,
		StaticDir:   cfg.Server.StaticDir,
		AdminToken:  cfg.Server.GetAdminToken(),
		ServiceName: strings.ReplaceAll(cfg.Telemetry.ServiceName, "-", "_"),
	})
	integration := api.NewServerIntegration(restServer)
	if err := integration.Start(); err != nil {
		return err
	}

	logging.Info("✅ Все сервисы запущены")
	logging.Info("💡 curl http://localhost:%d/api/chunk/0/0/0", cfg.Server.GetRESTPort())

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, останавливаемся...")
	case err := <-integration.Errors():
		if err != nil {
			return fmt.Errorf("REST API: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return integration.Stop(shutdownCtx)
}

// buildCache собирает кеш мешей по конфигурации:
// Redis (с Badger как холодным хранилищем) или память; NATS рассылает инвалидации.
// onAtlasInvalidated вызывается, когда другой узел пересобрал атлас.
func buildCache(ctx context.Context, cfg config.CacheConfig, onAtlasInvalidated func()) (cache.MeshCache, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logging.Warn("Ошибка закрытия кеша: %v", err)
			}
		}
	}

	var invalidator *cache.NATSInvalidator
	if cfg.NATSURL != "" {
		inv, err := cache.NewNATSInvalidator(cache.InvalidatorConfig{NATSURL: cfg.NATSURL}, cfg.NodeID)
		if err != nil {
			return nil, nil, err
		}
		invalidator = inv
		closers = append(closers, inv.Close)
	}

	var cold cache.ColdStorage
	if cfg.BadgerPath != "" && cfg.RedisURL == "" {
		logging.Warn("cache.badger_path используется только вместе с cache.redis_url, игнорируем")
	}
	if cfg.BadgerPath != "" && cfg.RedisURL != "" {
		store, err := cache.NewBadgerStore(cfg.BadgerPath)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		cold = store
		closers = append(closers, store.Close)

		gcCtx, stopGC := context.WithCancel(ctx)
		go runBadgerGC(gcCtx, store)
		closers = append(closers, func() error { stopGC(); return nil })
	}

	var meshCache cache.MeshCache
	var inv cache.Invalidator
	if invalidator != nil {
		inv = invalidator
	}

	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cold, inv)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		meshCache = rc
		logging.Info("🗄️  Кеш мешей: Redis %s", cfg.RedisURL)
	} else {
		meshCache = cache.NewMemoryCache(0, inv)
		logging.Info("🗄️  Кеш мешей: память процесса")
	}
	// кеш закрывается раньше хранилищ, чтобы Write-Behind успел дописать
	closers = append(closers, meshCache.Close)

	if invalidator != nil {
		err := invalidator.SubscribeInvalidations(ctx, func(key string) error {
			if key == cache.AtlasKey {
				onAtlasInvalidated()
				return nil
			}
			return meshCache.Delete(context.Background(), key)
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
	}

	return meshCache, closeAll, nil
}

// runBadgerGC периодически чистит value log холодного хранилища
func runBadgerGC(ctx context.Context, store *cache.BadgerStore) {
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.RunGC()
		}
	}
}
