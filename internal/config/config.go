package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Atlas     AtlasConfig     `yaml:"atlas"`
	Mesher    MesherConfig    `yaml:"mesher"`
	World     WorldConfig     `yaml:"world"`
	Cache     CacheConfig     `yaml:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	RESTPort  int    `yaml:"rest_port"`
	StaticDir string `yaml:"static_dir"`

	// AdminToken защищает POST маршруты; пусто: без защиты
	AdminToken string `yaml:"admin_token"`
}

type AtlasConfig struct {
	SourceDir    string        `yaml:"source_dir"`
	OutputDir    string        `yaml:"output_dir"`
	MaxWidth     int           `yaml:"max_width"`
	BuildTimeout time.Duration `yaml:"build_timeout"`

	// SourceURL адрес текстур-пака для cmd/tools/fetch-textures
	SourceURL string `yaml:"source_url"`
}

type MesherConfig struct {
	CullFaces *bool         `yaml:"cull_faces"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type WorldConfig struct {
	// Source: "demo" или "generator"
	Source     string `yaml:"source"`
	Seed       int64  `yaml:"seed"`
	SeaLevel   int    `yaml:"sea_level"`
	BlocksFile string `yaml:"blocks_file"`
}

type CacheConfig struct {
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	BadgerPath    string `yaml:"badger_path"`
	NATSURL       string `yaml:"nats_url"`
	NodeID        string `yaml:"node_id"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`     // host:port OTLP/HTTP, пусто: OTEL_EXPORTER_OTLP_*
	SampleRatio float64 `yaml:"sample_ratio"` // 0 или 1: все трассы
}

type LoggingConfig struct {
	Level string `yaml:"level"`

	// ToFile включает запись логов в каталог logs/
	ToFile bool `yaml:"to_file"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults заполняет незаданные поля
func (c *Config) applyDefaults() {
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "web"
	}
	if c.Atlas.SourceDir == "" {
		c.Atlas.SourceDir = "textures/blocks"
	}
	if c.Atlas.OutputDir == "" {
		c.Atlas.OutputDir = "textures"
	}
	if c.Atlas.MaxWidth <= 0 {
		c.Atlas.MaxWidth = 2048
	}
	if c.Atlas.BuildTimeout <= 0 {
		c.Atlas.BuildTimeout = 30 * time.Second
	}
	if c.Mesher.CullFaces == nil {
		cull := true
		c.Mesher.CullFaces = &cull
	}
	if c.Mesher.CacheTTL <= 0 {
		c.Mesher.CacheTTL = 10 * time.Minute
	}
	if c.World.Source == "" {
		c.World.Source = "demo"
	}
	if c.World.SeaLevel == 0 {
		c.World.SeaLevel = 24
	}
	if c.Cache.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			c.Cache.NodeID = host
		} else {
			c.Cache.NodeID = "mesher"
		}
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "voxel-mesher"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate проверяет значения, которые нельзя исправить дефолтами
func (c *Config) Validate() error {
	switch c.World.Source {
	case "demo", "generator":
	default:
		return fmt.Errorf("world.source: неизвестный источник %q", c.World.Source)
	}
	if c.Atlas.SourceDir == c.Atlas.OutputDir {
		// атлас не должен попадать в список исходных текстур
		return fmt.Errorf("atlas.output_dir не должен совпадать с atlas.source_dir")
	}
	return nil
}

// CullFacesEnabled возвращает флаг отсечения скрытых граней
func (m *MesherConfig) CullFacesEnabled() bool {
	return m.CullFaces == nil || *m.CullFaces
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "MESHER_REST_PORT", 3000)
}

// GetAdminToken возвращает токен из конфигурации или из ENV MESHER_ADMIN_TOKEN
func (s *ServerConfig) GetAdminToken() string {
	if s.AdminToken != "" {
		return s.AdminToken
	}
	return os.Getenv("MESHER_ADMIN_TOKEN")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV MESHER_CONFIG, иначе возвращает дефолты.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MESHER_CONFIG")
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
