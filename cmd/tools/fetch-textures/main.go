package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/annel0/voxel-mesher/internal/atlas"
	"github.com/annel0/voxel-mesher/internal/config"
	"github.com/annel0/voxel-mesher/internal/logging"
	get "github.com/hashicorp/go-getter"
)

// fetch-textures скачивает текстур-пак в каталог исходных текстур и собирает атлас.
//
// Источник: любой адрес go-getter, например:
//
//	git::https://github.com/user/pack.git//textures/blocks
//	https://example.com/blocks.zip
func main() {
	var (
		configPath = flag.String("config", "", "путь к YAML конфигурации")
		src        = flag.String("src", "", "адрес текстур-пака (по умолчанию atlas.source_url)")
		out        = flag.String("o", "", "каталог текстур (по умолчанию atlas.source_dir)")
		build      = flag.Bool("build", true, "собрать атлас после загрузки")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if *src == "" {
		*src = cfg.Atlas.SourceURL
	}
	if *out == "" {
		*out = cfg.Atlas.SourceDir
	}
	if *src == "" {
		log.Fatal("❌ не задан адрес текстур-пака (-src или atlas.source_url)")
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		log.Fatalf("❌ %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client := &get.Client{
		Ctx:  ctx,
		Src:  *src,
		Dst:  *out,
		Mode: get.ClientModeDir,
	}
	if err := client.Get(); err != nil {
		log.Fatalf("❌ Ошибка загрузки %s: %v", *src, err)
	}
	log.Default().Printf("done downloading textures %s -> %s", *src, *out)

	if !*build {
		return
	}

	logging.GetLoggerManager().SetFileless(true)
	m := atlas.NewManager(atlas.Config{
		SourceDir:    *out,
		OutputDir:    cfg.Atlas.OutputDir,
		MaxWidth:     cfg.Atlas.MaxWidth,
		BuildTimeout: cfg.Atlas.BuildTimeout,
	})
	a, err := m.Rebuild(ctx)
	if err != nil {
		log.Fatalf("❌ Ошибка сборки атласа: %v", err)
	}
	log.Default().Printf("atlas %s: %d textures, %dx%d", m.ArtifactPath(), len(a.Textures), a.Width, a.Height)
}
