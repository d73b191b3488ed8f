package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutPath(t *testing.T) {
	t.Setenv("MESHER_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.Atlas.MaxWidth)
	assert.Equal(t, "demo", cfg.World.Source)
	assert.True(t, cfg.Mesher.CullFacesEnabled())
	assert.Equal(t, 30*time.Second, cfg.Atlas.BuildTimeout)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesher.yaml")
	data := []byte(`
server:
  rest_port: 8099
atlas:
  source_dir: assets/blocks
  output_dir: assets/out
  max_width: 512
  build_timeout: 5s
mesher:
  cull_faces: false
world:
  source: generator
  seed: 42
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8099, cfg.Server.GetRESTPort())
	assert.Equal(t, 512, cfg.Atlas.MaxWidth)
	assert.Equal(t, 5*time.Second, cfg.Atlas.BuildTimeout)
	assert.False(t, cfg.Mesher.CullFacesEnabled())
	assert.Equal(t, "generator", cfg.World.Source)
	assert.Equal(t, int64(42), cfg.World.Seed)
}

func TestLoadRejectsUnknownSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("world:\n  source: anvil\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRESTPortEnvFallback(t *testing.T) {
	t.Setenv("MESHER_REST_PORT", "9123")
	s := ServerConfig{}
	assert.Equal(t, 9123, s.GetRESTPort())

	t.Setenv("MESHER_REST_PORT", "abc")
	assert.Equal(t, 3000, s.GetRESTPort())
}

func TestAdminTokenEnvFallback(t *testing.T) {
	t.Setenv("MESHER_ADMIN_TOKEN", "from-env")

	s := ServerConfig{}
	assert.Equal(t, "from-env", s.GetAdminToken())

	s.AdminToken = "from-file"
	assert.Equal(t, "from-file", s.GetAdminToken())
}
