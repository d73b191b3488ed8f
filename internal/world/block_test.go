package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockTypeTextureFor(t *testing.T) {
	grass := BlockType{Name: "grass", Top: "grass_top", Bottom: "dirt", Side: "grass_side"}
	assert.Equal(t, "grass_top", grass.TextureFor(FaceTop))
	assert.Equal(t, "dirt", grass.TextureFor(FaceBottom))
	assert.Equal(t, "grass_side", grass.TextureFor(FaceSide))

	log := BlockType{Name: "log", Top: "log_top"}
	assert.Equal(t, "log", log.TextureFor(FaceSide))

	ore := BlockType{Name: "iron_ore", Texture: "ore_iron"}
	assert.Equal(t, "ore_iron", ore.TextureFor(FaceTop))
}

func TestRegistryDefaults(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, "stone", r.TextureFor("stone", FaceTop))
	assert.Equal(t, "grass_top", r.TextureFor("grass", FaceTop))
	assert.Equal(t, "unknown", r.TextureFor("unknown", FaceSide), "незарегистрированный тип использует своё имя")

	assert.True(t, r.IsTransparent(Air))
	assert.True(t, r.IsTransparent("water"))
	assert.False(t, r.IsTransparent("stone"))
	assert.False(t, r.IsTransparent("unknown"))

	assert.Error(t, r.Register(BlockType{}))
	assert.Contains(t, r.Names(), "glass")
}

func TestRegistryLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
blocks:
  - name: stone
    texture: cobble
  - name: ice
    transparent: true
`), 0o644))

	r := DefaultRegistry()
	require.NoError(t, r.LoadYAML(path))

	assert.Equal(t, "cobble", r.TextureFor("stone", FaceSide))
	assert.True(t, r.IsTransparent("ice"))

	assert.Error(t, r.LoadYAML(filepath.Join(t.TempDir(), "missing.yaml")))
}
