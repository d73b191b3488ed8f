package mesher

import (
	"encoding/json"
	"testing"

	"github.com/annel0/voxel-mesher/internal/atlas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeFacesInvariant(t *testing.T) {
	rect := atlas.TextureRecord{Name: "stone", Width: 16, Height: 16}

	for _, n := range []int{0, 1, 6, 25} {
		faces := make([]Face, 0, n)
		for i := 0; i < n; i++ {
			faces = append(faces, NewFace(i%16, i/16, 0, AllDirections[i%6], rect))
		}

		m := MergeFaces(faces)
		assert.Len(t, m.Vertices, 12*n)
		assert.Len(t, m.UVs, 8*n)
		assert.Len(t, m.Normals, 12*n)
		assert.Len(t, m.Indices, 6*n)
		assert.Equal(t, n, m.FaceCount())
		assert.Equal(t, 4*n, m.VertexCount())
		for _, idx := range m.Indices {
			assert.Less(t, idx, uint32(4*n))
		}
	}
}

func TestMergeFacesOffsetsIndices(t *testing.T) {
	rect := atlas.TextureRecord{Name: "stone", Width: 16, Height: 16}
	m := MergeFaces([]Face{
		NewFace(0, 0, 0, Top, rect),
		NewFace(0, 0, 0, Bottom, rect),
		NewFace(0, 0, 0, Front, rect),
	})

	assert.Equal(t, []uint32{0, 1, 2, 2, 3, 0, 4, 5, 6, 6, 7, 4, 8, 9, 10, 10, 11, 8}, m.Indices)
	// вершины второй грани идут сразу за первой
	assert.Equal(t, []float32{0, 0, 0}, m.Vertices[12:15])
	assert.Equal(t, []float32{0, -1, 0}, m.Normals[12:15])
}

func TestMergedMeshJSONUsesEmptyArrays(t *testing.T) {
	data, err := json.Marshal(MergeFaces(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"vertices":[],"uvs":[],"normals":[],"indices":[]}`, string(data))
}
