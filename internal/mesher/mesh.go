package mesher

// MergedMesh плоские буферы меша чанка.
// Vertices и Normals по 3 компоненты на вершину, UVs по 2, Indices ссылаются на номер вершины.
type MergedMesh struct {
	Vertices []float32 `json:"vertices"`
	UVs      []float32 `json:"uvs"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
}

// FaceCount количество граней в меше
func (m *MergedMesh) FaceCount() int {
	return len(m.Indices) / len(FaceIndices)
}

// VertexCount количество вершин в меше
func (m *MergedMesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// MergeFaces склеивает грани в порядке выдачи; индексы каждой грани сдвигаются на 4.
// Пустой список даёт пустые (не nil) буферы, чтобы JSON содержал [].
func MergeFaces(faces []Face) *MergedMesh {
	n := len(faces)
	m := &MergedMesh{
		Vertices: make([]float32, 0, n*12),
		UVs:      make([]float32, 0, n*8),
		Normals:  make([]float32, 0, n*12),
		Indices:  make([]uint32, 0, n*6),
	}

	var offset uint32
	for _, f := range faces {
		for i := 0; i < 4; i++ {
			v := f.Vertices[i]
			m.Vertices = append(m.Vertices, v[0], v[1], v[2])
			uv := f.UVs[i]
			m.UVs = append(m.UVs, uv[0], uv[1])
			m.Normals = append(m.Normals, f.Normal[0], f.Normal[1], f.Normal[2])
		}
		for _, idx := range FaceIndices {
			m.Indices = append(m.Indices, idx+offset)
		}
		offset += 4
	}
	return m
}
