package mesher

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// Формат: "VMSH", версия (1 байт), четыре длины uint32, затем секции
// vertices, uvs, normals (float32) и indices (uint32), всё little-endian; поверх zstd.
const (
	codecMagic   = "VMSH"
	codecVersion = 1
	headerSize   = len(codecMagic) + 1 + 4*4
)

var ErrCorruptMesh = errors.New("mesher: повреждённые данные меша")

// Codec сериализует меши для кеша. Безопасен для конкурентного использования.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec создаёт кодек со сжатием zstd
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{encoder: enc, decoder: dec}, nil
}

// Encode кодирует меш
func (c *Codec) Encode(m *MergedMesh) ([]byte, error) {
	if m == nil {
		return nil, errors.New("mesher: nil меш")
	}

	size := headerSize + 4*(len(m.Vertices)+len(m.UVs)+len(m.Normals)+len(m.Indices))
	buf := make([]byte, 0, size)
	buf = append(buf, codecMagic...)
	buf = append(buf, codecVersion)
	for _, n := range []int{len(m.Vertices), len(m.UVs), len(m.Normals), len(m.Indices)} {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n))
	}
	buf = appendFloats(buf, m.Vertices)
	buf = appendFloats(buf, m.UVs)
	buf = appendFloats(buf, m.Normals)
	for _, idx := range m.Indices {
		buf = binary.LittleEndian.AppendUint32(buf, idx)
	}

	return c.encoder.EncodeAll(buf, nil), nil
}

// Decode восстанавливает меш
func (c *Codec) Decode(data []byte) (*MergedMesh, error) {
	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptMesh, err)
	}
	if len(raw) < headerSize || string(raw[:len(codecMagic)]) != codecMagic {
		return nil, ErrCorruptMesh
	}
	if raw[len(codecMagic)] != codecVersion {
		return nil, fmt.Errorf("%w: версия %d", ErrCorruptMesh, raw[len(codecMagic)])
	}

	var counts [4]int
	off := len(codecMagic) + 1
	total := 0
	for i := range counts {
		counts[i] = int(binary.LittleEndian.Uint32(raw[off:]))
		total += counts[i]
		off += 4
	}
	if len(raw) != headerSize+4*total {
		return nil, fmt.Errorf("%w: длина %d", ErrCorruptMesh, len(raw))
	}

	body := raw[headerSize:]
	m := &MergedMesh{}
	m.Vertices, body = readFloats(body, counts[0])
	m.UVs, body = readFloats(body, counts[1])
	m.Normals, body = readFloats(body, counts[2])
	m.Indices = make([]uint32, counts[3])
	for i := range m.Indices {
		m.Indices[i] = binary.LittleEndian.Uint32(body[4*i:])
	}
	return m, nil
}

func appendFloats(buf []byte, vals []float32) []byte {
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

func readFloats(body []byte, n int) ([]float32, []byte) {
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[4*i:]))
	}
	return out, body[4*n:]
}
