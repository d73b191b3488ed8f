package util

import (
	"github.com/aquilax/go-perlin"
)

// Noise обёртка над генератором шума Перлина с фиксированным сидом.
// После создания только читается, поэтому безопасна для конкурентного использования.
type Noise struct {
	perlin *perlin.Perlin
	scale  float64
}

// NewNoise создаёт генератор шума Перлина с указанным сидом и масштабом координат
func NewNoise(seed int64, scale float64) *Noise {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	if scale <= 0 {
		scale = 1
	}
	return &Noise{
		perlin: perlin.NewPerlin(alpha, beta, n, seed),
		scale:  scale,
	}
}

// At2D возвращает значение шума для указанных координат в диапазоне [0, 1]
func (n *Noise) At2D(x, y float64) float64 {
	// Значение шума примерно в диапазоне от -1 до 1
	v := n.perlin.Noise2D(x*n.scale, y*n.scale)

	v = (v + 1.0) / 2.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
