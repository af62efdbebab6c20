package tensor

import (
	"fmt"
	"math/rand"
)

// Mat is a dense row-major float32 matrix.
//
// Data holds R*C values; row i occupies Data[i*C : (i+1)*C].
type Mat struct {
	R, C int
	Data []float32
}

// NewMat allocates a zeroed r x c matrix.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{R: r, C: c, Data: make([]float32, r*c)}
}

// NewMatFromData wraps data as an r x c matrix without copying.
func NewMatFromData(r, c int, data []float32) (Mat, error) {
	if r < 0 || c < 0 {
		return Mat{}, fmt.Errorf("negative dimension %dx%d", r, c)
	}
	if r*c != len(data) {
		return Mat{}, fmt.Errorf("data length %d does not match %dx%d", len(data), r, c)
	}
	return Mat{R: r, C: c, Data: data}, nil
}

// Row returns a view of row i. Writes go through to the matrix.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	return m.Data[i*m.C : (i+1)*m.C]
}

// FillRand fills the matrix with reproducible values in (-scale/2, scale/2).
func FillRand(m *Mat, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * scale
	}
}
