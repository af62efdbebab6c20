package tensor

import "testing"

func TestMatVecParallelMatchesSerial(t *testing.T) {
	t.Parallel()

	m := NewMat(1000, 7)
	FillRand(&m, 3, 1)
	x := make([]float32, 7)
	for i := range x {
		x[i] = float32(i) - 3
	}

	got := make([]float32, m.R)
	MatVec(got, &m, x)
	for i := 0; i < m.R; i++ {
		if want := Dot(m.Row(i), x); !approx(got[i], want) {
			t.Fatalf("row %d: got %f, want %f", i, got[i], want)
		}
	}
}

func TestMatVecPoolSingleWorker(t *testing.T) {
	t.Parallel()

	m := NewMat(300, 2)
	FillRand(&m, 5, 1)
	x := []float32{1, 2}
	got := make([]float32, m.R)
	newMatVecPool(1).run(got, &m, x)
	for i := 0; i < m.R; i++ {
		if want := Dot(m.Row(i), x); !approx(got[i], want) {
			t.Fatalf("row %d: got %f, want %f", i, got[i], want)
		}
	}
}

func TestMatVecShapeMismatchPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	m := NewMat(2, 3)
	MatVec(make([]float32, 1), &m, make([]float32, 3))
}
