package matrix

import "gonum.org/v1/gonum/mat"

// ColSumsSq returns a slice containing the column sums of squared
// entries of m. It panics if m is nil.
func ColSumsSq(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	sum := make([]float64, cols)

	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			v := m.At(i, j)
			sum[j] += v * v
		}
	}

	return sum
}

// Symmetrize turns a numerically near-symmetric square matrix into a
// SymDense by averaging opposite off-diagonal entries.
// It panics if m is not square.
func Symmetrize(m mat.Matrix) *mat.SymDense {
	r, c := m.Dims()
	if r != c {
		panic("matrix: symmetrize of a non-square matrix")
	}

	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return s
}

// AddOuter adds the outer product a*b' to m in place.
// It panics if the dimensions of m do not match len(a) x len(b).
func AddOuter(m *mat.Dense, a, b mat.Vector) {
	r, c := m.Dims()
	if r != a.Len() || c != b.Len() {
		panic("matrix: invalid outer product dimensions")
	}

	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, m.At(i, j)+a.AtVec(i)*b.AtVec(j))
		}
	}
}
