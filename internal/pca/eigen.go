package pca

import "math"

const (
	jacobiMaxSweeps = 100
	jacobiTolerance = 1e-12
)

// symmetricEigen decomposes a symmetric matrix with the cyclic Jacobi method.
// It returns the eigenvalues and a matrix whose columns are the matching
// unit eigenvectors. The input is not modified.
func symmetricEigen(a [][]float64) ([]float64, [][]float64) {
	n := len(a)
	m := make([][]float64, n)
	v := make([][]float64, n)
	for i := range a {
		m[i] = append([]float64(nil), a[i]...)
		v[i] = make([]float64, n)
		v[i][i] = 1
	}

	for sweep := 0; sweep < jacobiMaxSweeps; sweep++ {
		if offDiagonalNorm(m) < jacobiTolerance {
			break
		}
		for p := 0; p < n-1; p++ {
			for q := p + 1; q < n; q++ {
				if math.Abs(m[p][q]) < jacobiTolerance*jacobiTolerance {
					continue
				}
				rotate(m, v, p, q)
			}
		}
	}

	values := make([]float64, n)
	for i := range m {
		values[i] = m[i][i]
	}
	return values, v
}

// rotate applies the Jacobi rotation that zeroes m[p][q]
func rotate(m, v [][]float64, p, q int) {
	theta := (m[q][q] - m[p][p]) / (2 * m[p][q])
	sign := 1.0
	if theta < 0 {
		sign = -1.0
	}
	t := sign / (math.Abs(theta) + math.Sqrt(theta*theta+1))
	c := 1 / math.Sqrt(t*t+1)
	s := t * c

	n := len(m)
	for k := 0; k < n; k++ {
		mkp, mkq := m[k][p], m[k][q]
		m[k][p] = c*mkp - s*mkq
		m[k][q] = s*mkp + c*mkq
	}
	for k := 0; k < n; k++ {
		mpk, mqk := m[p][k], m[q][k]
		m[p][k] = c*mpk - s*mqk
		m[q][k] = s*mpk + c*mqk
	}
	for k := 0; k < n; k++ {
		vkp, vkq := v[k][p], v[k][q]
		v[k][p] = c*vkp - s*vkq
		v[k][q] = s*vkp + c*vkq
	}
}

func offDiagonalNorm(m [][]float64) float64 {
	var sum float64
	for i := range m {
		for j := range m[i] {
			if i != j {
				sum += m[i][j] * m[i][j]
			}
		}
	}
	return math.Sqrt(sum)
}
