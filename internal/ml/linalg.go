package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	svdOversamples     = 10
	svdPowerIterations = 4
)

// sparseMatrix is a compressed sparse row matrix. It supports the products
// the randomized SVD needs without materializing the dense table. Entries
// are structural: a cell given with a zero value is still stored.
type sparseMatrix struct {
	rows, cols int
	indptr     []int
	indices    []int
	data       []float64
}

type sparseEntry struct {
	col   int
	value float64
}

func newSparseMatrix(rows, cols int, rowEntries [][]sparseEntry) *sparseMatrix {
	s := &sparseMatrix{rows: rows, cols: cols, indptr: make([]int, rows+1)}
	for i := 0; i < rows; i++ {
		var entries []sparseEntry
		if i < len(rowEntries) {
			entries = append(entries, rowEntries[i]...)
		}
		sort.Slice(entries, func(a, b int) bool { return entries[a].col < entries[b].col })
		for _, e := range entries {
			s.indices = append(s.indices, e.col)
			s.data = append(s.data, e.value)
		}
		s.indptr[i+1] = len(s.indices)
	}
	return s
}

func (s *sparseMatrix) Dims() (int, int) { return s.rows, s.cols }

// validate checks the CSR invariants of a decoded matrix: indptr starts at
// zero, never decreases and ends at len(indices), and every column index is
// in range.
func (s *sparseMatrix) validate() error {
	if len(s.indptr) != s.rows+1 || len(s.indices) != len(s.data) {
		return errors.New("sparse matrix arrays have mismatched lengths")
	}
	if s.indptr[0] != 0 || s.indptr[s.rows] != len(s.indices) {
		return fmt.Errorf("sparse row pointers span [%d, %d], want [0, %d]", s.indptr[0], s.indptr[s.rows], len(s.indices))
	}
	for i := 0; i < s.rows; i++ {
		if s.indptr[i] > s.indptr[i+1] {
			return fmt.Errorf("sparse row pointer decreases at row %d", i)
		}
	}
	for k, c := range s.indices {
		if c < 0 || c >= s.cols {
			return fmt.Errorf("sparse column index %d at %d out of range [0, %d)", c, k, s.cols)
		}
	}
	return nil
}

func (s *sparseMatrix) row(i int) ([]int, []float64) {
	return s.indices[s.indptr[i]:s.indptr[i+1]], s.data[s.indptr[i]:s.indptr[i+1]]
}

// mul returns s·b.
func (s *sparseMatrix) mul(b *mat.Dense) *mat.Dense {
	_, l := b.Dims()
	out := mat.NewDense(s.rows, l, nil)
	for i := 0; i < s.rows; i++ {
		cols, values := s.row(i)
		dst := out.RawRowView(i)
		for k, c := range cols {
			floats.AddScaled(dst, values[k], b.RawRowView(c))
		}
	}
	return out
}

// tmul returns sᵀ·b.
func (s *sparseMatrix) tmul(b *mat.Dense) *mat.Dense {
	_, l := b.Dims()
	out := mat.NewDense(s.cols, l, nil)
	for i := 0; i < s.rows; i++ {
		cols, values := s.row(i)
		src := b.RawRowView(i)
		for k, c := range cols {
			floats.AddScaled(out.RawRowView(c), values[k], src)
		}
	}
	return out
}

func (s *sparseMatrix) dense() *mat.Dense {
	out := mat.NewDense(s.rows, s.cols, nil)
	for i := 0; i < s.rows; i++ {
		cols, values := s.row(i)
		for k, c := range cols {
			out.Set(i, c, values[k])
		}
	}
	return out
}

// truncatedSVD returns the top k right singular vectors of s as the rows of
// a k x cols matrix. Small problems are solved exactly; larger ones use a
// randomized range finder seeded with seed, so identical input always gives
// identical output. Each component is sign-normalized so its largest
// absolute entry is positive.
func truncatedSVD(s *sparseMatrix, k int, seed uint64) (*mat.Dense, error) {
	rows, cols := s.Dims()
	k = min(k, rows, cols)
	if k <= 0 {
		return nil, errors.New("cannot factorize an empty matrix")
	}

	var components *mat.Dense
	var err error
	if k+svdOversamples >= min(rows, cols) {
		components, err = exactComponents(s.dense(), k)
	} else {
		components, err = randomizedComponents(s, k, seed)
	}
	if err != nil {
		return nil, err
	}

	flipSigns(components)
	return components, nil
}

func exactComponents(a *mat.Dense, k int) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition did not converge")
	}

	var v mat.Dense
	svd.VTo(&v)

	_, cols := a.Dims()
	components := mat.NewDense(k, cols, nil)
	for c := 0; c < k; c++ {
		for j := 0; j < cols; j++ {
			components.Set(c, j, v.At(j, c))
		}
	}
	return components, nil
}

func randomizedComponents(s *sparseMatrix, k int, seed uint64) (*mat.Dense, error) {
	_, cols := s.Dims()
	l := k + svdOversamples

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	omega := mat.NewDense(cols, l, nil)
	raw := omega.RawMatrix().Data
	for i := range raw {
		raw[i] = rng.NormFloat64()
	}

	q := s.mul(omega)
	orthonormalize(q)
	for i := 0; i < svdPowerIterations; i++ {
		z := s.tmul(q)
		orthonormalize(z)
		q = s.mul(z)
		orthonormalize(q)
	}

	// bt = (Qᵀ·A)ᵀ; its left singular vectors are the right singular
	// vectors of Qᵀ·A.
	bt := s.tmul(q)

	var svd mat.SVD
	if ok := svd.Factorize(bt, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition did not converge")
	}
	var u mat.Dense
	svd.UTo(&u)

	components := mat.NewDense(k, cols, nil)
	for c := 0; c < k; c++ {
		for j := 0; j < cols; j++ {
			components.Set(c, j, u.At(j, c))
		}
	}
	return components, nil
}

// orthonormalize replaces the columns of m with an orthonormal basis of
// their span using modified Gram-Schmidt with one reorthogonalization pass.
// Columns that are numerically dependent on earlier ones become zero.
func orthonormalize(m *mat.Dense) {
	rows, cols := m.Dims()
	col := make([]float64, rows)
	basis := make([][]float64, 0, cols)

	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		original := floats.Norm(col, 2)

		for pass := 0; pass < 2; pass++ {
			for _, q := range basis {
				floats.AddScaled(col, -floats.Dot(q, col), q)
			}
		}

		residual := floats.Norm(col, 2)
		if original == 0 || residual <= 1e-10*original {
			for r := range col {
				col[r] = 0
			}
		} else {
			floats.Scale(1/residual, col)
			basis = append(basis, append([]float64(nil), col...))
		}
		m.SetCol(j, col)
	}
}

func flipSigns(components *mat.Dense) {
	rows, _ := components.Dims()
	for r := 0; r < rows; r++ {
		row := components.RawRowView(r)
		pivot := 0
		for j := range row {
			if math.Abs(row[j]) > math.Abs(row[pivot]) {
				pivot = j
			}
		}
		if len(row) > 0 && row[pivot] < 0 {
			floats.Scale(-1, row)
		}
	}
}

// cosineSimilarities returns the row x row cosine similarity of features.
// Only the upper triangle is computed, so the result is exactly symmetric.
// Zero rows have zero similarity to everything.
func cosineSimilarities(features *mat.Dense) *mat.SymDense {
	rows, _ := features.Dims()
	normalized := normalizeRows(features)

	sim := mat.NewSymDense(rows, nil)
	for i := 0; i < rows; i++ {
		a := normalized.RawRowView(i)
		for j := i; j < rows; j++ {
			sim.SetSym(i, j, floats.Dot(a, normalized.RawRowView(j)))
		}
	}
	return sim
}

func normalizeRows(m *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(m)
	rows, _ := out.Dims()
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		if n := floats.Norm(row, 2); n > 0 {
			floats.Scale(1/n, row)
		}
	}
	return out
}

func cosine(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

type rankedIndex struct {
	index int
	score float64
}

// topN ranks scores in descending order, skipping indices for which skip
// returns true. Equal scores keep index order.
func topN(scores []float64, n int, skip func(int) bool) []rankedIndex {
	if n <= 0 {
		return nil
	}

	ranked := make([]rankedIndex, 0, len(scores))
	for i, score := range scores {
		if skip != nil && skip(i) {
			continue
		}
		ranked = append(ranked, rankedIndex{index: i, score: score})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
