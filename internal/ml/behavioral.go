package ml

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/seasonrec/internal/interactions"
	"github.com/temcen/seasonrec/pkg/models"
)

// BehavioralModel is a truncated SVD of the weighted user x product
// interaction table. Products are compared through their loadings on the
// latent components.
type BehavioralModel struct {
	rank       int
	userIDs    []uuid.UUID
	productIDs []uuid.UUID
	userIndex  map[uuid.UUID]int
	itemIndex  map[uuid.UUID]int

	interactions *sparseMatrix
	components   *mat.Dense    // rank x products
	similarity   *mat.SymDense // products x products
}

// FitBehavioral factorizes the interaction matrix. The effective rank is
// capped at the smaller matrix dimension.
func FitBehavioral(matrix *interactions.Matrix, rank int, seed uint64) (*BehavioralModel, error) {
	if matrix == nil || matrix.Empty() {
		return nil, ErrDataInsufficient
	}
	if rank <= 0 {
		return nil, fmt.Errorf("invalid behavioral rank %d", rank)
	}

	users := matrix.Users()
	products := matrix.Products()
	itemIndex := indexIDs(products)
	userIndex := indexIDs(users)

	rows := make([][]sparseEntry, len(users))
	for key, weight := range matrix.Weights() {
		u := userIndex[key.UserID]
		rows[u] = append(rows[u], sparseEntry{col: itemIndex[key.ProductID], value: weight})
	}
	sparse := newSparseMatrix(len(users), len(products), rows)

	components, err := truncatedSVD(sparse, rank, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to factorize interaction matrix: %w", err)
	}

	m := &BehavioralModel{
		userIDs:      users,
		productIDs:   products,
		interactions: sparse,
		components:   components,
	}
	m.rank, _ = components.Dims()
	m.build()
	return m, nil
}

// build derives the lookup indexes and the item similarity matrix from the
// persisted fields.
func (m *BehavioralModel) build() {
	m.userIndex = indexIDs(m.userIDs)
	m.itemIndex = indexIDs(m.productIDs)
	m.similarity = cosineSimilarities(mat.DenseCopyOf(m.components.T()))
}

func (m *BehavioralModel) Rank() int { return m.rank }

func (m *BehavioralModel) Users() []uuid.UUID { return m.userIDs }

func (m *BehavioralModel) Products() []uuid.UUID { return m.productIDs }

func (m *BehavioralModel) Similarity() mat.Symmetric { return m.similarity }

func (m *BehavioralModel) Knows(productID uuid.UUID) bool {
	_, ok := m.itemIndex[productID]
	return ok
}

// SimilarItems returns the n products closest to productID. Unknown products
// yield nothing.
func (m *BehavioralModel) SimilarItems(productID uuid.UUID, n int) []models.ScoredProduct {
	idx, ok := m.itemIndex[productID]
	if !ok {
		return nil
	}

	scores := make([]float64, len(m.productIDs))
	for j := range scores {
		scores[j] = m.similarity.At(idx, j)
	}

	return m.scored(topN(scores, n, func(j int) bool { return j == idx }))
}

// RecommendForUser scores every product by projecting the user's
// interaction row onto the latent space and back. Products the user already
// interacted with and products in exclude are dropped.
func (m *BehavioralModel) RecommendForUser(userID uuid.UUID, n int, exclude []uuid.UUID) []models.ScoredProduct {
	u, ok := m.userIndex[userID]
	if !ok {
		return nil
	}

	row := make([]float64, len(m.productIDs))
	cols, values := m.interactions.row(u)
	for k, c := range cols {
		row[c] = values[k]
	}

	latent := make([]float64, m.rank)
	for c := 0; c < m.rank; c++ {
		latent[c] = floats.Dot(row, m.components.RawRowView(c))
	}
	scores := make([]float64, len(m.productIDs))
	for c := 0; c < m.rank; c++ {
		floats.AddScaled(scores, latent[c], m.components.RawRowView(c))
	}

	excluded := make(map[int]struct{}, len(cols)+len(exclude))
	for _, c := range cols {
		excluded[c] = struct{}{}
	}
	for _, id := range exclude {
		if j, ok := m.itemIndex[id]; ok {
			excluded[j] = struct{}{}
		}
	}

	return m.scored(topN(scores, n, func(j int) bool {
		_, skip := excluded[j]
		return skip
	}))
}

func (m *BehavioralModel) scored(ranked []rankedIndex) []models.ScoredProduct {
	out := make([]models.ScoredProduct, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, models.ScoredProduct{ProductID: m.productIDs[r.index], Score: r.score})
	}
	return out
}

func indexIDs(ids []uuid.UUID) map[uuid.UUID]int {
	index := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	return index
}
