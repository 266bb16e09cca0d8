// Package interactions turns raw interaction records into the weighted
// user x product table the behavioral model is trained on.
package interactions

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/seasonrec/pkg/models"
)

type Key struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
}

// Matrix is a sparse user x product table of aggregated weights. Rows are
// users with at least one interaction, columns are products with at least
// one interaction, both in ascending id order.
type Matrix struct {
	weights  map[Key]float64
	users    []uuid.UUID
	products []uuid.UUID
	skipped  int
}

// Aggregate sums strength x type weight for every (user, product) pair.
// The result does not depend on record order. No records yields an empty
// matrix.
func Aggregate(records []models.InteractionRecord) *Matrix {
	m := &Matrix{weights: make(map[Key]float64)}

	users := make(map[uuid.UUID]struct{})
	products := make(map[uuid.UUID]struct{})

	for _, record := range records {
		if !record.Type.Valid() {
			m.skipped++
			continue
		}
		key := Key{UserID: record.UserID, ProductID: record.ProductID}
		m.weights[key] += record.Strength * record.Type.Weight()
		users[record.UserID] = struct{}{}
		products[record.ProductID] = struct{}{}
	}

	m.users = sortedIDs(users)
	m.products = sortedIDs(products)
	return m
}

func sortedIDs(set map[uuid.UUID]struct{}) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

func (m *Matrix) Get(userID, productID uuid.UUID) float64 {
	return m.weights[Key{UserID: userID, ProductID: productID}]
}

func (m *Matrix) Weights() map[Key]float64 {
	out := make(map[Key]float64, len(m.weights))
	for k, v := range m.weights {
		out[k] = v
	}
	return out
}

func (m *Matrix) Users() []uuid.UUID    { return m.users }
func (m *Matrix) Products() []uuid.UUID { return m.products }

// Len is the number of non-empty (user, product) cells.
func (m *Matrix) Len() int { return len(m.weights) }

func (m *Matrix) Empty() bool { return len(m.weights) == 0 }

// Skipped counts records dropped for an unknown interaction type.
func (m *Matrix) Skipped() int { return m.skipped }

// Dense materializes the table with missing cells as zero. It returns nil
// for an empty matrix.
func (m *Matrix) Dense() *mat.Dense {
	if m.Empty() {
		return nil
	}

	userIndex := indexOf(m.users)
	productIndex := indexOf(m.products)

	dense := mat.NewDense(len(m.users), len(m.products), nil)
	for key, weight := range m.weights {
		dense.Set(userIndex[key.UserID], productIndex[key.ProductID], weight)
	}
	return dense
}

func indexOf(ids []uuid.UUID) map[uuid.UUID]int {
	index := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	return index
}
