package ml

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/seasonrec/pkg/models"
)

// ContentModel compares products by the text of their name, description
// and category, reduced to a small number of latent topics.
type ContentModel struct {
	productIDs []uuid.UUID
	vectorizer *tfidfVectorizer
	features   *mat.Dense // products x components

	itemIndex  map[uuid.UUID]int
	similarity *mat.SymDense
}

// FitContent builds TF-IDF vectors for the catalog and reduces them to at
// most components dimensions.
func FitContent(products []models.Product, components int, seed uint64) (*ContentModel, error) {
	if len(products) == 0 {
		return nil, ErrDataInsufficient
	}
	if components <= 0 {
		return nil, fmt.Errorf("invalid content components %d", components)
	}

	ids := make([]uuid.UUID, len(products))
	docs := make([][]string, len(products))
	for i := range products {
		ids[i] = products[i].ID
		docs[i] = tokenize(products[i].Document())
	}

	vectorizer := fitTFIDF(docs)
	if len(vectorizer.Vocabulary) == 0 {
		return nil, fmt.Errorf("product descriptions have no usable terms: %w", ErrDataInsufficient)
	}

	x := vectorizer.transform(docs)
	vk, err := truncatedSVD(x, components, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to reduce product text vectors: %w", err)
	}

	m := &ContentModel{
		productIDs: ids,
		vectorizer: vectorizer,
		features:   x.mul(mat.DenseCopyOf(vk.T())),
	}
	m.build()
	return m, nil
}

func (m *ContentModel) build() {
	m.itemIndex = indexIDs(m.productIDs)
	m.similarity = cosineSimilarities(m.features)
}

func (m *ContentModel) Products() []uuid.UUID { return m.productIDs }

func (m *ContentModel) Components() int {
	_, c := m.features.Dims()
	return c
}

func (m *ContentModel) Knows(productID uuid.UUID) bool {
	_, ok := m.itemIndex[productID]
	return ok
}

func (m *ContentModel) SimilarItems(productID uuid.UUID, n int) []models.ScoredProduct {
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

// RecommendForProfile ranks the catalog against the mean vector of the
// profile's liked products. A profile with no known liked product yields
// nothing.
func (m *ContentModel) RecommendForProfile(profile *models.UserProfile, n int, exclude []uuid.UUID) []models.ScoredProduct {
	if profile == nil {
		return nil
	}

	_, dims := m.features.Dims()
	query := make([]float64, dims)
	var liked int
	for _, id := range profile.LikedProducts {
		idx, ok := m.itemIndex[id]
		if !ok {
			continue
		}
		floats.Add(query, m.features.RawRowView(idx))
		liked++
	}
	if liked == 0 {
		return nil
	}
	floats.Scale(1/float64(liked), query)

	scores := make([]float64, len(m.productIDs))
	for j := range scores {
		scores[j] = cosine(query, m.features.RawRowView(j))
	}

	excluded := make(map[int]struct{}, len(exclude))
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

func (m *ContentModel) scored(ranked []rankedIndex) []models.ScoredProduct {
	out := make([]models.ScoredProduct, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, models.ScoredProduct{ProductID: m.productIDs[r.index], Score: r.score})
	}
	return out
}
