package ml

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/temcen/seasonrec/pkg/models"
)

// ProductLookup resolves candidate ids to catalog rows for seasonal and
// location adjustments.
type ProductLookup interface {
	ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
}

type UserQuery struct {
	UserID     uuid.UUID
	Profile    *models.UserProfile
	N          int
	Exclude    []uuid.UUID
	Month      int
	Hemisphere models.Hemisphere
	Location   *models.Location
}

// SimilarItems blends both models' neighbours of productID.
func SimilarItems(snap *Snapshot, productID uuid.UUID, n int) []models.ScoredProduct {
	if snap == nil || n <= 0 {
		return nil
	}

	merged := newCandidateSet()
	merged.add(snap.Behavioral.SimilarItems(productID, n), snap.Params.BehavioralWeight)
	merged.add(snap.Content.SimilarItems(productID, n), snap.Params.ContentWeight)
	return merged.ranked(n)
}

// RecommendForUser blends behavioral and content candidates for a user,
// then boosts products that are in season for the caller or available at
// the caller's location.
func RecommendForUser(ctx context.Context, snap *Snapshot, q UserQuery, lookup ProductLookup) ([]models.ScoredProduct, error) {
	if snap == nil || q.N <= 0 {
		return nil, nil
	}

	merged := newCandidateSet()
	merged.add(snap.Behavioral.RecommendForUser(q.UserID, q.N*2, q.Exclude), snap.Params.BehavioralWeight)
	merged.add(snap.Content.RecommendForProfile(q.Profile, q.N*2, q.Exclude), snap.Params.ContentWeight)
	if len(merged.order) == 0 {
		return nil, nil
	}

	seasonal := q.Month > 0 && q.Hemisphere != ""
	if lookup != nil && (seasonal || q.Location != nil) {
		products, err := lookup.ProductsByID(ctx, merged.order)
		if err != nil {
			return nil, fmt.Errorf("failed to load candidate products: %w", err)
		}
		for _, id := range merged.order {
			product, ok := products[id]
			if !ok || product == nil {
				continue
			}
			merged.scores[id] = applyBoost(merged.scores[id], boost(snap.Params, product, seasonal, q))
		}
	}

	return merged.ranked(q.N), nil
}

// applyBoost raises score by factor. Reconstructed and cosine scores can be
// negative, so those are divided rather than multiplied: a boosted product
// never ranks below its unboosted self.
func applyBoost(score, factor float64) float64 {
	if score < 0 {
		return score / factor
	}
	return score * factor
}

func boost(params models.HybridParameters, product *models.Product, seasonal bool, q UserQuery) float64 {
	factor := 1.0
	if seasonal && product.InSeason(q.Month, q.Hemisphere) {
		factor *= 1 + params.SeasonalBoost
	}
	if product.IsLocationSpecific && q.Location != nil {
		if q.Location.Country != "" && models.ListContains(product.AvailableCountries, q.Location.Country) {
			factor *= 1 + params.LocationBoost
		}
		if q.Location.Region != "" && models.ListContains(product.AvailableRegions, q.Location.Region) {
			factor *= 1 + params.LocationBoost/2
		}
	}
	return factor
}

// candidateSet sums weighted scores per product, remembering first-seen
// order so equal totals rank deterministically.
type candidateSet struct {
	order  []uuid.UUID
	scores map[uuid.UUID]float64
}

func newCandidateSet() *candidateSet {
	return &candidateSet{scores: make(map[uuid.UUID]float64)}
}

func (c *candidateSet) add(items []models.ScoredProduct, weight float64) {
	for _, item := range items {
		if _, seen := c.scores[item.ProductID]; !seen {
			c.order = append(c.order, item.ProductID)
		}
		c.scores[item.ProductID] += item.Score * weight
	}
}

func (c *candidateSet) ranked(n int) []models.ScoredProduct {
	out := make([]models.ScoredProduct, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, models.ScoredProduct{ProductID: id, Score: c.scores[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
