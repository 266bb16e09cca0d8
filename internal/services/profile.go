package services

import (
	"sort"

	"github.com/google/uuid"

	"github.com/temcen/seasonrec/pkg/models"
)

const likedRating = 4

// BuildUserProfile derives liked products and categories from a user's
// interaction records. A product is liked when the user's latest review of
// it rated at least 4, when it was purchased, or when it has two or more
// interaction records. Categories are ranked by interaction count, ties by
// first appearance.
func BuildUserProfile(
	userID uuid.UUID,
	records []models.InteractionRecord,
	latestRatings map[uuid.UUID]int,
	products map[uuid.UUID]*models.Product,
) *models.UserProfile {
	profile := &models.UserProfile{UserID: userID}

	counts := make(map[uuid.UUID]int)
	purchased := make(map[uuid.UUID]bool)
	var order []uuid.UUID
	for _, r := range records {
		if r.UserID != userID {
			continue
		}
		if _, seen := counts[r.ProductID]; !seen {
			order = append(order, r.ProductID)
		}
		counts[r.ProductID]++
		if r.Type == models.InteractionPurchase {
			purchased[r.ProductID] = true
		}
	}

	categoryCounts := make(map[uuid.UUID]int)
	var categories []uuid.UUID
	for _, productID := range order {
		rating, reviewed := latestRatings[productID]
		if (reviewed && rating >= likedRating) || purchased[productID] || counts[productID] >= 2 {
			profile.LikedProducts = append(profile.LikedProducts, productID)
		}

		p, ok := products[productID]
		if !ok || p.CategoryID == uuid.Nil {
			continue
		}
		if _, seen := categoryCounts[p.CategoryID]; !seen {
			categories = append(categories, p.CategoryID)
		}
		categoryCounts[p.CategoryID] += counts[productID]
	}

	sort.SliceStable(categories, func(i, j int) bool {
		return categoryCounts[categories[i]] > categoryCounts[categories[j]]
	})
	profile.LikedCategories = categories
	return profile
}

// interactedProducts lists the distinct products in records, in first-seen
// order.
func interactedProducts(records []models.InteractionRecord) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(records))
	var ids []uuid.UUID
	for _, r := range records {
		if _, ok := seen[r.ProductID]; ok {
			continue
		}
		seen[r.ProductID] = struct{}{}
		ids = append(ids, r.ProductID)
	}
	return ids
}
