package ml

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/pkg/models"
)

func testID(prefix byte, n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("%08x-0000-0000-0000-%012d", prefix, n))
}

func userID(n int) uuid.UUID    { return testID(0xa, n) }
func productID(n int) uuid.UUID { return testID(0xb, n) }

func interaction(user, product int, t models.InteractionType, strength float64) models.InteractionRecord {
	return models.InteractionRecord{
		UserID:    userID(user),
		ProductID: productID(product),
		Type:      t,
		Strength:  strength,
	}
}

// sampleInteractions describes two taste groups: users 1-3 buy winter gear
// (products 1-3), users 4-6 buy garden gear (products 4-6).
func sampleInteractions() []models.InteractionRecord {
	var records []models.InteractionRecord
	for u := 1; u <= 3; u++ {
		for p := 1; p <= 3; p++ {
			if u == 1 && p == 3 {
				continue
			}
			records = append(records, interaction(u, p, models.InteractionPurchase, 1))
		}
	}
	for u := 4; u <= 6; u++ {
		for p := 4; p <= 6; p++ {
			if u == 4 && p == 6 {
				continue
			}
			records = append(records, interaction(u, p, models.InteractionReview, float64(u%2+4)))
		}
	}
	return records
}

func sampleProducts() []models.Product {
	return []models.Product{
		{ID: productID(1), Name: "Wool winter jacket", Description: "Warm insulated jacket for snow and cold winter days", Category: "Outerwear"},
		{ID: productID(2), Name: "Thermal winter gloves", Description: "Insulated gloves keep hands warm in snow", Category: "Accessories"},
		{ID: productID(3), Name: "Snow boots", Description: "Waterproof insulated boots for snow and ice", Category: "Footwear"},
		{ID: productID(4), Name: "Garden hose", Description: "Flexible hose for watering the garden lawn", Category: "Garden"},
		{ID: productID(5), Name: "Lawn sprinkler", Description: "Oscillating sprinkler for watering lawn and garden beds", Category: "Garden"},
		{ID: productID(6), Name: "Pruning shears", Description: "Sharp shears for garden pruning of shrubs", Category: "Garden"},
		{ID: productID(7), Name: "Beach towel", Description: "Large cotton towel for beach and pool", Category: "Summer"},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func ids(items []models.ScoredProduct) []uuid.UUID {
	out := make([]uuid.UUID, len(items))
	for i, item := range items {
		out[i] = item.ProductID
	}
	return out
}
