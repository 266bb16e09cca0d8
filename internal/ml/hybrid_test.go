package ml

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/seasonrec/internal/interactions"
	"github.com/temcen/seasonrec/pkg/models"
)

type MockProductLookup struct {
	mock.Mock
}

func (m *MockProductLookup) ProductsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*models.Product), args.Error(1)
}

func trainedSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	behavioral, err := FitBehavioral(interactions.Aggregate(sampleInteractions()), 3, 42)
	require.NoError(t, err)
	content, err := FitContent(sampleProducts(), 50, 42)
	require.NoError(t, err)
	return &Snapshot{
		Behavioral: behavioral,
		Content:    content,
		Params:     models.DefaultHybridParameters(),
		Version:    "test",
	}
}

func TestCandidateSet(t *testing.T) {
	c := newCandidateSet()
	c.add([]models.ScoredProduct{
		{ProductID: productID(1), Score: 1.0},
		{ProductID: productID(2), Score: 0.5},
	}, 0.7)
	c.add([]models.ScoredProduct{
		{ProductID: productID(3), Score: 0.35 / 0.3},
		{ProductID: productID(2), Score: 1.0},
	}, 0.3)

	ranked := c.ranked(3)
	require.Len(t, ranked, 3)
	assert.Equal(t, productID(1), ranked[0].ProductID)
	assert.InDelta(t, 0.7, ranked[0].Score, 1e-12)
	assert.Equal(t, productID(2), ranked[1].ProductID)
	assert.InDelta(t, 0.65, ranked[1].Score, 1e-12)

	assert.Len(t, c.ranked(1), 1)
}

func TestCandidateSetTiesKeepFirstSeen(t *testing.T) {
	c := newCandidateSet()
	c.add([]models.ScoredProduct{{ProductID: productID(5), Score: 1}}, 0.5)
	c.add([]models.ScoredProduct{{ProductID: productID(2), Score: 1}}, 0.5)

	assert.Equal(t, []uuid.UUID{productID(5), productID(2)}, ids(c.ranked(2)))
}

func TestBoost(t *testing.T) {
	params := models.DefaultHybridParameters()
	winter := []models.Season{{Name: "winter", StartMonth: 11, EndMonth: 2, Hemisphere: models.HemisphereNorth}}

	tests := []struct {
		name     string
		product  models.Product
		query    UserQuery
		seasonal bool
		want     float64
	}{
		{
			name:     "in season",
			product:  models.Product{IsSeasonal: true, Seasons: winter},
			query:    UserQuery{Month: 12, Hemisphere: models.HemisphereNorth},
			seasonal: true,
			want:     1.2,
		},
		{
			name:     "out of season",
			product:  models.Product{IsSeasonal: true, Seasons: winter},
			query:    UserQuery{Month: 7, Hemisphere: models.HemisphereNorth},
			seasonal: true,
			want:     1.0,
		},
		{
			name:     "non seasonal product passes",
			product:  models.Product{},
			query:    UserQuery{Month: 7, Hemisphere: models.HemisphereSouth},
			seasonal: true,
			want:     1.2,
		},
		{
			name:    "country and region",
			product: models.Product{IsLocationSpecific: true, AvailableCountries: "US, CA", AvailableRegions: "WA"},
			query:   UserQuery{Location: &models.Location{Country: "US", Region: "WA"}},
			want:    1.1 * 1.05,
		},
		{
			name:    "other country",
			product: models.Product{IsLocationSpecific: true, AvailableCountries: "US,CA"},
			query:   UserQuery{Location: &models.Location{Country: "FR"}},
			want:    1.0,
		},
		{
			name:    "not location specific",
			product: models.Product{AvailableCountries: "US"},
			query:   UserQuery{Location: &models.Location{Country: "US"}},
			want:    1.0,
		},
		{
			name:     "multipliers compose",
			product:  models.Product{IsSeasonal: true, Seasons: winter, IsLocationSpecific: true, AvailableCountries: "US"},
			query:    UserQuery{Month: 1, Hemisphere: models.HemisphereNorth, Location: &models.Location{Country: "US"}},
			seasonal: true,
			want:     1.2 * 1.1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, boost(params, &tt.product, tt.seasonal, tt.query), 1e-12)
		})
	}
}

func TestApplyBoost(t *testing.T) {
	tests := []struct {
		name   string
		score  float64
		factor float64
		want   float64
	}{
		{"positive score grows", 0.5, 1.2, 0.6},
		{"negative score moves towards zero", -0.6, 1.2, -0.5},
		{"zero stays zero", 0, 1.32, 0},
		{"no boost", -0.4, 1.0, -0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyBoost(tt.score, tt.factor)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.GreaterOrEqual(t, got, tt.score)
		})
	}
}

func TestSimilarItems(t *testing.T) {
	snap := trainedSnapshot(t)

	similar := SimilarItems(snap, productID(4), 2)
	require.Len(t, similar, 2)
	assert.Equal(t, productID(5), similar[0].ProductID)
	assert.NotContains(t, ids(SimilarItems(snap, productID(4), 10)), productID(4))

	assert.Empty(t, SimilarItems(nil, productID(4), 2))
	assert.Empty(t, SimilarItems(snap, productID(99), 2))
}

func TestRecommendForUser(t *testing.T) {
	ctx := context.Background()

	t.Run("location boost favours allowed country", func(t *testing.T) {
		snap := trainedSnapshot(t)
		products := make(map[uuid.UUID]*models.Product)
		for _, p := range sampleProducts() {
			p := p
			p.IsLocationSpecific = true
			p.AvailableCountries = "US,CA"
			products[p.ID] = &p
		}
		lookup := new(MockProductLookup)
		lookup.On("ProductsByID", ctx, mock.Anything).Return(products, nil)

		query := UserQuery{
			UserID:  userID(1),
			Profile: &models.UserProfile{LikedProducts: []uuid.UUID{productID(1), productID(2)}},
			N:       3,
			Exclude: []uuid.UUID{productID(1), productID(2)},
		}

		query.Location = &models.Location{Country: "US"}
		us, err := RecommendForUser(ctx, snap, query, lookup)
		require.NoError(t, err)

		query.Location = &models.Location{Country: "FR"}
		fr, err := RecommendForUser(ctx, snap, query, lookup)
		require.NoError(t, err)

		require.NotEmpty(t, us)
		require.Equal(t, ids(us), ids(fr))
		assert.Equal(t, productID(3), us[0].ProductID)
		assert.Greater(t, us[0].Score, fr[0].Score)
		assert.InDelta(t, fr[0].Score*1.1, us[0].Score, 1e-9)
		lookup.AssertExpectations(t)
	})

	t.Run("excluded products never returned", func(t *testing.T) {
		snap := trainedSnapshot(t)
		query := UserQuery{
			UserID:  userID(1),
			Profile: &models.UserProfile{LikedProducts: []uuid.UUID{productID(1)}},
			N:       10,
			Exclude: []uuid.UUID{productID(1), productID(2), productID(7)},
		}
		recs, err := RecommendForUser(ctx, snap, query, nil)
		require.NoError(t, err)
		assert.NotContains(t, ids(recs), productID(1))
		assert.NotContains(t, ids(recs), productID(2))
		assert.NotContains(t, ids(recs), productID(7))
	})

	t.Run("cold start", func(t *testing.T) {
		snap := trainedSnapshot(t)
		recs, err := RecommendForUser(ctx, snap, UserQuery{UserID: userID(99), N: 5}, nil)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("lookup failure", func(t *testing.T) {
		snap := trainedSnapshot(t)
		lookup := new(MockProductLookup)
		lookup.On("ProductsByID", ctx, mock.Anything).Return(nil, errors.New("connection refused"))

		_, err := RecommendForUser(ctx, snap, UserQuery{
			UserID:     userID(1),
			N:          3,
			Month:      1,
			Hemisphere: models.HemisphereNorth,
		}, lookup)
		assert.Error(t, err)
	})

	t.Run("repeatable", func(t *testing.T) {
		snap := trainedSnapshot(t)
		query := UserQuery{UserID: userID(4), Profile: &models.UserProfile{LikedProducts: []uuid.UUID{productID(4)}}, N: 4}
		first, err := RecommendForUser(ctx, snap, query, nil)
		require.NoError(t, err)
		second, err := RecommendForUser(ctx, snap, query, nil)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}
