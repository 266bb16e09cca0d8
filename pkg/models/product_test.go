package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeason_Contains(t *testing.T) {
	winter := Season{Name: "winter", StartMonth: 11, EndMonth: 2, Hemisphere: HemisphereNorth}
	both := Season{Name: "winter", StartMonth: 11, EndMonth: 2, Hemisphere: HemisphereBoth}

	for month := 1; month <= 12; month++ {
		expected := month == 11 || month == 12 || month == 1 || month == 2
		assert.Equal(t, expected, winter.Contains(month, HemisphereNorth), "month %d", month)
		assert.Equal(t, expected, both.Contains(month, HemisphereNorth), "month %d", month)
		assert.Equal(t, expected, both.Contains(month, HemisphereSouth), "month %d", month)
		assert.False(t, winter.Contains(month, HemisphereSouth), "month %d", month)
	}

	summer := Season{StartMonth: 6, EndMonth: 8, Hemisphere: HemisphereNorth}
	assert.True(t, summer.Contains(6, HemisphereNorth))
	assert.True(t, summer.Contains(8, HemisphereNorth))
	assert.False(t, summer.Contains(9, HemisphereNorth))
}

func TestProduct_InSeason(t *testing.T) {
	tests := []struct {
		name       string
		product    Product
		month      int
		hemisphere Hemisphere
		expected   bool
	}{
		{
			name:       "no seasons is always in season",
			product:    Product{IsSeasonal: true},
			month:      7,
			hemisphere: HemisphereSouth,
			expected:   true,
		},
		{
			name: "not seasonal ignores tags",
			product: Product{
				IsSeasonal: false,
				Seasons:    []Season{{StartMonth: 1, EndMonth: 1, Hemisphere: HemisphereNorth}},
			},
			month:      6,
			hemisphere: HemisphereNorth,
			expected:   true,
		},
		{
			name: "any matching season",
			product: Product{
				IsSeasonal: true,
				Seasons: []Season{
					{StartMonth: 6, EndMonth: 8, Hemisphere: HemisphereNorth},
					{StartMonth: 12, EndMonth: 2, Hemisphere: HemisphereSouth},
				},
			},
			month:      1,
			hemisphere: HemisphereSouth,
			expected:   true,
		},
		{
			name: "out of season",
			product: Product{
				IsSeasonal: true,
				Seasons:    []Season{{StartMonth: 6, EndMonth: 8, Hemisphere: HemisphereNorth}},
			},
			month:      1,
			hemisphere: HemisphereNorth,
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.product.InSeason(tt.month, tt.hemisphere))
		})
	}

	t.Run("no seasons for every month and hemisphere", func(t *testing.T) {
		p := Product{IsSeasonal: true}
		for month := 1; month <= 12; month++ {
			for _, h := range []Hemisphere{HemisphereNorth, HemisphereSouth, HemisphereBoth} {
				assert.True(t, p.InSeason(month, h))
			}
		}
	})
}

func TestProduct_AvailableIn(t *testing.T) {
	restricted := Product{
		IsLocationSpecific: true,
		AvailableCountries: "US, CA",
		AvailableRegions:   "CA-ON,US-NY",
	}

	assert.True(t, restricted.AvailableIn("US", ""))
	assert.True(t, restricted.AvailableIn("CA", "CA-ON"))
	assert.False(t, restricted.AvailableIn("FR", ""))
	assert.False(t, restricted.AvailableIn("US", "US-TX"))
	assert.True(t, restricted.AvailableIn("", ""))

	open := Product{}
	assert.True(t, open.AvailableIn("FR", "anything"))
}

func TestListContains(t *testing.T) {
	assert.True(t, ListContains("US,CA", "CA"))
	assert.True(t, ListContains(" US , CA ", "US"))
	assert.False(t, ListContains("USA,CA", "US"))
	assert.False(t, ListContains("US,CA", ""))
	assert.False(t, ListContains("", "US"))
}

func TestInteractionType_Weight(t *testing.T) {
	assert.Equal(t, 5.0, InteractionReview.Weight())
	assert.Equal(t, 3.0, InteractionPurchase.Weight())
	assert.Equal(t, 2.0, InteractionCart.Weight())
	assert.Equal(t, 1.0, InteractionView.Weight())
	assert.Equal(t, 0.0, InteractionType("wishlist").Weight())
	assert.False(t, InteractionType("wishlist").Valid())
}
