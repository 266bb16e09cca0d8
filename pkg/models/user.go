package models

import (
	"time"

	"github.com/google/uuid"
)

type InteractionType string

const (
	InteractionView     InteractionType = "view"
	InteractionCart     InteractionType = "cart"
	InteractionPurchase InteractionType = "purchase"
	InteractionReview   InteractionType = "review"
)

var interactionWeights = map[InteractionType]float64{
	InteractionReview:   5,
	InteractionPurchase: 3,
	InteractionCart:     2,
	InteractionView:     1,
}

// Weight returns the multiplier applied to a raw interaction strength.
// Unknown types weigh zero.
func (t InteractionType) Weight() float64 {
	return interactionWeights[t]
}

func (t InteractionType) Valid() bool {
	_, ok := interactionWeights[t]
	return ok
}

type InteractionRecord struct {
	UserID    uuid.UUID       `json:"user_id" db:"user_id"`
	ProductID uuid.UUID       `json:"product_id" db:"product_id"`
	Type      InteractionType `json:"interaction_type" db:"interaction_type"`
	Strength  float64         `json:"value" db:"value"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// InteractionEventRequest is a tracked storefront event. Reviews and
// purchases come from the catalog tables, so only view and cart are
// accepted here.
type InteractionEventRequest struct {
	UserID    uuid.UUID `json:"user_id" validate:"required"`
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Type      string    `json:"type" validate:"required,oneof=view cart"`
	Strength  *float64  `json:"strength,omitempty" validate:"omitempty,gt=0,max=100"`
}

type User struct {
	ID      uuid.UUID `json:"id" db:"id"`
	Country string    `json:"country,omitempty" db:"country"`
	Region  string    `json:"region,omitempty" db:"state"`
}

type Location struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
}

func (u *User) Location() *Location {
	if u == nil || u.Country == "" {
		return nil
	}
	return &Location{Country: u.Country, Region: u.Region}
}

// UserProfile is derived from a user's interactions and drives the content
// model's query vector.
type UserProfile struct {
	UserID          uuid.UUID   `json:"user_id"`
	LikedCategories []uuid.UUID `json:"liked_categories"`
	LikedProducts   []uuid.UUID `json:"liked_products"`
}

func (p *UserProfile) Empty() bool {
	return p == nil || (len(p.LikedCategories) == 0 && len(p.LikedProducts) == 0)
}
