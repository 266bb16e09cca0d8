package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/seasonrec/internal/geo"
	"github.com/temcen/seasonrec/internal/ml"
	"github.com/temcen/seasonrec/pkg/models"
)

const fallbackDecay = 0.05

type OrchestratorConfig struct {
	FallbackMax   int
	RetrainOnMiss bool
}

// RecommendationOrchestrator serves recommendations from the current model
// snapshot, training one on demand, and falls back to catalog rules when
// the model has nothing to say.
type RecommendationOrchestrator struct {
	registry        ModelRegistry
	trainer         Trainer
	catalog         CatalogReader
	interactions    InteractionRepository
	users           UserRepository
	recommendations RecommendationRepository
	similarities    SimilarityRepository
	cache           SimilarCache
	resolver        geo.Resolver
	metrics         *MetricsCollector
	config          OrchestratorConfig
	logger          *logrus.Logger

	now func() time.Time
}

type OrchestratorDeps struct {
	Registry        ModelRegistry
	Trainer         Trainer
	Catalog         CatalogReader
	Interactions    InteractionRepository
	Users           UserRepository
	Recommendations RecommendationRepository
	Similarities    SimilarityRepository
	Cache           SimilarCache
	Resolver        geo.Resolver
	Metrics         *MetricsCollector
}

func NewRecommendationOrchestrator(deps OrchestratorDeps, config OrchestratorConfig, logger *logrus.Logger) *RecommendationOrchestrator {
	if config.FallbackMax <= 0 {
		config.FallbackMax = 20
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = geo.NewTableResolver(nil, nil)
	}
	return &RecommendationOrchestrator{
		registry:        deps.Registry,
		trainer:         deps.Trainer,
		catalog:         deps.Catalog,
		interactions:    deps.Interactions,
		users:           deps.Users,
		recommendations: deps.Recommendations,
		similarities:    deps.Similarities,
		cache:           deps.Cache,
		resolver:        resolver,
		metrics:         deps.Metrics,
		config:          config,
		logger:          logger,
		now:             time.Now,
	}
}

// caller is the seasonal and location context of a request.
type caller struct {
	month      int
	hemisphere models.Hemisphere
	location   *models.Location
}

func (c caller) country() string {
	if c.location == nil {
		return ""
	}
	return c.location.Country
}

func (c caller) region() string {
	if c.location == nil {
		return ""
	}
	return c.location.Region
}

func (c caller) eligible(p *models.Product) bool {
	return p.InSeason(c.month, c.hemisphere) && p.AvailableIn(c.country(), c.region())
}

func (o *RecommendationOrchestrator) callerFor(user *models.User) caller {
	c := caller{month: int(o.now().Month())}
	if user != nil {
		c.hemisphere = o.resolver.Hemisphere(user.Country)
		c.location = user.Location()
	} else {
		c.hemisphere = o.resolver.Hemisphere("")
	}
	return c
}

// snapshot loads the current model. When none is available and retraining
// on a miss is enabled, it trains once and tries again.
func (o *RecommendationOrchestrator) snapshot(ctx context.Context) (*ml.Snapshot, bool) {
	snap, ok := o.registry.Load(ctx)
	o.metrics.RecordSnapshotLoad(ok)
	if ok || !o.config.RetrainOnMiss || o.trainer == nil {
		return snap, ok
	}

	if _, err := o.trainer.Retrain(ctx); err != nil {
		o.logger.WithError(err).Warn("On-demand training failed")
	}

	snap, ok = o.registry.Load(ctx)
	o.metrics.RecordSnapshotLoad(ok)
	return snap, ok
}

// GetRecommendationsForUser returns up to limit products for userID and
// stores them as the user's materialized list. Unknown users get an empty
// list.
func (o *RecommendationOrchestrator) GetRecommendationsForUser(ctx context.Context, userID uuid.UUID, limit int) (*models.RecommendationResponse, error) {
	start := o.now()
	response := &models.RecommendationResponse{
		UserID:          userID,
		Recommendations: []models.ScoredProduct{},
		GeneratedAt:     start,
	}

	user, err := o.users.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		response.Source = models.SourceFallback
		o.metrics.RecordRecommendation("user", PathEmpty, time.Since(start))
		return response, nil
	}
	if err != nil {
		return nil, err
	}
	c := o.callerFor(user)

	records, err := o.interactions.UserInteractions(ctx, userID)
	if err != nil {
		return nil, err
	}
	interacted := interactedProducts(records)

	recs, err := o.modelRecommendations(ctx, user, records, interacted, limit, c)
	if err != nil {
		return nil, err
	}

	response.Source = models.SourceModel
	path := PathModel
	if len(recs) == 0 {
		recs, err = o.fallbackRecommendations(ctx, interacted, limit, c)
		if err != nil {
			return nil, err
		}
		response.Source = models.SourceFallback
		path = PathFallback
	}

	if err := o.recommendations.ReplaceForUser(ctx, userID, recs); err != nil {
		o.logger.WithError(err).WithField("user_id", userID).Warn("Failed to store recommendations")
	}

	response.Recommendations = recs
	o.metrics.RecordRecommendation("user", path, time.Since(start))

	o.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"source":  response.Source,
		"count":   len(recs),
	}).Debug("Recommendations generated")

	return response, nil
}

func (o *RecommendationOrchestrator) modelRecommendations(
	ctx context.Context,
	user *models.User,
	records []models.InteractionRecord,
	interacted []uuid.UUID,
	limit int,
	c caller,
) ([]models.ScoredProduct, error) {
	snap, ok := o.snapshot(ctx)
	if !ok {
		return nil, nil
	}

	ratings, err := o.interactions.LatestReviewRatings(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	known, err := o.catalog.ProductsByID(ctx, interacted)
	if err != nil {
		return nil, err
	}
	profile := BuildUserProfile(user.ID, records, ratings, known)

	candidates, err := ml.RecommendForUser(ctx, snap, ml.UserQuery{
		UserID:     user.ID,
		Profile:    profile,
		N:          limit * 2,
		Exclude:    interacted,
		Month:      c.month,
		Hemisphere: c.hemisphere,
		Location:   c.location,
	}, o.catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to score candidates: %w", err)
	}

	return o.attachProducts(ctx, candidates, limit, func(p *models.Product) bool {
		return p.AvailableIn(c.country(), c.region())
	})
}

// attachProducts resolves candidates to catalog rows in rank order,
// dropping ids missing from the catalog and products keep rejects.
func (o *RecommendationOrchestrator) attachProducts(
	ctx context.Context,
	candidates []models.ScoredProduct,
	limit int,
	keep func(*models.Product) bool,
) ([]models.ScoredProduct, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ProductID
	}
	products, err := o.catalog.ProductsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.ScoredProduct, 0, min(limit, len(candidates)))
	for _, candidate := range candidates {
		product, ok := products[candidate.ProductID]
		if !ok || product == nil || (keep != nil && !keep(product)) {
			continue
		}
		candidate.Product = product
		out = append(out, candidate)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// fallbackRecommendations ranks reviewed products by rating, keeping those
// the user has not interacted with that are in season and sold at the
// user's location. Scores decay by 0.05 per rank.
func (o *RecommendationOrchestrator) fallbackRecommendations(ctx context.Context, interacted []uuid.UUID, limit int, c caller) ([]models.ScoredProduct, error) {
	reviewed, err := o.catalog.ReviewedProducts(ctx)
	if err != nil {
		return nil, err
	}

	exclude := make(map[uuid.UUID]struct{}, len(interacted))
	for _, id := range interacted {
		exclude[id] = struct{}{}
	}

	n := min(limit, o.config.FallbackMax)
	out := make([]models.ScoredProduct, 0, n)
	for i := range reviewed {
		if len(out) == n {
			break
		}
		p := &reviewed[i]
		if _, skip := exclude[p.ID]; skip || !c.eligible(p) {
			continue
		}
		out = append(out, models.ScoredProduct{
			ProductID: p.ID,
			Score:     1.0 - fallbackDecay*float64(len(out)),
			Product:   p,
		})
	}
	return out, nil
}

// GetSimilarProducts returns products similar to productID. When the model
// has no neighbours the stored similarity table is used; with a user the
// table results are filtered by season and location.
func (o *RecommendationOrchestrator) GetSimilarProducts(ctx context.Context, productID uuid.UUID, limit int, userID *uuid.UUID) (*models.SimilarProductsResponse, error) {
	start := o.now()
	response := &models.SimilarProductsResponse{
		ProductID:   productID,
		Similar:     []models.ScoredProduct{},
		GeneratedAt: start,
	}

	c := o.callerFor(nil)
	if userID != nil {
		user, err := o.users.GetUser(ctx, *userID)
		switch {
		case errors.Is(err, ErrUserNotFound):
			userID = nil
		case err != nil:
			return nil, err
		default:
			c = o.callerFor(user)
		}
	}

	if snap, ok := o.snapshot(ctx); ok {
		similar, err := o.modelSimilar(ctx, snap, productID, limit, userID == nil)
		if err != nil {
			return nil, err
		}
		if len(similar) > 0 {
			response.Similar = similar
			response.Source = models.SourceModel
			o.metrics.RecordRecommendation("similar", PathModel, time.Since(start))
			return response, nil
		}
	}

	pairs, err := o.similarities.SimilarTo(ctx, productID, limit*2)
	if err != nil {
		return nil, err
	}
	candidates := make([]models.ScoredProduct, len(pairs))
	for i, pair := range pairs {
		candidates[i] = models.ScoredProduct{ProductID: pair.Product2ID, Score: pair.Score}
	}

	var keep func(*models.Product) bool
	if userID != nil {
		keep = c.eligible
	}
	similar, err := o.attachProducts(ctx, candidates, limit, keep)
	if err != nil {
		return nil, err
	}
	if similar != nil {
		response.Similar = similar
	}
	response.Source = models.SourceSimilarity
	path := PathFallback
	if len(similar) == 0 {
		path = PathEmpty
	}
	o.metrics.RecordRecommendation("similar", path, time.Since(start))
	return response, nil
}

func (o *RecommendationOrchestrator) modelSimilar(ctx context.Context, snap *ml.Snapshot, productID uuid.UUID, limit int, cacheable bool) ([]models.ScoredProduct, error) {
	if cacheable && o.cache != nil {
		if cached, ok := o.cache.Get(ctx, snap.Version, productID, limit); ok {
			o.metrics.RecordSimilarCache(true)
			return cached, nil
		}
		o.metrics.RecordSimilarCache(false)
	}

	similar, err := o.attachProducts(ctx, ml.SimilarItems(snap, productID, limit), limit, nil)
	if err != nil {
		return nil, err
	}

	if cacheable && o.cache != nil && len(similar) > 0 {
		o.cache.Set(ctx, snap.Version, productID, limit, similar)
	}
	return similar, nil
}

// GetSeasonalRecommendations lists season-tagged products that are in
// season and sold where the caller is, best rated first.
func (o *RecommendationOrchestrator) GetSeasonalRecommendations(ctx context.Context, userID *uuid.UUID, limit int) (*models.ProductListResponse, error) {
	c, err := o.optionalCaller(ctx, userID)
	if err != nil {
		return nil, err
	}

	seasonal, err := o.catalog.SeasonalProducts(ctx)
	if err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, limit)
	for i := range seasonal {
		if len(products) == limit {
			break
		}
		p := &seasonal[i]
		if p.HasSeasonTags() && c.eligible(p) {
			products = append(products, *p)
		}
	}

	return &models.ProductListResponse{
		Products:    products,
		Source:      models.SourceSeasonal,
		GeneratedAt: o.now(),
	}, nil
}

// GetFeaturedProducts lists featured products sold where the caller is,
// in-season ones first.
func (o *RecommendationOrchestrator) GetFeaturedProducts(ctx context.Context, userID *uuid.UUID, limit int) (*models.ProductListResponse, error) {
	c, err := o.optionalCaller(ctx, userID)
	if err != nil {
		return nil, err
	}

	featured, err := o.catalog.FeaturedProducts(ctx)
	if err != nil {
		return nil, err
	}

	var inSeason, outOfSeason []models.Product
	for _, p := range featured {
		if !p.AvailableIn(c.country(), "") {
			continue
		}
		if p.InSeason(c.month, c.hemisphere) {
			inSeason = append(inSeason, p)
		} else {
			outOfSeason = append(outOfSeason, p)
		}
	}

	products := append(inSeason, outOfSeason...)
	if len(products) > limit {
		products = products[:limit]
	}
	if products == nil {
		products = []models.Product{}
	}

	return &models.ProductListResponse{
		Products:    products,
		Source:      models.SourceFeatured,
		GeneratedAt: o.now(),
	}, nil
}

func (o *RecommendationOrchestrator) optionalCaller(ctx context.Context, userID *uuid.UUID) (caller, error) {
	if userID == nil {
		return o.callerFor(nil), nil
	}
	user, err := o.users.GetUser(ctx, *userID)
	if errors.Is(err, ErrUserNotFound) {
		return o.callerFor(nil), nil
	}
	if err != nil {
		return caller{}, err
	}
	return o.callerFor(user), nil
}

// ModelStatus reports the lifecycle state together with the table counts.
// Count failures are logged and reported as zero.
func (o *RecommendationOrchestrator) ModelStatus(ctx context.Context) models.ModelStatus {
	status := o.registry.Status(ctx)

	counts := []struct {
		name  string
		count func(context.Context) (int64, error)
		dst   *int64
	}{
		{"interactions", o.interactions.Count, &status.Counts.Interactions},
		{"similarities", o.similarities.Count, &status.Counts.Similarities},
		{"recommendations", o.recommendations.Count, &status.Counts.Recommendations},
	}
	for _, c := range counts {
		n, err := c.count(ctx)
		if err != nil {
			o.logger.WithError(err).WithField("table", c.name).Warn("Failed to count rows")
			continue
		}
		*c.dst = n
	}
	return status
}

func (o *RecommendationOrchestrator) Retrain(ctx context.Context) (*TrainingResult, error) {
	if o.trainer == nil {
		return nil, errors.New("training is not configured")
	}
	return o.trainer.Retrain(ctx)
}
