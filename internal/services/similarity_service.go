package services

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/seasonrec/internal/interactions"
	"github.com/temcen/seasonrec/pkg/models"
)

const graphBatchSize = 500

// SimilarityGraph mirrors the similarity table into a graph store.
type SimilarityGraph interface {
	ReplaceSimilarities(ctx context.Context, pairs []models.ProductSimilarity) error
}

// SimilarityService recomputes the product_similarities table from the
// weighted interaction columns.
type SimilarityService struct {
	interactions InteractionRepository
	store        SimilarityRepository
	graph        SimilarityGraph
	floor        float64
	logger       *logrus.Logger
}

func NewSimilarityService(interactions InteractionRepository, store SimilarityRepository, graph SimilarityGraph, floor float64, logger *logrus.Logger) *SimilarityService {
	return &SimilarityService{
		interactions: interactions,
		store:        store,
		graph:        graph,
		floor:        floor,
		logger:       logger,
	}
}

// Rebuild replaces the table and returns the number of stored rows. A
// graph mirror failure is logged and does not fail the rebuild.
func (s *SimilarityService) Rebuild(ctx context.Context) (int, error) {
	records, err := s.interactions.AllInteractions(ctx)
	if err != nil {
		return 0, err
	}

	pairs := ProductSimilarities(interactions.Aggregate(records), s.floor)
	if err := s.store.ReplaceAll(ctx, pairs); err != nil {
		return 0, err
	}

	if s.graph != nil {
		if err := s.graph.ReplaceSimilarities(ctx, pairs); err != nil {
			s.logger.WithError(err).Warn("Failed to mirror similarities to graph")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"records": len(records),
		"pairs":   len(pairs),
	}).Info("Product similarities rebuilt")

	return len(pairs), nil
}

// ProductSimilarities returns the cosine similarity of every pair of
// product columns in m scoring at least floor, in both directions.
func ProductSimilarities(m *interactions.Matrix, floor float64) []models.ProductSimilarity {
	dense := m.Dense()
	if dense == nil {
		return nil
	}

	products := m.Products()
	var columns mat.Dense
	columns.CloneFrom(dense.T())
	for i := range products {
		row := columns.RawRowView(i)
		if n := floats.Norm(row, 2); n > 0 {
			floats.Scale(1/n, row)
		}
	}

	var pairs []models.ProductSimilarity
	for i := range products {
		for j := i + 1; j < len(products); j++ {
			score := floats.Dot(columns.RawRowView(i), columns.RawRowView(j))
			if score < floor {
				continue
			}
			pairs = append(pairs,
				models.ProductSimilarity{Product1ID: products[i], Product2ID: products[j], Score: score},
				models.ProductSimilarity{Product1ID: products[j], Product2ID: products[i], Score: score},
			)
		}
	}
	return pairs
}

// Neo4jSimilarityGraph writes (:Product)-[:SIMILAR_TO {score}]->(:Product)
// edges.
type Neo4jSimilarityGraph struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

func NewNeo4jSimilarityGraph(driver neo4j.DriverWithContext, logger *logrus.Logger) *Neo4jSimilarityGraph {
	return &Neo4jSimilarityGraph{driver: driver, logger: logger}
}

func (g *Neo4jSimilarityGraph) ReplaceSimilarities(ctx context.Context, pairs []models.ProductSimilarity) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	computedAt := time.Now().UTC().Format(time.RFC3339)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, `MATCH (:Product)-[s:SIMILAR_TO]->(:Product) DELETE s`, nil)
		if err != nil {
			return nil, err
		}
		if _, err := result.Consume(ctx); err != nil {
			return nil, err
		}

		for start := 0; start < len(pairs); start += graphBatchSize {
			batch := pairs[start:min(start+graphBatchSize, len(pairs))]
			result, err := tx.Run(ctx, `
				UNWIND $pairs AS pair
				MERGE (a:Product {id: pair.product1_id})
				MERGE (b:Product {id: pair.product2_id})
				MERGE (a)-[s:SIMILAR_TO]->(b)
				SET s.score = pair.score, s.computed_at = $computed_at`,
				map[string]any{
					"pairs":       graphPairs(batch),
					"computed_at": computedAt,
				})
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to write similarity graph: %w", err)
	}

	g.logger.WithField("edges", len(pairs)).Debug("Similarity graph updated")
	return nil
}

func graphPairs(pairs []models.ProductSimilarity) []map[string]any {
	out := make([]map[string]any, len(pairs))
	for i, p := range pairs {
		out[i] = map[string]any{
			"product1_id": p.Product1ID.String(),
			"product2_id": p.Product2ID.String(),
			"score":       p.Score,
		}
	}
	return out
}
