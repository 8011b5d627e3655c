package service

import (
	"context"
	"fmt"

	"github.com/mkaplan/postloom/internal/domain"
	"github.com/mkaplan/postloom/internal/logger"
	"github.com/mkaplan/postloom/internal/prompts"
	"github.com/mkaplan/postloom/internal/repository"
)

// minExampleRating is the review rating floor for few-shot material.
const minExampleRating = 4

// ExampleService retrieves the project's best historical posts as few-shot
// material for new generations. The SQL path (rating then engagement) is
// always available; when the vector index and embedding client are enabled
// the SQL shortlist is re-ranked by semantic similarity to the slot topic.
type ExampleService struct {
	assets    *repository.AssetRepository
	index     *repository.QdrantRepository
	embedding *EmbeddingService
	enabled   bool
}

// NewExampleService creates a new example retrieval service. index and
// embedding may be nil; retrieval then stays on the SQL ordering.
// Parameters:
//   - assets: asset repository for the rating-ordered baseline.
//   - index: optional vector index over rated assets.
//   - embedding: optional embedding client for topic vectors.
// Returns:
//   - *ExampleService: initialized service.
func NewExampleService(assets *repository.AssetRepository, index *repository.QdrantRepository, embedding *EmbeddingService) *ExampleService {
	return &ExampleService{
		assets:    assets,
		index:     index,
		embedding: embedding,
		enabled:   index != nil && embedding != nil,
	}
}

// TopExamples returns up to limit reference posts for a project, best
// first. Semantic re-ranking failures fall back to the SQL order silently;
// few-shot material is an enrichment, never a hard dependency.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project.
//   - topic: slot topic used for semantic re-ranking.
//   - limit: maximum examples returned.
// Returns:
//   - []prompts.Example: reference posts, possibly empty.
//   - error: non-nil only when the SQL baseline fails.
func (s *ExampleService) TopExamples(ctx context.Context, projectID, topic string, limit int) ([]prompts.Example, error) {
	if limit <= 0 {
		return nil, nil
	}

	// Fetch a wider shortlist than needed so re-ranking has room to reorder.
	shortlist := limit
	if s.enabled {
		shortlist = limit * 3
	}
	assets, err := s.assets.TopRatedByProject(ctx, projectID, shortlist)
	if err != nil {
		return nil, fmt.Errorf("load example assets: %w", err)
	}
	if len(assets) == 0 {
		return nil, nil
	}

	if s.enabled && topic != "" {
		if reranked, ok := s.rerank(ctx, projectID, topic, assets, limit); ok {
			assets = reranked
		}
	}
	if len(assets) > limit {
		assets = assets[:limit]
	}

	examples := make([]prompts.Example, len(assets))
	for i, a := range assets {
		examples[i] = prompts.Example{
			Title:           a.Title,
			Body:            a.Body,
			Rating:          a.Rating,
			EngagementScore: a.EngagementScore,
		}
	}
	return examples, nil
}

// rerank orders the shortlist by vector similarity to the topic. Returns
// ok=false on any failure so the caller keeps the SQL ordering.
func (s *ExampleService) rerank(ctx context.Context, projectID, topic string, shortlist []domain.ContentAsset, limit int) ([]domain.ContentAsset, bool) {
	vector, err := s.embedding.EmbedQuery(ctx, topic)
	if err != nil {
		logger.CtxWarn(ctx, "example re-rank: embed topic failed: %v", err)
		return nil, false
	}

	minRating := minExampleRating
	hits, err := s.index.Search(ctx, vector, limit, &repository.SearchFilters{
		ProjectID: &projectID,
		MinRating: &minRating,
	})
	if err != nil {
		logger.CtxWarn(ctx, "example re-rank: vector search failed: %v", err)
		return nil, false
	}
	if len(hits) == 0 {
		return nil, false
	}

	byID := make(map[string]domain.ContentAsset, len(shortlist))
	for _, a := range shortlist {
		byID[a.ID] = a
	}

	reranked := make([]domain.ContentAsset, 0, limit)
	for _, hit := range hits {
		if hit.Payload == nil {
			continue
		}
		if a, ok := byID[hit.Payload.AssetID]; ok {
			reranked = append(reranked, a)
		}
	}
	if len(reranked) == 0 {
		return nil, false
	}
	return reranked, true
}

// IndexAsset upserts a rated asset into the vector index so it becomes
// retrievable as few-shot material. No-op when the index is disabled.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - asset: rated asset to index.
// Returns:
//   - error: non-nil if embedding or upsert fails.
func (s *ExampleService) IndexAsset(ctx context.Context, asset *domain.ContentAsset) error {
	if !s.enabled {
		return nil
	}
	if asset.Rating < minExampleRating {
		return nil
	}

	vector, err := s.embedding.Embed(ctx, asset.Title+"\n\n"+asset.Body)
	if err != nil {
		return fmt.Errorf("embed asset %s: %w", asset.ID, err)
	}

	return s.index.Upsert(ctx, asset.ID, vector, &repository.ExamplePayload{
		AssetID:         asset.ID,
		ProjectID:       asset.ProjectID,
		Title:           asset.Title,
		Topic:           asset.Topic,
		Rating:          asset.Rating,
		EngagementScore: asset.EngagementScore,
	})
}
