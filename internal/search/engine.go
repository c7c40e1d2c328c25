// Package search answers natural-language queries over indexed transcripts.
package search

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/embedding"
	"github.com/hyperjump/kikoe/internal/keyword"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/store"
)

// Engine runs semantic search with optional lexical re-ranking. The vector
// similarity does the heavy lifting; the lexical signal only adjusts the
// ordering of the top candidates.
type Engine struct {
	store    store.Store
	embedder embedding.Embedder
	lexical  keyword.LexicalIndex
	config   *config.SearchConfig
}

// NewEngine creates a search engine. lexical may be nil, which disables
// re-ranking regardless of configuration.
func NewEngine(st store.Store, embedder embedding.Embedder, lexical keyword.LexicalIndex, cfg *config.SearchConfig) *Engine {
	return &Engine{
		store:    st,
		embedder: embedder,
		lexical:  lexical,
		config:   cfg,
	}
}

// Search validates the query, embeds it, and returns the best-matching chunks
// of fully indexed media.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(); err != nil {
		return nil, err
	}

	meta, err := e.store.GetIndexMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("read index meta: %w", err)
	}
	if meta == nil {
		// Nothing was ever indexed.
		return e.emptyResponse(query, startTime), nil
	}
	if meta.Model != e.embedder.ModelName() || meta.Dimensions != e.embedder.Dimensions() {
		return nil, fmt.Errorf("index built with model=%s dims=%d, query embedder is model=%s dims=%d: %w",
			meta.Model, meta.Dimensions, e.embedder.ModelName(), e.embedder.Dimensions(), store.ErrModelMismatch)
	}

	rerank := e.rerankEnabled(query)

	var (
		neighbors   []store.Neighbor
		lexicalHits []keyword.Hit
		errChan     = make(chan error, 2)
		wg          sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		queryEmbedding, err := e.embedder.Embed(ctx, query.Query)
		if err != nil {
			errChan <- fmt.Errorf("embed query: %w", err)
			return
		}
		results, err := e.store.NearestNeighbors(ctx, queryEmbedding, e.config.TopKCandidates, query.Filters)
		if err != nil {
			errChan <- fmt.Errorf("vector search: %w", err)
			return
		}
		neighbors = results
	}()

	if rerank {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := e.lexical.Search(ctx, query.Query, e.config.TopKCandidates)
			if err != nil {
				errChan <- fmt.Errorf("lexical search: %w", err)
				return
			}
			lexicalHits = hits
		}()
	}

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	minScore := query.MinScore
	if minScore <= 0 {
		minScore = e.config.SimilarityFloor
	}

	lexicalScores := NormalizeHits(lexicalHits)
	results := make([]*models.SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		if n.Similarity < minScore {
			continue
		}
		lex := lexicalScores[n.Chunk.ID]
		results = append(results, &models.SearchResult{
			Chunk:        n.Chunk,
			Media:        n.Media,
			Score:        BlendScore(n.Similarity, lex, rerank, e.config.RerankWeight),
			Similarity:   n.Similarity,
			LexicalScore: lex,
		})
	}

	// Neighbors arrive ordered by similarity with deterministic tie-breaks;
	// re-ranking may reorder them, so sort again with the same tie-break.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Media.EventDate.Equal(results[j].Media.EventDate) {
			return results[i].Media.EventDate.After(results[j].Media.EventDate)
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	total := len(results)
	if len(results) > query.Limit {
		results = results[:query.Limit]
	}
	for i, r := range results {
		r.Rank = i + 1
	}

	return &models.SearchResponse{
		Results:   results,
		Total:     total,
		QueryTime: time.Since(startTime).Milliseconds(),
		Query:     query.Query,
	}, nil
}

func (e *Engine) rerankEnabled(query *models.SearchQuery) bool {
	if e.lexical == nil {
		return false
	}
	if query.Rerank != nil {
		return *query.Rerank
	}
	return e.config.RerankEnabledOrDefault()
}

func (e *Engine) emptyResponse(query *models.SearchQuery, startTime time.Time) *models.SearchResponse {
	return &models.SearchResponse{
		Results:   []*models.SearchResult{},
		Total:     0,
		QueryTime: time.Since(startTime).Milliseconds(),
		Query:     query.Query,
	}
}
