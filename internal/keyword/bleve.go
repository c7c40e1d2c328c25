package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/kikoe/internal/models"
)

// BleveIndex implements LexicalIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// chunkDoc is the shape Bleve indexes per chunk. Speakers are indexed so a
// query can mention a speaker label directly.
type chunkDoc struct {
	MediaID  string   `json:"media_id"`
	Text     string   `json:"text"`
	Speakers []string `json:"speakers"`
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// reused so re-ingestion stays incremental; remove the directory to force a
// rebuild after a mapping change.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) keeps transcript
	// jargon and proper nouns matchable as spoken.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("speakers", textFieldMapping)
	mediaFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("media_id", mediaFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexChunks adds or replaces the chunks in one batch.
func (b *BleveIndex) IndexChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, ch := range chunks {
		doc := chunkDoc{MediaID: ch.MediaID, Text: ch.Text, Speakers: ch.Speakers}
		if err := batch.Index(ch.ID, doc); err != nil {
			return fmt.Errorf("batch index chunk %s: %w", ch.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// DeleteMedia removes every chunk of the media item. Chunk IDs are found by a
// term query on the media_id field.
func (b *BleveIndex) DeleteMedia(ctx context.Context, mediaID string) error {
	q := bleve.NewTermQuery(mediaID)
	q.SetField("media_id")
	req := bleve.NewSearchRequest(q)
	req.Size = 10000
	results, err := b.index.Search(req)
	if err != nil {
		return fmt.Errorf("Bleve lookup for delete failed: %w", err)
	}
	if len(results.Hits) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, hit := range results.Hits {
		batch.Delete(hit.ID)
	}
	return b.index.Batch(batch)
}

// Search runs a match query over chunk text and returns the top hits.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	hits := make([]Hit, len(results.Hits))
	for i, hit := range results.Hits {
		hits[i] = Hit{ChunkID: hit.ID, Score: hit.Score}
	}
	return hits, nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
