package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
	"github.com/arkiv-labs/arkiv/internal/logger"
)

// Retrieval bounds.
const (
	minK = 1
	maxK = 50

	// rrfK dampens high ranks in reciprocal rank fusion.
	rrfK = 60
)

var termPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\d+`)

// scoredHit holds intermediate results before hydration.
type scoredHit struct {
	recordID string
	score    float64
}

// Retriever finds the records most relevant to a question using
// hybrid search: keyword hits and embedding similarity merged with
// reciprocal rank fusion. Indexes without embeddings degrade to
// keyword-only.
type Retriever struct{}

// NewRetriever creates a retriever.
func NewRetriever() *Retriever {
	return &Retriever{}
}

// Retrieve returns up to k records ranked by relevance to question.
// embedder may be nil for keyword-only retrieval. Ordering is
// deterministic: score, then newer timestamp, then source file, then
// row.
func (r *Retriever) Retrieve(
	ctx context.Context, reader driven.IndexReader, embedder driven.Embedder, question string, k int,
) ([]domain.Retrieved, error) {
	logger.Section("Retrieval")
	logger.Debug("Question: %q, k=%d", question, k)

	if k < minK {
		k = minK
	}
	if k > maxK {
		k = maxK
	}

	terms := queryTerms(question)
	if len(terms) == 0 {
		return nil, nil
	}

	// Over-fetch so fusion and dedup still fill k.
	limit := k * 3

	var keywordHits []scoredHit
	var vectorHits []scoredHit
	var keywordErr, vectorErr error

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		keywordHits, keywordErr = r.keywordSearch(ctx, reader, terms, limit)
	}()

	if embedder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorHits, vectorErr = r.vectorSearch(ctx, reader, embedder, question, limit)
		}()
	}
	wg.Wait()

	if keywordErr != nil && embedder == nil {
		return nil, keywordErr
	}
	if keywordErr != nil && vectorErr != nil {
		return nil, fmt.Errorf("retrieval: keyword=%w, vector=%w", keywordErr, vectorErr)
	}
	if keywordErr != nil {
		logger.Warn("Keyword search failed, using vector results only: %v", keywordErr)
		keywordHits = nil
	}
	if vectorErr != nil {
		logger.Warn("Vector search failed, using keyword results only: %v", vectorErr)
		vectorHits = nil
	}

	merged := reciprocalRankFusion(keywordHits, vectorHits)
	logger.Debug("Merged %d keyword + %d vector hits into %d", len(keywordHits), len(vectorHits), len(merged))

	retrieved, err := r.hydrate(ctx, reader, merged)
	if err != nil {
		return nil, err
	}

	sortRetrieved(retrieved)
	if len(retrieved) > k {
		retrieved = retrieved[:k]
	}
	logger.Info("Retrieved %d records", len(retrieved))
	return retrieved, nil
}

func (r *Retriever) keywordSearch(
	ctx context.Context, reader driven.IndexReader, terms []string, limit int,
) ([]scoredHit, error) {
	hits, err := reader.SearchKeyword(ctx, terms, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	out := make([]scoredHit, len(hits))
	for i, h := range hits {
		out[i] = scoredHit{recordID: h.RecordID, score: h.Score}
	}
	return out, nil
}

func (r *Retriever) vectorSearch(
	ctx context.Context, reader driven.IndexReader, embedder driven.Embedder, question string, limit int,
) ([]scoredHit, error) {
	query, err := embedder.Embed(question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	hits, err := reader.SearchVector(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]scoredHit, len(hits))
	for i, h := range hits {
		out[i] = scoredHit{recordID: h.RecordID, score: h.Similarity}
	}
	return out, nil
}

// hydrate resolves hit IDs into records, skipping any that vanished.
func (r *Retriever) hydrate(
	ctx context.Context, reader driven.IndexReader, hits []scoredHit,
) ([]domain.Retrieved, error) {
	retrieved := make([]domain.Retrieved, 0, len(hits))
	for _, hit := range hits {
		rec, err := reader.GetRecord(ctx, hit.recordID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get record %s: %w", hit.recordID, err)
		}
		retrieved = append(retrieved, domain.Retrieved{Record: *rec, Score: hit.score})
	}
	return retrieved, nil
}

// reciprocalRankFusion merges two ranked lists. Records appearing in
// both lists accumulate score from each.
func reciprocalRankFusion(list1, list2 []scoredHit) []scoredHit {
	scores := make(map[string]float64)

	for rank, hit := range list1 {
		scores[hit.recordID] += 1.0 / float64(rrfK+rank+1)
	}
	for rank, hit := range list2 {
		scores[hit.recordID] += 1.0 / float64(rrfK+rank+1)
	}

	merged := make([]scoredHit, 0, len(scores))
	for id, score := range scores {
		merged = append(merged, scoredHit{recordID: id, score: score})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].recordID < merged[j].recordID
	})
	return merged
}

// sortRetrieved orders results deterministically: score descending,
// newer records first on ties, then source file and row.
func sortRetrieved(retrieved []domain.Retrieved) {
	sort.Slice(retrieved, func(i, j int) bool {
		a, b := retrieved[i], retrieved[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		at, bt := a.Record.Timestamp, b.Record.Timestamp
		switch {
		case at != nil && bt != nil && !at.Equal(*bt):
			return at.After(*bt)
		case at != nil && bt == nil:
			return true
		case at == nil && bt != nil:
			return false
		}
		if a.Record.SourceFile != b.Record.SourceFile {
			return a.Record.SourceFile < b.Record.SourceFile
		}
		return a.Record.Row < b.Record.Row
	})
}

// queryTerms tokenizes a question into lowercase search terms.
func queryTerms(question string) []string {
	return termPattern.FindAllString(strings.ToLower(question), -1)
}
