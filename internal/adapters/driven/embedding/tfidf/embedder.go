// Package tfidf provides a deterministic TF-IDF embedder. It needs no
// external service: the vocabulary is built from the record corpus at
// build time and persisted inside the index artifact so queries embed
// against the same term space.
package tfidf

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
)

// Name identifies this embedder in persisted state.
const Name = "tfidf"

// Ensure Embedder implements the interface.
var _ driven.Embedder = (*Embedder)(nil)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\d+`)

// state is the serialized form persisted in the index artifact.
type state struct {
	Terms []string  `json:"terms"`
	IDF   []float64 `json:"idf"`
}

// Embedder is a corpus-prepared TF-IDF vectorizer producing
// L2-normalised vectors.
type Embedder struct {
	vocabulary map[string]int
	idf        []float64
	dimension  int
	prepared   bool
	stopwords  map[string]struct{}
}

// New creates an unprepared TF-IDF embedder.
func New() *Embedder {
	return &Embedder{
		vocabulary: make(map[string]int),
		stopwords:  defaultStopwords(),
	}
}

// FromState reconstructs a prepared embedder from serialized state.
func FromState(data []byte) (*Embedder, error) {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling tfidf state: %w", err)
	}
	if len(s.Terms) != len(s.IDF) {
		return nil, errors.New("tfidf state: terms and idf length mismatch")
	}

	e := New()
	e.idf = s.IDF
	e.dimension = len(s.Terms)
	e.vocabulary = make(map[string]int, len(s.Terms))
	for i, term := range s.Terms {
		e.vocabulary[term] = i
	}
	e.prepared = true
	return e, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return Name }

// Dimension returns the dimensionality of produced vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Prepare builds the vocabulary and IDF values from the corpus.
// Terms are sorted so identical corpora always produce identical
// vocabularies.
func (e *Embedder) Prepare(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("empty corpus for tfidf prepare")
	}

	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		return errors.New("no tokens found in corpus")
	}

	e.vocabulary = make(map[string]int, len(terms))
	e.idf = make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		e.vocabulary[term] = i
		// Smoothed IDF.
		e.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	e.dimension = len(terms)
	e.prepared = true
	return nil
}

// Embed computes the L2-normalised TF-IDF vector for the text.
func (e *Embedder) Embed(text string) ([]float32, error) {
	if !e.prepared {
		return nil, errors.New("tfidf embedder not prepared")
	}

	vec := make([]float32, e.dimension)
	tf := make(map[int]int)
	total := 0
	for _, tok := range e.tokenize(text) {
		if idx, ok := e.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		return vec, nil
	}

	var norm float64
	for idx, count := range tf {
		v := float64(count) / float64(total) * e.idf[idx]
		vec[idx] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

// MarshalState serializes the prepared vocabulary and IDF values.
func (e *Embedder) MarshalState() ([]byte, error) {
	if !e.prepared {
		return nil, errors.New("tfidf embedder not prepared")
	}

	terms := make([]string, e.dimension)
	for term, idx := range e.vocabulary {
		terms[idx] = term
	}
	return json.Marshal(state{Terms: terms, IDF: e.idf})
}

func (e *Embedder) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else",
		"for", "to", "of", "in", "on", "at", "by", "with", "as", "is",
		"are", "was", "were", "be", "been", "being", "it", "this",
		"that", "these", "those", "from", "up", "down", "over",
		"under", "again", "further", "than", "so", "such", "into",
		"about", "between", "through", "during", "before", "after",
		"above", "below", "out", "off", "own", "same", "too", "very",
		"can", "will", "just", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
