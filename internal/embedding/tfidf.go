package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// tfidfDimension is the size of the hashed TF-IDF projection. Unlike a
// vocabulary-indexed TF-IDF, hashing into a fixed-width vector means the
// dimension never has to grow as new terms are seen, at the cost of rare
// hash collisions between unrelated terms.
const tfidfDimension = 256

// TfIdfEmbedding is a deterministic, dependency-free embedding engine:
// term counts are hashed into a fixed-width vector and scaled by inverse
// document frequency over documents seen so far, then L2-normalized.
// Grounded on original_source/src/memory/mod.rs's TfIdfEmbedding, which
// plays the same "always available, no model download" role.
type TfIdfEmbedding struct {
	mu       sync.Mutex
	docCount int
	termDocs map[string]int // how many documents contained this term
}

// NewTfIdfEmbedding constructs an empty TF-IDF engine. Its IDF table grows
// online as Embed/EmbedBatch observe more documents.
func NewTfIdfEmbedding() *TfIdfEmbedding {
	return &TfIdfEmbedding{termDocs: make(map[string]int)}
}

func (e *TfIdfEmbedding) Name() string      { return "tfidf" }
func (e *TfIdfEmbedding) Dimension() int    { return tfidfDimension }
func (e *TfIdfEmbedding) MaxBatchSize() int { return 256 }

func (e *TfIdfEmbedding) Embed(_ context.Context, text string) ([]float32, error) {
	return e.embedOne(text), nil
}

func (e *TfIdfEmbedding) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embedOne(t)
	}
	return out, nil
}

func (e *TfIdfEmbedding) embedOne(text string) []float32 {
	terms := tokenize(text)
	counts := make(map[string]int, len(terms))
	for _, t := range terms {
		counts[t]++
	}

	e.mu.Lock()
	e.docCount++
	for t := range counts {
		e.termDocs[t]++
	}
	docCount := e.docCount
	idf := make(map[string]float64, len(counts))
	for t := range counts {
		idf[t] = math.Log(float64(docCount+1)/float64(e.termDocs[t]+1)) + 1
	}
	e.mu.Unlock()

	vec := make([]float32, tfidfDimension)
	for t, c := range counts {
		tf := float64(c) / float64(len(terms))
		weight := tf * idf[t]
		slot := hashTerm(t) % tfidfDimension
		vec[slot] += float32(weight)
	}
	return Normalize(vec)
}

func hashTerm(t string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(t))
	return h.Sum32()
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}
