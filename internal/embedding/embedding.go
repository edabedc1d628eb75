// Package embedding turns text into fixed-length unit vectors for MemTree
// indexing and retrieval (spec §4.1). It mirrors the teacher's
// internal/memory/embeddings.Provider shape (Embed/EmbedBatch/Name/
// Dimension/MaxBatchSize) but the concrete engines are grounded on
// original_source/src/memory/{mod,neural_embedding}.rs: a TF-IDF engine is
// always available, and a "neural" engine is selected automatically when a
// local model cache is present, falling back to TF-IDF otherwise.
package embedding

import (
	"context"
	"math"
)

// Provider generates embeddings for text. Embeddings are L2-normalized
// (unit length) so cosine similarity reduces to a dot product.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Dimension() int
	MaxBatchSize() int
}

// CosineSimilarity computes the cosine similarity of two equal-length
// vectors. Ported from original_source's cosine_similarity: for unit
// vectors this is just the dot product, but we don't assume normalization
// here so the helper stays correct for arbitrary callers.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// AverageEmbeddings computes the element-wise mean of a set of equal-length
// vectors, then L2-normalizes the result. Used by MemTree when recomputing
// an ancestor's embedding from its children (spec §4.2), though the
// importance-weighted variant lives in internal/memtree.
func AverageEmbeddings(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	sum := make([]float64, dim)
	for _, v := range vecs {
		for i := 0; i < dim && i < len(v); i++ {
			sum[i] += float64(v[i])
		}
	}
	out := make([]float32, dim)
	for i, s := range sum {
		out[i] = float32(s / float64(len(vecs)))
	}
	return Normalize(out)
}

// Normalize returns v scaled to unit L2 length. The zero vector is
// returned unchanged rather than dividing by zero.
func Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
