package embedding

import (
	"context"
	"math"
	"testing"
)

func TestTfIdfEmbedUnitLength(t *testing.T) {
	e := NewTfIdfEmbedding()
	vec, err := e.Embed(context.Background(), "the quick brown fox jumps over the lazy dog")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != e.Dimension() {
		t.Fatalf("len(vec) = %d, want %d", len(vec), e.Dimension())
	}
	var sumSq float64
	for _, x := range vec {
		sumSq += float64(x) * float64(x)
	}
	if math.Abs(sumSq-1) > 1e-3 {
		t.Fatalf("||vec||^2 = %v, want ~1", sumSq)
	}
}

func TestTfIdfSimilarTextsScoreHigher(t *testing.T) {
	e := NewTfIdfEmbedding()
	ctx := context.Background()
	a, _ := e.Embed(ctx, "deploying the payment service to production")
	b, _ := e.Embed(ctx, "deploying the payment service to staging")
	c, _ := e.Embed(ctx, "a recipe for chocolate chip cookies")

	simAB := CosineSimilarity(a, b)
	simAC := CosineSimilarity(a, c)
	if simAB <= simAC {
		t.Fatalf("expected related texts to score higher: simAB=%v simAC=%v", simAB, simAC)
	}
}

func TestNeuralEmbedDeterministic(t *testing.T) {
	e := NewNeuralEmbedding()
	ctx := context.Background()
	v1, _ := e.Embed(ctx, "hello world")
	v2, _ := e.Embed(ctx, "hello world")
	if len(v1) != neuralDimension {
		t.Fatalf("len = %d, want %d", len(v1), neuralDimension)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("embedding not deterministic at %d: %v != %v", i, v1[i], v2[i])
		}
	}
}

func TestSelectFallsBackToTfIdfWithoutCache(t *testing.T) {
	p := Select(true)
	if p.Name() != "tfidf" {
		t.Fatalf("Select(true) without a model cache = %q, want tfidf", p.Name())
	}
}

func TestAverageEmbeddingsNormalized(t *testing.T) {
	avg := AverageEmbeddings([][]float32{{1, 0, 0}, {0, 1, 0}})
	var sumSq float64
	for _, x := range avg {
		sumSq += float64(x) * float64(x)
	}
	if math.Abs(sumSq-1) > 1e-6 {
		t.Fatalf("||avg||^2 = %v, want 1", sumSq)
	}
}
