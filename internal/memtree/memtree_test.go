package memtree

import (
	"context"
	"testing"
	"time"

	"finch/internal/embedding"
	"finch/pkg/models"
)

func insertText(t *testing.T, tree *Tree, eng embedding.Provider, text string, ts time.Time) uint64 {
	t.Helper()
	vec, err := eng.Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("Embed(%q): %v", text, err)
	}
	id, err := tree.Insert(text, vec, models.ImportanceNormal, ts)
	if err != nil {
		t.Fatalf("Insert(%q): %v", text, err)
	}
	return id
}

func TestInsertAndRecall(t *testing.T) {
	eng := embedding.NewTfIdfEmbedding()
	tree := New(eng.Dimension())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	insertText(t, tree, eng, "How do I use Rust lifetimes?", base)
	insertText(t, tree, eng, "What is async await in Rust?", base.Add(time.Minute))
	insertText(t, tree, eng, "Explain Rust ownership", base.Add(2*time.Minute))

	qvec, err := eng.Embed(context.Background(), "Rust programming")
	if err != nil {
		t.Fatalf("Embed query: %v", err)
	}
	results := tree.Query(qvec, 2)
	if len(results) != 2 {
		t.Fatalf("Query returned %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Node.ID == 0 {
			t.Fatalf("Query returned the root node")
		}
		if !r.Node.IsLeaf() {
			t.Fatalf("Query returned a non-leaf node: %+v", r.Node)
		}
	}
	if results[0].Similarity < results[1].Similarity {
		t.Fatalf("results not sorted descending by similarity: %v", results)
	}
}

func TestAncestorEmbeddingIsWeightedMean(t *testing.T) {
	eng := embedding.NewTfIdfEmbedding()
	tree := New(eng.Dimension())
	now := time.Now()

	insertText(t, tree, eng, "alpha beta gamma", now)
	insertText(t, tree, eng, "delta epsilon zeta", now)

	root := tree.nodes[0]
	if len(root.Children) == 0 {
		t.Fatalf("root has no children after insertion")
	}

	recomputed := make([]float32, tree.dimension)
	var totalWeight float64
	sum := make([]float64, tree.dimension)
	for _, cid := range root.Children {
		c := tree.nodes[cid]
		w := float64(c.Importance.Weight())
		totalWeight += w
		for i, v := range c.Embedding {
			sum[i] += w * float64(v)
		}
	}
	for i, s := range sum {
		recomputed[i] = float32(s / totalWeight)
	}
	recomputed = embedding.Normalize(recomputed)

	for i := range recomputed {
		if diff := recomputed[i] - root.Embedding[i]; diff > 1e-4 || diff < -1e-4 {
			t.Fatalf("root embedding[%d] = %v, want %v", i, root.Embedding[i], recomputed[i])
		}
	}
}

func TestSplitOnOverfullNode(t *testing.T) {
	eng := embedding.NewTfIdfEmbedding()
	tree := NewWithOptions(eng.Dimension(), 2, DefaultMaxDepth, nil)
	now := time.Now()

	texts := []string{
		"the cat sat on the mat",
		"the dog ran in the park",
		"quantum mechanics and relativity",
		"general relativity and spacetime curvature",
		"baking bread requires yeast and flour",
	}
	for i, txt := range texts {
		insertText(t, tree, eng, txt, now.Add(time.Duration(i)*time.Minute))
	}

	if len(tree.nodes[0].Children) > 2 {
		t.Fatalf("root has %d children, branching factor 2 should have forced a split", len(tree.nodes[0].Children))
	}
}

func TestLoadSnapshotRoundTrips(t *testing.T) {
	eng := embedding.NewTfIdfEmbedding()
	tree := New(eng.Dimension())
	now := time.Now()
	insertText(t, tree, eng, "first memory", now)
	insertText(t, tree, eng, "second memory", now.Add(time.Minute))

	snap := tree.Nodes()
	reloaded, err := LoadSnapshot(tree.dimension, tree.branching, tree.maxDepth, snap, nil)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	qvec, _ := eng.Embed(context.Background(), "first memory")
	before := tree.Query(qvec, 1)
	after := reloaded.Query(qvec, 1)
	if len(before) != 1 || len(after) != 1 || before[0].Node.ID != after[0].Node.ID {
		t.Fatalf("reloaded tree returned different top-1: before=%+v after=%+v", before, after)
	}
}
