package memtree

import (
	"sort"

	"finch/internal/embedding"
	"finch/pkg/models"
)

// ScoredLeaf pairs a leaf node with its similarity to a query embedding.
type ScoredLeaf struct {
	Node       *models.TreeNode
	Similarity float32
}

// Query beam-searches the tree for the k leaves most similar to emb,
// per spec §4.2's retrieval protocol: at each level expand the top-B
// children by cosine similarity, collect encountered leaves, then return
// the k leaves with highest similarity overall, descending, ties broken
// by more recent CreatedAt. Never returns the root or internal nodes.
func (t *Tree) Query(emb []float32, k int) []ScoredLeaf {
	t.mu.Lock()
	defer t.mu.Unlock()

	if k <= 0 {
		return nil
	}

	var leaves []ScoredLeaf
	beam := []uint64{0}
	for len(beam) > 0 {
		var nextBeam []uint64
		var candidates []struct {
			id  uint64
			sim float32
		}
		for _, id := range beam {
			node := t.nodes[id]
			for _, cid := range node.Children {
				child := t.nodes[cid]
				sim := embedding.CosineSimilarity(emb, child.Embedding)
				if child.IsLeaf() {
					leaves = append(leaves, ScoredLeaf{Node: child, Similarity: sim})
					continue
				}
				candidates = append(candidates, struct {
					id  uint64
					sim float32
				}{cid, sim})
			}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
		limit := t.branching
		if limit > len(candidates) {
			limit = len(candidates)
		}
		for i := 0; i < limit; i++ {
			nextBeam = append(nextBeam, candidates[i].id)
		}
		beam = nextBeam
	}

	sort.Slice(leaves, func(i, j int) bool {
		if leaves[i].Similarity != leaves[j].Similarity {
			return leaves[i].Similarity > leaves[j].Similarity
		}
		return leaves[i].Node.CreatedAt.After(leaves[j].Node.CreatedAt)
	})

	if k > len(leaves) {
		k = len(leaves)
	}
	return leaves[:k]
}
