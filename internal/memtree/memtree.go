// Package memtree implements the hierarchical semantic memory index
// described in spec §4.2: a bounded-branching tree of TreeNodes supporting
// O(log N) insertion and beam-search top-k retrieval. It has no teacher
// equivalent in haasonsaas-nexus (whose internal/memory is a flat vector
// index) and is grounded primarily on original_source/src/memory/mod.rs's
// MemTree usage (dimension parameterization, reload-from-store) and the
// algorithmic description in spec.md itself.
package memtree

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"finch/internal/embedding"
	"finch/pkg/models"
)

// DefaultBranchingFactor bounds how many children an internal node may
// hold before a split is triggered (spec §4.2 step 3).
const DefaultBranchingFactor = 8

// DefaultMaxDepth bounds how far greedy descent walks before forcing an
// attach, preventing pathological deep chains.
const DefaultMaxDepth = 12

// Tree is a MemTree: a single mutex guards the whole in-memory structure,
// matching spec §5's "single mutex over its in-memory structure" rule.
// Retrievals and insertions are both expected to be brief.
type Tree struct {
	mu sync.Mutex

	dimension int
	branching int
	maxDepth  int

	nodes  map[uint64]*models.TreeNode
	nextID uint64

	// onMutate, when set, is called with the full set of nodes touched by
	// an insertion (new leaf + ancestor chain), ordered by id ascending,
	// so a caller can persist them transactionally (spec §4.2
	// Persistence). It returns an error to abort and roll back the
	// in-memory mutation.
	onMutate func(touched []*models.TreeNode) error
}

// New constructs an empty tree with a single root node (id 0, no parent).
// dimension must match the embedding engine's output width; a mismatch
// during insertion is a fatal construction-time error per spec §4.2.
func New(dimension int) *Tree {
	return NewWithOptions(dimension, DefaultBranchingFactor, DefaultMaxDepth, nil)
}

// NewWithOptions is New with explicit branching factor, max depth, and an
// optional persistence hook.
func NewWithOptions(dimension, branching, maxDepth int, onMutate func([]*models.TreeNode) error) *Tree {
	t := &Tree{
		dimension: dimension,
		branching: branching,
		maxDepth:  maxDepth,
		nodes:     make(map[uint64]*models.TreeNode),
		onMutate:  onMutate,
	}
	root := &models.TreeNode{
		ID:        0,
		Embedding: make([]float32, dimension),
		CreatedAt: time.Time{},
	}
	t.nodes[0] = root
	t.nextID = 1
	return t
}

// LoadSnapshot rebuilds a Tree's in-memory structure from previously
// persisted nodes (spec §4.3: "rebuild the in-memory MemTree on
// startup"). Nodes must include the root (id 0).
func LoadSnapshot(dimension, branching, maxDepth int, nodes []*models.TreeNode, onMutate func([]*models.TreeNode) error) (*Tree, error) {
	t := &Tree{
		dimension: dimension,
		branching: branching,
		maxDepth:  maxDepth,
		nodes:     make(map[uint64]*models.TreeNode),
		onMutate:  onMutate,
	}
	var maxID uint64
	for _, n := range nodes {
		t.nodes[n.ID] = n
		if n.ID > maxID {
			maxID = n.ID
		}
	}
	if _, ok := t.nodes[0]; !ok {
		return nil, fmt.Errorf("memtree: snapshot missing root node")
	}
	t.nextID = maxID + 1
	return t, nil
}

// Nodes returns every node currently in the tree, for snapshotting.
func (t *Tree) Nodes() []*models.TreeNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*models.TreeNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	return out
}

// Size returns the number of leaves currently indexed.
func (t *Tree) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int
	for _, node := range t.nodes {
		if node.ID != 0 && node.IsLeaf() {
			n++
		}
	}
	return n
}

// Depth returns the tree's current maximum level.
func (t *Tree) Depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var max int
	for _, node := range t.nodes {
		if node.Level > max {
			max = node.Level
		}
	}
	return max
}

// Insert adds a new leaf with the given text, embedding, and importance,
// following spec §4.2's insertion protocol, and returns the new node's id.
func (t *Tree) Insert(text string, emb []float32, importance models.Importance, now time.Time) (uint64, error) {
	if len(emb) != t.dimension {
		return 0, fmt.Errorf("memtree: embedding dimension %d does not match tree dimension %d", len(emb), t.dimension)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	parentID := t.descend(emb)
	parent := t.nodes[parentID]

	leaf := &models.TreeNode{
		ID:         t.nextID,
		ParentID:   &parentID,
		Text:       text,
		Embedding:  append([]float32(nil), emb...),
		Level:      0,
		CreatedAt:  now,
		Importance: importance,
	}
	t.nextID++
	t.nodes[leaf.ID] = leaf
	parent.Children = append(parent.Children, leaf.ID)

	touched := []*models.TreeNode{leaf}

	if len(parent.Children) > t.branching {
		splitTouched, err := t.split(parent)
		if err != nil {
			t.rollbackInsert(leaf, parent)
			return 0, err
		}
		touched = append(touched, splitTouched...)
	}

	ancestorTouched := t.recomputeAncestors(parent.ID)
	touched = append(touched, ancestorTouched...)

	sortNodesByID(touched)

	if t.onMutate != nil {
		if err := t.onMutate(touched); err != nil {
			t.rollbackInsert(leaf, parent)
			return 0, fmt.Errorf("memtree: persisting insertion: %w", err)
		}
	}

	return leaf.ID, nil
}

func (t *Tree) rollbackInsert(leaf, parent *models.TreeNode) {
	delete(t.nodes, leaf.ID)
	for i, c := range parent.Children {
		if c == leaf.ID {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			break
		}
	}
}

// descend walks from the root choosing, at each level, the child with
// maximum cosine similarity to emb, stopping at a leaf or at maxDepth
// (spec §4.2 step 2). It returns the id of the node the new leaf should
// attach to.
func (t *Tree) descend(emb []float32) uint64 {
	current := t.nodes[0]
	for depth := 0; depth < t.maxDepth; depth++ {
		if len(current.Children) == 0 {
			return current.ID
		}
		best := uint64(0)
		var bestSim float32 = -2
		for _, cid := range current.Children {
			child := t.nodes[cid]
			sim := embedding.CosineSimilarity(emb, child.Embedding)
			if sim > bestSim {
				bestSim = sim
				best = cid
			}
		}
		next := t.nodes[best]
		if next.IsLeaf() {
			return current.ID
		}
		current = next
	}
	return current.ID
}

// split redistributes an overfull node's children into two groups via a
// deterministic k=2 clustering (Lloyd's algorithm seeded by the two most
// dissimilar children), creating a new sibling internal node for one
// group. Returns the nodes touched by the split (the new internal node
// and every reassigned child's parent pointer).
func (t *Tree) split(parent *models.TreeNode) ([]*models.TreeNode, error) {
	children := parent.Children
	if len(children) < 2 {
		return nil, nil
	}

	seedA, seedB := pickFarthestPair(t.nodes, children)

	groupA := []uint64{seedA}
	groupB := []uint64{seedB}
	centroidA := append([]float32(nil), t.nodes[seedA].Embedding...)
	centroidB := append([]float32(nil), t.nodes[seedB].Embedding...)

	for _, cid := range children {
		if cid == seedA || cid == seedB {
			continue
		}
		emb := t.nodes[cid].Embedding
		if embedding.CosineSimilarity(emb, centroidA) >= embedding.CosineSimilarity(emb, centroidB) {
			groupA = append(groupA, cid)
		} else {
			groupB = append(groupB, cid)
		}
	}

	newNode := &models.TreeNode{
		ID:        t.nextID,
		ParentID:  parent.ParentID,
		Level:     parent.Level,
		CreatedAt: t.nodes[children[0]].CreatedAt,
	}
	t.nextID++
	t.nodes[newNode.ID] = newNode

	// parent keeps groupA, newNode takes groupB.
	parent.Children = groupA
	newNode.Children = groupB
	for _, cid := range groupB {
		pid := newNode.ID
		t.nodes[cid].ParentID = &pid
	}

	// Attach newNode to parent's own parent (or to root if parent had
	// none — every non-root node has a parent by construction, so this
	// only happens if we ever split the root itself, which we don't).
	if parent.ParentID != nil {
		grandparent := t.nodes[*parent.ParentID]
		grandparent.Children = append(grandparent.Children, newNode.ID)
	}

	t.recalcEmbedding(parent)
	t.recalcEmbedding(newNode)

	touched := []*models.TreeNode{parent, newNode}
	for _, cid := range groupB {
		touched = append(touched, t.nodes[cid])
	}
	return touched, nil
}

func pickFarthestPair(nodes map[uint64]*models.TreeNode, ids []uint64) (uint64, uint64) {
	bestA, bestB := ids[0], ids[1]
	var worst float32 = 2
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			sim := embedding.CosineSimilarity(nodes[ids[i]].Embedding, nodes[ids[j]].Embedding)
			if sim < worst {
				worst = sim
				bestA, bestB = ids[i], ids[j]
			}
		}
	}
	return bestA, bestB
}

// recomputeAncestors walks from startID to the root recomputing each
// ancestor's embedding as the importance-weighted, L2-renormalized mean
// of its children's embeddings (spec §4.2 step 4). Returns the touched
// ancestor nodes.
func (t *Tree) recomputeAncestors(startID uint64) []*models.TreeNode {
	var touched []*models.TreeNode
	id := startID
	for {
		node := t.nodes[id]
		t.recalcEmbedding(node)
		touched = append(touched, node)
		if node.ParentID == nil {
			break
		}
		id = *node.ParentID
	}
	return touched
}

func (t *Tree) recalcEmbedding(node *models.TreeNode) {
	if len(node.Children) == 0 {
		return
	}
	dim := t.dimension
	sum := make([]float64, dim)
	var totalWeight float64
	for _, cid := range node.Children {
		child := t.nodes[cid]
		w := float64(child.Importance.Weight())
		totalWeight += w
		for i := 0; i < dim && i < len(child.Embedding); i++ {
			sum[i] += w * float64(child.Embedding[i])
		}
	}
	if totalWeight == 0 {
		totalWeight = 1
	}
	mean := make([]float32, dim)
	for i, s := range sum {
		mean[i] = float32(s / totalWeight)
	}
	node.Embedding = embedding.Normalize(mean)
}

func sortNodesByID(nodes []*models.TreeNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
