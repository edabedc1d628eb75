package memstore

import "context"

// ConversationSummary produces depth summary lines progressing from
// broadest (representative of all turns) to most recent, per spec §4.3:
// "uses centroid queries against the MemTree to produce depth lines...
// with the innermost line always pinned to the most recent leaf's literal
// text. Consecutive duplicate lines are de-duplicated."
//
// The root's own embedding is the weighted centroid of the whole tree
// (memtree.Tree.recalcEmbedding), so querying against it directly at
// decreasing k gives progressively narrower, more specific lines; the
// final line is always the single most recent leaf regardless of what
// the centroid query returns.
func (s *Store) ConversationSummary(ctx context.Context, depth int) ([]string, error) {
	if depth <= 0 {
		return nil, nil
	}

	root := s.tree.Nodes()
	var centroid []float32
	for _, n := range root {
		if n.IsRoot() {
			centroid = n.Embedding
			break
		}
	}

	var lines []string
	if centroid != nil {
		for _, leaf := range s.tree.Query(centroid, depth) {
			lines = appendDeduped(lines, leaf.Node.Text)
		}
	}

	recent, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) > 0 {
		lines = appendDeduped(lines, recent[0].Content)
	}

	if len(lines) > depth {
		lines = lines[len(lines)-depth:]
	}
	return lines, nil
}

func appendDeduped(lines []string, line string) []string {
	if len(lines) > 0 && lines[len(lines)-1] == line {
		return lines
	}
	return append(lines, line)
}
