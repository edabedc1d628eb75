package memstore

import (
	"strings"

	"finch/pkg/models"
)

// Classifier decides whether a piece of conversation content is worth
// indexing into the MemTree, and at what importance level, per spec
// §4.3's "classifies the content for importance" step. original_source's
// memory/mod.rs performs this classification inline; no dedicated file
// survived the pack's filters, so the policy below is grounded directly
// on spec.md's importance scale (§3: importance ∈ {0,1,2,3}).
type Classifier interface {
	Classify(content string) (importance models.Importance, indexWorthy bool)
}

// ImportanceClassifier is the default Classifier: very short content
// (greetings, acknowledgements) is skipped, everything else is indexed at
// normal importance, and content mentioning decisions or errors is
// promoted to high importance since those turns are disproportionately
// useful for later recall.
type ImportanceClassifier struct {
	MinLength int
}

// NewImportanceClassifier returns the default classifier.
func NewImportanceClassifier() *ImportanceClassifier {
	return &ImportanceClassifier{MinLength: 12}
}

var highImportanceMarkers = []string{
	"error", "failed", "decided", "decision", "important", "critical", "bug", "fix",
}

func (c *ImportanceClassifier) Classify(content string) (models.Importance, bool) {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < c.MinLength {
		return models.ImportanceLow, false
	}
	lower := strings.ToLower(trimmed)
	for _, m := range highImportanceMarkers {
		if strings.Contains(lower, m) {
			return models.ImportanceHigh, true
		}
	}
	return models.ImportanceNormal, true
}
