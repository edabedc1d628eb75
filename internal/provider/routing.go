package provider

import (
	"regexp"
	"strings"

	"finch/pkg/models"
)

// Complexity tags a request as cheap (routable to a smaller/faster
// model) or complex (needs the capable model), a lightweight version of
// original_source's threshold_router.rs folded into SPEC_FULL.md §12.
type Complexity string

const (
	ComplexityCheap   Complexity = "cheap"
	ComplexityComplex Complexity = "complex"
)

var (
	codePattern     = regexp.MustCompile("(?i)```|\\b(func|class|def|package|import|select|insert|update|delete)\\b")
	reasoningWords  = regexp.MustCompile(`(?i)\b(analyze|reason|think through|derive|prove|why|tradeoff|design|architecture)\b`)
	quickTextCutoff = 80
)

// ClassifyComplexity inspects the last user message in messages and
// returns cheap for short, non-code, non-reasoning requests and complex
// otherwise. Grounded on the teacher's routing.HeuristicClassifier
// (internal/agent/routing/heuristic.go), adapted from tag-list output
// to a single cheap/complex split.
func ClassifyComplexity(messages []models.Message) Complexity {
	content := lastUserText(messages)
	if content == "" {
		return ComplexityCheap
	}
	if codePattern.MatchString(content) || reasoningWords.MatchString(content) {
		return ComplexityComplex
	}
	if len(strings.TrimSpace(content)) < quickTextCutoff {
		return ComplexityCheap
	}
	return ComplexityComplex
}

func lastUserText(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return messages[i].TextContent()
		}
	}
	return ""
}

// Router picks between a cheap and a complex model for the same
// underlying provider chain, based on request complexity.
type Router struct {
	Chain        *Chain
	CheapModel   string
	ComplexModel string
}

// NewRouter builds a Router over chain.
func NewRouter(chain *Chain, cheapModel, complexModel string) *Router {
	return &Router{Chain: chain, CheapModel: cheapModel, ComplexModel: complexModel}
}

// ModelFor returns the model name to use for req given its complexity.
// If req.Model is already set, it is returned unchanged: explicit model
// selection always wins over routing.
func (r *Router) ModelFor(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	if ClassifyComplexity(req.Messages) == ComplexityCheap && r.CheapModel != "" {
		return r.CheapModel
	}
	return r.ComplexModel
}
