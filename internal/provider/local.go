package provider

// NewLocalProvider builds a driver against a local OpenAI-wire-compatible
// inference endpoint (llama.cpp server, vLLM, Ollama's OpenAI shim), the
// "optionally preferring a local inference backend" member spec §1
// names. It reports its Chain name as "local" so it never collides with
// a same-process public OpenAI driver's circuit-breaker/rate-limiter
// state in FallbackConfig.
//
// Grounded on SPEC_FULL.md §12's local-preferred routing, itself drawn
// from original_source's providers/teacher_session.rs: a local backend
// tried first, with the cloud chain as fallback. NewChain places
// whatever Provider is passed as its `local` argument at index 0.
func NewLocalProvider(baseURL, defaultModel string) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = "local-model"
	}
	return NewNamedOpenAICompatibleProvider("local", "local", baseURL, defaultModel)
}
