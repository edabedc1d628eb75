package embedding

import (
	"context"
	"os"
	"path/filepath"
)

// neuralDimension matches all-MiniLM-L6-v2's output width, the model
// original_source/src/memory/neural_embedding.rs downloads from
// HuggingFace and runs through ONNX Runtime.
const neuralDimension = 384

// NeuralEmbedding is a deterministic local stand-in for an ONNX sentence
// transformer: masked mean pooling over a hashed vocabulary projection.
// It produces the same shape of output (a 384-dim unit vector) as
// NeuralEmbeddingEngine without an ONNX runtime or a downloaded model,
// per the Open Question resolution in DESIGN.md.
type NeuralEmbedding struct{}

// NewNeuralEmbedding constructs the stand-in neural engine. It never
// fails: there is no model file to find or load.
func NewNeuralEmbedding() *NeuralEmbedding { return &NeuralEmbedding{} }

func (e *NeuralEmbedding) Name() string      { return "neural-stub" }
func (e *NeuralEmbedding) Dimension() int    { return neuralDimension }
func (e *NeuralEmbedding) MaxBatchSize() int { return 64 }

func (e *NeuralEmbedding) Embed(_ context.Context, text string) ([]float32, error) {
	return embedNeural(text), nil
}

func (e *NeuralEmbedding) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedNeural(t)
	}
	return out, nil
}

// embedNeural hashes each token into neuralDimension buckets with several
// independent hash seeds (simulating the superposition a learned
// projection matrix would produce), averages per-token vectors (masked
// mean pooling: tokens contribute equally, there is no padding to mask
// here since we never pad), and L2-normalizes.
func embedNeural(text string) []float32 {
	terms := tokenize(text)
	if len(terms) == 0 {
		return make([]float32, neuralDimension)
	}
	sum := make([]float32, neuralDimension)
	for _, t := range terms {
		tokVec := hashProjection(t)
		for i, v := range tokVec {
			sum[i] += v
		}
	}
	for i := range sum {
		sum[i] /= float32(len(terms))
	}
	return Normalize(sum)
}

// hashProjection spreads a single token across neuralDimension buckets
// using a handful of salted FNV hashes, each contributing a signed unit
// impulse. This is the "hashed vocabulary projection" referenced in
// SPEC_FULL.md: a fixed deterministic substitute for a learned embedding
// matrix.
func hashProjection(term string) []float32 {
	const salts = 8
	out := make([]float32, neuralDimension)
	for s := 0; s < salts; s++ {
		h := hashTerm(term + string(rune('a'+s)))
		slot := h % neuralDimension
		sign := float32(1)
		if (h/neuralDimension)%2 == 1 {
			sign = -1
		}
		out[slot] += sign
	}
	return out
}

// modelCacheCandidates lists directories NeuralEmbeddingEngine.find_in_cache
// would check on the Rust side (the HuggingFace hub cache). We use the same
// probe for the selection policy, even though the stand-in never actually
// reads model weights from there: presence of a cached model is the signal
// that "neural" embeddings were requested and are expected to be available.
func modelCacheCandidates() []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".cache", "huggingface", "hub"))
	}
	if xdg := os.Getenv("HF_HOME"); xdg != "" {
		dirs = append(dirs, xdg)
	}
	return dirs
}

func hasCachedModel() bool {
	for _, dir := range modelCacheCandidates() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				return true
			}
		}
	}
	return false
}

// Select returns the neural engine when useNeural is requested and a
// model cache directory is present, otherwise TF-IDF. Mirrors
// original_source/src/memory/mod.rs's MemoryHierarchy::new engine-selection
// branch: "prefer the neural engine when the model artifacts are cached
// locally" (spec §4.1), falling back silently rather than failing startup.
func Select(useNeural bool) Provider {
	if useNeural && hasCachedModel() {
		return NewNeuralEmbedding()
	}
	return NewTfIdfEmbedding()
}
