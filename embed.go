package cortex

import (
	"hash/fnv"
	"math"
	"strings"
)

// maxEmbedChars truncates text before embedding.
const maxEmbedChars = 2000

// EmbeddingProvider generates vector embeddings from text. Built-in:
// HashEmbedder. Implementations for real encoders (sentence-transformer
// servers, hosted embedding APIs) plug in here; the provider choice is an
// external collaborator — this module only needs the contract.
type EmbeddingProvider interface {
	Embed(text string) ([]float32, error)
	Dimension() int
}

// HashEmbedder is the default, offline EmbeddingProvider. It hashes
// overlapping word shingles of the input into a fixed-width bucket vector
// and L2-normalizes the result. It is deterministic across runs for the
// same text and process, which is the only contract a pluggable encoder
// must meet — it does not aim for semantic fidelity.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a deterministic embedder with the given dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = EmbedDimension
	}
	return &HashEmbedder{dim: dim}
}

// Dimension returns the configured embedding dimension.
func (h *HashEmbedder) Dimension() int {
	return h.dim
}

// Embed returns an L2-normalized vector for text. Never fails: a hash
// embedder has no external dependency that can be unavailable.
func (h *HashEmbedder) Embed(text string) ([]float32, error) {
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}

	vec := make([]float64, h.dim)
	for _, shingle := range shingles(strings.ToLower(text), 3) {
		hasher := fnv.New64a()
		hasher.Write([]byte(shingle))
		sum := hasher.Sum64()
		bucket := int(sum % uint64(h.dim))
		sign := 1.0
		if (sum>>63)&1 == 1 {
			sign = -1.0
		}
		vec[bucket] += sign
	}

	out := make([]float32, h.dim)
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// shingles splits text into whitespace-delimited words and emits overlapping
// windows of n words, plus every individual word, so short queries still
// produce a non-empty shingle set.
func shingles(text string, n int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var out []string
	out = append(out, words...)
	for i := 0; i+n <= len(words); i++ {
		out = append(out, strings.Join(words[i:i+n], " "))
	}
	return out
}

// Cosine computes the cosine similarity between two vectors. Returns 0 when
// either vector is zero-length, zero-norm, or the lengths mismatch.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
