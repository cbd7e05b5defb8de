// Package embedding maps market text to fixed-dimension unit vectors.
//
// The Provider interface is the seam for any embedding backend. The shipped
// implementation is a feature-hashing embedder: token and token-bigram
// features are hashed into a fixed-dimension signed projection and the result
// is L2-normalized. It is fully deterministic, so graph builds are
// reproducible across runs and across processes.
//
// A provider is constructed once by the process entry point and passed by
// reference to graph-building code. There is no package-level cached model.
package embedding

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
)

// Provider generates normalized fixed-dimension vectors from text.
// Implementations must be deterministic: identical inputs yield identical
// vectors.
type Provider interface {
	// Dimension returns the length of vectors produced by this provider.
	Dimension() int
	// Embed returns a unit-normalized vector for the text.
	Embed(text string) ([]float64, error)
	// EmbedBatch embeds many texts, preserving input order.
	EmbedBatch(texts []string) ([][]float64, error)
}

// HashingProvider is a dependency-free Provider using the hashing trick:
// each token (and adjacent-token bigram) is hashed to a bucket and a sign,
// accumulated, then normalized to unit length.
type HashingProvider struct {
	dim int
}

// NewHashingProvider creates a provider emitting vectors of the given
// dimension.
func NewHashingProvider(dim int) (*HashingProvider, error) {
	if dim < 8 {
		return nil, fmt.Errorf("embedding dimension must be at least 8, got %d", dim)
	}
	return &HashingProvider{dim: dim}, nil
}

// Dimension returns the provider's vector length.
func (p *HashingProvider) Dimension() int {
	return p.dim
}

// Embed returns a unit-normalized vector for the text. Text with no tokens
// yields the zero vector, which has zero similarity with everything.
func (p *HashingProvider) Embed(text string) ([]float64, error) {
	vec := make([]float64, p.dim)

	tokens := tokenize(text)
	for i, tok := range tokens {
		p.accumulate(vec, tok, 1.0)
		if i+1 < len(tokens) {
			// Bigrams capture phrase structure that single tokens miss.
			p.accumulate(vec, tok+"\x00"+tokens[i+1], 0.5)
		}
	}

	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1.0/norm, vec)
	}
	return vec, nil
}

// EmbedBatch embeds many texts, preserving input order.
func (p *HashingProvider) EmbedBatch(texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (p *HashingProvider) accumulate(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(p.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
