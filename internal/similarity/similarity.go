// Package similarity proposes candidate pairs of related markets from their
// embedding vectors.
//
// The vector space is first partitioned with k-means so that pairwise
// comparison happens only within clusters. Clustering is a performance device,
// not a correctness requirement: it trades recall (pairs landing in different
// clusters are never compared) for sub-quadratic cost. Similarity itself is
// always the dot product of the unit-normalized vectors (cosine similarity),
// never re-derived from the cluster assignment.
package similarity

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Item is one market's entry in the proposal input.
type Item struct {
	ID      string
	Vector  []float64
	EndDate time.Time // zero when unknown
}

// Candidate is a proposed related pair, referring to input indices with I < J.
type Candidate struct {
	I          int
	J          int
	Similarity float64
}

// Proposer finds candidate pairs whose cosine similarity clears a threshold.
type Proposer struct {
	MinSimilarity float64
	MaxDaysApart  int   // 0 disables the end-date window filter
	ClusterHint   int   // 0 = auto: max(n/10, 5) capped at n
	Seed          int64 // k-means seed; fixed for reproducible proposals
}

// NewProposer returns a Proposer with the default deterministic seed.
func NewProposer(minSimilarity float64, maxDaysApart, clusterHint int) *Proposer {
	return &Proposer{
		MinSimilarity: minSimilarity,
		MaxDaysApart:  maxDaysApart,
		ClusterHint:   clusterHint,
		Seed:          42,
	}
}

// Propose returns all within-cluster pairs whose similarity is at least
// MinSimilarity, optionally restricted to pairs whose end dates fall within
// MaxDaysApart of each other. The result is sorted by descending similarity,
// tie-broken by ascending (ID, ID) pair, so identical inputs always produce
// the identical candidate list.
//
// A vector dimension mismatch is an invariant violation and aborts the batch.
func (p *Proposer) Propose(items []Item) ([]Candidate, error) {
	if len(items) < 2 {
		return nil, nil
	}

	dim := len(items[0].Vector)
	vectors := make([][]float64, len(items))
	for i, item := range items {
		if len(item.Vector) != dim {
			return nil, fmt.Errorf("vector dimension mismatch at %q: got %d, want %d", item.ID, len(item.Vector), dim)
		}
		vectors[i] = item.Vector
	}

	k := p.ClusterHint
	if k <= 0 {
		k = len(items) / 10
		if k < 5 {
			k = 5
		}
	}
	if k > len(items) {
		k = len(items)
	}

	labels := kmeans(vectors, k, p.Seed)

	clusters := make(map[int][]int)
	for i, label := range labels {
		clusters[label] = append(clusters[label], i)
	}

	var candidates []Candidate
	for _, indices := range clusters {
		if len(indices) < 2 {
			continue
		}
		for a := 0; a < len(indices); a++ {
			for b := a + 1; b < len(indices); b++ {
				i, j := indices[a], indices[b]
				if !p.datesCompatible(items[i].EndDate, items[j].EndDate) {
					continue
				}
				sim := floats.Dot(vectors[i], vectors[j])
				if sim > 1.0 {
					// Rounding on unit vectors can nudge the dot product past 1.
					sim = 1.0
				}
				if sim >= p.MinSimilarity {
					candidates = append(candidates, Candidate{I: i, J: j, Similarity: sim})
				}
			}
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.Similarity != cb.Similarity {
			return ca.Similarity > cb.Similarity
		}
		if items[ca.I].ID != items[cb.I].ID {
			return items[ca.I].ID < items[cb.I].ID
		}
		return items[ca.J].ID < items[cb.J].ID
	})

	return candidates, nil
}

func (p *Proposer) datesCompatible(a, b time.Time) bool {
	if p.MaxDaysApart <= 0 {
		return true
	}
	if a.IsZero() || b.IsZero() {
		return false
	}
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(p.MaxDaysApart)*24*time.Hour
}

const kmeansMaxIterations = 25

// kmeans assigns each vector a cluster label in [0, k). Initial centroids are
// drawn with a seeded permutation, so the assignment is deterministic for
// identical inputs.
func kmeans(vectors [][]float64, k int, seed int64) []int {
	n := len(vectors)
	if k >= n {
		labels := make([]int, n)
		for i := range labels {
			labels[i] = i
		}
		return labels
	}

	dim := len(vectors[0])
	rng := rand.New(rand.NewSource(seed))

	centroids := make([][]float64, k)
	for i, idx := range rng.Perm(n)[:k] {
		centroids[i] = append([]float64(nil), vectors[idx]...)
	}

	labels := make([]int, n)
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, vec := range vectors {
			best, bestDist := 0, squaredDistance(vec, centroids[0])
			for c := 1; c < k; c++ {
				if d := squaredDistance(vec, centroids[c]); d < bestDist {
					best, bestDist = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, vec := range vectors {
			floats.Add(sums[labels[i]], vec)
			counts[labels[i]]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				// Empty cluster keeps its previous centroid.
				continue
			}
			floats.Scale(1.0/float64(counts[c]), sums[c])
			centroids[c] = sums[c]
		}
	}

	return labels
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
