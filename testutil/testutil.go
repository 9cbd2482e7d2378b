package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// Match is one exact nearest-neighbour hit.
type Match struct {
	Row   int
	Score float32
}

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with random values in range [0, 1).
// Locks only once per call.
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// UniformRangeVectors generates random vectors with values in range [-1, 1).
// Uses a single backing array.
func (r *RNG) UniformRangeVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()*2 - 1
		}
		vectors[i] = vec
	}

	return vectors
}

// UnitVectors generates L2-normalized random vectors (on the hypersphere).
// Gaussian components give a uniform distribution on the sphere.
func (r *RNG) UnitVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		r.unitLocked(vec)
		vectors[i] = vec
	}

	return vectors
}

// UnitVector generates a single L2-normalized random vector.
func (r *RNG) UnitVector(dimensions int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec := make([]float32, dimensions)
	r.unitLocked(vec)
	return vec
}

func (r *RNG) unitLocked(vec []float32) {
	var norm float64
	for j := range vec {
		v := r.rand.NormFloat64()
		vec[j] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		norm = 1
	}
	inv := float32(1.0 / math.Sqrt(norm))
	for j := range vec {
		vec[j] *= inv
	}
}

// ClusteredVectors generates vectors clustered around random centroids.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	vectors := make([][]float32, num)

	for i := range num {
		centroid := centroids[i%clusters]
		vec := data[i*dim : (i+1)*dim]
		for j := range dim {
			vec[j] = centroid[j] + float32(r.rand.NormFloat64())*spread
		}
		vectors[i] = vec
	}

	return vectors
}

// SequentialIDs returns ids formatted with pattern, e.g. "track_%06d".
func SequentialIDs(n int, pattern string) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf(pattern, i)
	}
	return ids
}

// ExactCosineTopK scores every vector against query in float64 and returns
// the k best rows, highest first. Zero-norm rows are skipped.
func ExactCosineTopK(query []float32, data [][]float32, k int) []Match {
	var qn float64
	for _, v := range query {
		qn += float64(v) * float64(v)
	}
	if qn == 0 || k <= 0 {
		return nil
	}
	qn = math.Sqrt(qn)

	matches := make([]Match, 0, len(data))
	for row, vec := range data {
		var dot, n float64
		for j := range vec {
			dot += float64(vec[j]) * float64(query[j])
			n += float64(vec[j]) * float64(vec[j])
		}
		if n == 0 {
			continue
		}
		matches = append(matches, Match{Row: row, Score: float32(dot / (math.Sqrt(n) * qn))})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// ComputeRecall returns the fraction of truth rows present in got.
func ComputeRecall(truth []Match, got []int) float64 {
	if len(truth) == 0 {
		if len(got) == 0 {
			return 1.0
		}
		return 0.0
	}

	set := make(map[int]struct{}, len(truth))
	for _, m := range truth {
		set[m.Row] = struct{}{}
	}

	hits := 0
	for _, row := range got {
		if _, ok := set[row]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(truth))
}
