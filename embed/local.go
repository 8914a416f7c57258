package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalModel is the model name reported by the local embedder.
const LocalModel = "local-hash-v1"

// Local is a deterministic feature-hashing embedder: lowercased word
// unigrams and bigrams are hashed into signed buckets and the vector is
// L2-normalized. Texts sharing vocabulary land close together, which is
// enough for project-scoped retrieval without a model server.
type Local struct {
	dim int
}

// NewLocal creates a local embedder of dimension dim (default 256).
func NewLocal(dim int) *Local {
	if dim <= 0 {
		dim = 256
	}
	return &Local{dim: dim}
}

func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	return l.vector(text), nil
}

func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = l.vector(t)
	}
	return out, nil
}

func (l *Local) Dimension() int { return l.dim }
func (l *Local) Model() string  { return LocalModel }

func (l *Local) vector(text string) []float32 {
	vec := make([]float32, l.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		l.add(vec, w, 1)
		if i > 0 {
			l.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (l *Local) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := sum % uint64(l.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}
