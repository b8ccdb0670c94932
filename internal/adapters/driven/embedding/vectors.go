// Package embedding holds the pieces shared by the remote embedders in its
// subpackages.
package embedding

import (
	"fmt"

	"github.com/custodia-labs/cityseed/internal/core/domain"
)

// Vectors narrows provider output to float32 and checks it against the
// request: one vector per input, each of the configured size. A size of 0
// skips the size check.
func Vectors(op string, raw [][]float64, inputs, size int) ([][]float32, error) {
	if len(raw) != inputs {
		return nil, domain.NewPermanentError(op, fmt.Errorf("got %d vectors for %d inputs", len(raw), inputs))
	}
	out := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) == 0 {
			return nil, domain.NewPermanentError(op, fmt.Errorf("empty vector for input %d", i))
		}
		if size > 0 && len(v) != size {
			return nil, domain.NewPermanentError(op, fmt.Errorf("vector %d has %d dimensions, index expects %d", i, len(v), size))
		}
		vec := make([]float32, len(v))
		for j, x := range v {
			vec[j] = float32(x)
		}
		out[i] = vec
	}
	return out, nil
}

// Chunks splits texts into consecutive slices of at most n entries.
func Chunks(texts []string, n int) [][]string {
	if n <= 0 {
		n = len(texts)
	}
	var out [][]string
	for start := 0; start < len(texts); start += n {
		out = append(out, texts[start:min(start+n, len(texts))])
	}
	return out
}
