package index

import "math"

// Cosine computes cosine similarity between two vectors of equal length.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrVectorLengthMismatch
	}
	var dot float64
	var na float64
	var nb float64
	for i := 0; i < len(a); i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	den := math.Sqrt(na) * math.Sqrt(nb)
	if den == 0 {
		return 0, nil
	}
	return dot / den, nil
}

// CosineAll scores query against every row of idx in one pass over the
// matrix. Zero-norm rows score 0.
func CosineAll(query []float32, idx *Index) ([]float64, error) {
	if idx.Len() == 0 {
		return nil, nil
	}
	if len(query) != idx.Dim {
		return nil, ErrVectorLengthMismatch
	}
	var qn float64
	for _, x := range query {
		qn += float64(x) * float64(x)
	}
	qn = math.Sqrt(qn)

	out := make([]float64, idx.Len())
	if qn == 0 {
		return out, nil
	}
	dim := idx.Dim
	for r := range out {
		row := idx.Vectors[r*dim : (r+1)*dim]
		var dot, rn float64
		for i, y := range row {
			dot += float64(query[i]) * float64(y)
			rn += float64(y) * float64(y)
		}
		if rn == 0 {
			continue
		}
		out[r] = dot / (qn * math.Sqrt(rn))
	}
	return out, nil
}

// NormalizeL2 returns a new vector normalized to unit L2 norm.
func NormalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	n := math.Sqrt(sum)
	if n == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	out := make([]float32, len(v))
	inv := float32(1.0 / n)
	for i := range v {
		out[i] = v[i] * inv
	}
	return out
}
