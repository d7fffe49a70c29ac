package onnx

// meanPool averages hidden states over non-padding positions.
//
// hidden: flat [batchSize * seqLen * dim]
// mask:   flat [batchSize * seqLen], 1 for real tokens
//
// Returns flat [batchSize * dim].
func meanPool(hidden []float32, mask []int64, batchSize, seqLen, dim int64) []float32 {
	out := make([]float32, batchSize*dim)

	for b := int64(0); b < batchSize; b++ {
		maskOff := b * seqLen
		hiddenOff := b * seqLen * dim
		outOff := b * dim

		var count float32
		for s := int64(0); s < seqLen; s++ {
			if mask[maskOff+s] != 1 {
				continue
			}
			count++
			tokOff := hiddenOff + s*dim
			for d := int64(0); d < dim; d++ {
				out[outOff+d] += hidden[tokOff+d]
			}
		}
		if count == 0 {
			continue
		}
		inv := 1 / count
		for d := int64(0); d < dim; d++ {
			out[outOff+d] *= inv
		}
	}
	return out
}
