package safetensors

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	tensors := map[string]Tensor{
		"embeddings": {Shape: []int{2, 3}, Data: []float32{1, 2, 3, 4, 5, 6}},
		"bias":       {Shape: []int{3}, Data: []float32{0.5, 0, -1}},
	}
	if err := Encode(&buf, tensors, map[string]string{"model": "m"}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	headerLen := binary.LittleEndian.Uint64(buf.Bytes()[:8])
	if headerLen%8 != 0 {
		t.Fatalf("header not padded: %d", headerLen)
	}

	f, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Metadata["model"] != "m" {
		t.Fatalf("metadata mismatch: %v", f.Metadata)
	}
	emb, ok := f.Tensors["embeddings"]
	if !ok {
		t.Fatalf("embeddings tensor missing")
	}
	if len(emb.Shape) != 2 || emb.Shape[0] != 2 || emb.Shape[1] != 3 {
		t.Fatalf("shape mismatch: %v", emb.Shape)
	}
	if emb.Data[5] != 6 {
		t.Fatalf("data mismatch: %v", emb.Data)
	}
	if f.Tensors["bias"].Data[2] != -1 {
		t.Fatalf("bias mismatch: %v", f.Tensors["bias"].Data)
	}
}

func TestDecode_Truncated(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short input")
	}

	var buf bytes.Buffer
	if err := Encode(&buf, map[string]Tensor{"x": {Shape: []int{4}, Data: []float32{1, 2, 3, 4}}}, nil); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()[:buf.Len()-4]
	if _, err := Decode(data); err == nil {
		t.Fatalf("expected error for truncated data")
	}
}

func TestDecode_CorruptHeader(t *testing.T) {
	huge := make([]byte, 16)
	binary.LittleEndian.PutUint64(huge, ^uint64(0))
	if _, err := Decode(huge); err == nil {
		t.Fatalf("expected error for oversized header length")
	}

	cases := map[string]string{
		"negative dim":     `{"x":{"dtype":"F32","shape":[-1],"data_offsets":[4,0]}}`,
		"reversed offsets": `{"x":{"dtype":"F32","shape":[1],"data_offsets":[4,0]}}`,
		"negative offset":  `{"x":{"dtype":"F32","shape":[1],"data_offsets":[-4,0]}}`,
		"shape too large":  `{"x":{"dtype":"F32","shape":[1073741824,1073741824],"data_offsets":[0,4]}}`,
	}
	for name, header := range cases {
		blob := make([]byte, 8, 8+len(header)+4)
		binary.LittleEndian.PutUint64(blob, uint64(len(header)))
		blob = append(blob, header...)
		blob = append(blob, 0, 0, 0, 0)
		if _, err := Decode(blob); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEncode_ShapeMismatch(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, map[string]Tensor{"x": {Shape: []int{2, 2}, Data: []float32{1}}}, nil)
	if err == nil {
		t.Fatalf("expected shape mismatch error")
	}
}
