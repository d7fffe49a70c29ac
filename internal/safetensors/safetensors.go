// Package safetensors reads and writes F32 tensors in the safetensors layout:
// an 8-byte little-endian header length, a JSON header, then raw data.
package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

const metadataKey = "__metadata__"

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	Shape []int
	Data  []float32
}

// File is the decoded content of a safetensors file.
type File struct {
	Metadata map[string]string
	Tensors  map[string]Tensor
}

type tensorInfo struct {
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// ReadFile decodes the safetensors file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: %w", err)
	}
	return Decode(data)
}

// Decode parses a safetensors blob. Only F32 tensors are supported.
func Decode(data []byte) (*File, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("safetensors: file too small: %d bytes", len(data))
	}
	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return nil, fmt.Errorf("safetensors: header length %d exceeds file size", headerLen)
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &header); err != nil {
		return nil, fmt.Errorf("safetensors: failed to parse header: %w", err)
	}

	out := &File{Metadata: map[string]string{}, Tensors: map[string]Tensor{}}
	base := int(8 + headerLen)
	for name, raw := range header {
		if name == metadataKey {
			if err := json.Unmarshal(raw, &out.Metadata); err != nil {
				return nil, fmt.Errorf("safetensors: bad metadata: %w", err)
			}
			continue
		}
		var info tensorInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, fmt.Errorf("safetensors: bad tensor %q: %w", name, err)
		}
		if info.Dtype != "F32" {
			return nil, fmt.Errorf("safetensors: tensor %q: expected dtype F32, got %s", name, info.Dtype)
		}
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start || end > len(data)-base {
			return nil, fmt.Errorf("safetensors: tensor %q: data range [%d:%d] exceeds file size %d", name, start, end, len(data))
		}
		n := 1
		for _, d := range info.Shape {
			if d < 0 {
				return nil, fmt.Errorf("safetensors: tensor %q: negative dimension in shape %v", name, info.Shape)
			}
			if d > 0 && n > (end-start)/d {
				return nil, fmt.Errorf("safetensors: tensor %q: shape %v exceeds data size %d", name, info.Shape, end-start)
			}
			n *= d
		}
		if end-start != n*4 {
			return nil, fmt.Errorf("safetensors: tensor %q: data size %d doesn't match shape %v", name, end-start, info.Shape)
		}
		start += base
		vals := make([]float32, n)
		for i := range vals {
			vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[start+i*4:]))
		}
		out.Tensors[name] = Tensor{Shape: info.Shape, Data: vals}
	}
	return out, nil
}

// Encode writes tensors and optional metadata to w. Tensors are laid out in
// name order so the output is deterministic.
func Encode(w io.Writer, tensors map[string]Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	header := map[string]any{}
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	offset := 0
	for _, name := range names {
		t := tensors[name]
		n := 1
		for _, d := range t.Shape {
			n *= d
		}
		if n != len(t.Data) {
			return fmt.Errorf("safetensors: tensor %q: shape %v does not match %d values", name, t.Shape, len(t.Data))
		}
		header[name] = tensorInfo{Dtype: "F32", Shape: t.Shape, DataOffsets: [2]int{offset, offset + n*4}}
		offset += n * 4
	}

	hb, err := json.Marshal(header)
	if err != nil {
		return err
	}
	// pad the header to 8 bytes with spaces
	if pad := len(hb) % 8; pad != 0 {
		hb = append(hb, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hb)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(hb); err != nil {
		return err
	}
	for _, name := range names {
		if err := binary.Write(w, binary.LittleEndian, tensors[name].Data); err != nil {
			return err
		}
	}
	return nil
}
