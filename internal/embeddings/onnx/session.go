package onnx

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv guards the process-wide ONNX Runtime initialization.
var ortEnv struct {
	once sync.Once
	lib  string
	err  error
}

// initORT initializes the runtime once. Later calls return the first result.
func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ortEnv.lib = libPath
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// session wraps a DynamicAdvancedSession for BERT-style models.
type session struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	embedDim   int64
	typeIDs    bool
}

func newSession(modelPath string, threads int) (*session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	inputNames, typeIDs, err := validateInputs(inputs)
	if err != nil {
		return nil, err
	}

	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}
	outputName := outputs[0].Name
	dims := outputs[0].Dimensions
	if len(dims) != 3 {
		return nil, fmt.Errorf("onnx: expected 3D output tensor, got %v", dims)
	}
	if dims[2] <= 0 {
		return nil, fmt.Errorf("onnx: output hidden size is dynamic: %v", dims)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if threads <= 0 {
		threads = 4
	}
	_ = opts.SetIntraOpNumThreads(threads)
	_ = opts.SetInterOpNumThreads(1)

	s, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}
	return &session{
		session:    s,
		inputNames: inputNames,
		outputName: outputName,
		embedDim:   dims[2],
		typeIDs:    typeIDs,
	}, nil
}

// validateInputs requires input_ids and attention_mask; token_type_ids is
// optional (XLM-R and DistilBERT exports omit it).
func validateInputs(inputs []ort.InputOutputInfo) ([]string, bool, error) {
	names := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		names[in.Name] = true
	}
	for _, name := range []string{"input_ids", "attention_mask"} {
		if !names[name] {
			return nil, false, fmt.Errorf("onnx: model missing required input %q", name)
		}
	}
	if names["token_type_ids"] {
		return []string{"input_ids", "attention_mask", "token_type_ids"}, true, nil
	}
	return []string{"input_ids", "attention_mask"}, false, nil
}

// infer runs one batch and returns flat [batchSize * seqLen * embedDim].
func (s *session) infer(b tokenized) ([]float32, error) {
	shape := ort.NewShape(b.batchSize, b.seqLen)

	tIDs, err := ort.NewTensor(shape, b.inputIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create input_ids tensor: %w", err)
	}
	defer tIDs.Destroy()

	tMask, err := ort.NewTensor(shape, b.attentionMask)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create attention_mask tensor: %w", err)
	}
	defer tMask.Destroy()

	inputs := []ort.Value{tIDs, tMask}
	if s.typeIDs {
		tTypes, err := ort.NewTensor(shape, b.tokenTypeIDs)
		if err != nil {
			return nil, fmt.Errorf("onnx: failed to create token_type_ids tensor: %w", err)
		}
		defer tTypes.Destroy()
		inputs = append(inputs, tTypes)
	}

	tOut, err := ort.NewEmptyTensor[float32](ort.NewShape(b.batchSize, b.seqLen, s.embedDim))
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create output tensor: %w", err)
	}
	defer tOut.Destroy()

	if err := s.session.Run(inputs, []ort.Value{tOut}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	src := tOut.GetData()
	out := make([]float32, len(src))
	copy(out, src)
	return out, nil
}

func (s *session) close() error {
	return s.session.Destroy()
}
