package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig locates the model files. ProjectionPath is optional.
type ONNXConfig struct {
	ModelPath      string
	VocabPath      string
	ProjectionPath string
	LibraryPath    string
	Threads        int
	MaxSeqLen      int
}

// The ONNX Runtime environment is process-wide and can only be set up once.
var runtimeEnv struct {
	once sync.Once
	err  error
}

func initRuntime(libPath string) error {
	runtimeEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		runtimeEnv.err = ort.InitializeEnvironment()
	})
	return runtimeEnv.err
}

// ONNXEncoder runs a BERT-style sentence model: WordPiece tokenization,
// inference, masked mean pooling, optional dense projection and L2
// normalisation.
type ONNXEncoder struct {
	session   *ort.DynamicAdvancedSession
	typeIDs   bool
	output    string
	hiddenDim int64
	tok       *tokenizer
	proj      *projection
	name      string
}

// NewONNXEncoder loads the model. It is expensive and meant to run once per
// process, usually through Lazy.
func NewONNXEncoder(cfg ONNXConfig) (*ONNXEncoder, error) {
	lib := cfg.LibraryPath
	if lib == "" {
		lib = filepath.Join(filepath.Dir(cfg.ModelPath), "libonnxruntime.so")
	}
	if err := initRuntime(lib); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	v, err := loadVocab(cfg.VocabPath)
	if err != nil {
		return nil, err
	}

	var proj *projection
	if cfg.ProjectionPath != "" {
		if proj, err = loadProjection(cfg.ProjectionPath); err != nil {
			return nil, err
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model %s: %w", cfg.ModelPath, err)
	}
	inputNames, typeIDs, err := modelInputs(inputs)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 || len(outputs[0].Dimensions) != 3 || outputs[0].Dimensions[2] <= 0 {
		return nil, fmt.Errorf("model %s: want one [batch, seq, hidden] output", cfg.ModelPath)
	}
	hidden := outputs[0].Dimensions[2]
	if proj != nil && int64(proj.in) != hidden {
		return nil, fmt.Errorf("projection input dim %d does not match model hidden dim %d", proj.in, hidden)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	threads := cfg.Threads
	if threads <= 0 {
		threads = 1
	}
	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &ONNXEncoder{
		session:   session,
		typeIDs:   typeIDs,
		output:    outputs[0].Name,
		hiddenDim: hidden,
		tok:       newTokenizer(v, cfg.MaxSeqLen),
		proj:      proj,
		name:      filepath.Base(cfg.ModelPath),
	}, nil
}

// modelInputs orders the inputs as input_ids, attention_mask and, when the
// model declares it, token_type_ids.
func modelInputs(inputs []ort.InputOutputInfo) ([]string, bool, error) {
	declared := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		declared[in.Name] = true
	}
	names := []string{"input_ids", "attention_mask"}
	for _, n := range names {
		if !declared[n] {
			return nil, false, fmt.Errorf("model has no %q input", n)
		}
	}
	if declared["token_type_ids"] {
		return append(names, "token_type_ids"), true, nil
	}
	return names, false, nil
}

func (e *ONNXEncoder) Encode(ctx context.Context, doc string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask := e.tok.encode(doc)
	hidden, err := e.infer(ids, mask)
	if err != nil {
		return nil, err
	}

	vec := meanPool(hidden, mask, int(e.hiddenDim))
	if e.proj != nil {
		vec = e.proj.apply(vec)
	}
	return l2Normalize(vec), nil
}

func (e *ONNXEncoder) infer(ids, mask []int64) ([]float32, error) {
	seqLen := int64(len(ids))
	shape := ort.NewShape(1, seqLen)

	tIDs, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer tIDs.Destroy()

	tMask, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer tMask.Destroy()

	inputs := []ort.Value{tIDs, tMask}
	if e.typeIDs {
		tTypes, err := ort.NewTensor(shape, make([]int64, seqLen))
		if err != nil {
			return nil, fmt.Errorf("token_type_ids tensor: %w", err)
		}
		defer tTypes.Destroy()
		inputs = append(inputs, tTypes)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, seqLen, e.hiddenDim))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer out.Destroy()

	if err := e.session.Run(inputs, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	res := make([]float32, len(out.GetData()))
	copy(res, out.GetData())
	return res, nil
}

// Dim is the length of the vectors Encode returns.
func (e *ONNXEncoder) Dim() int {
	if e.proj != nil {
		return e.proj.out
	}
	return int(e.hiddenDim)
}

func (e *ONNXEncoder) Model() string { return e.name }

func (e *ONNXEncoder) Close() error {
	return e.session.Destroy()
}
