package embedding

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"vast/internal/logging"
)

// Config describes the ONNX model and runtime used by CLIPEncoder.
type Config struct {
	// ModelPath is a CLIP vision model exported to ONNX.
	ModelPath  string
	InputName  string
	OutputName string
	// ImageSize is the square input resolution expected by the model.
	ImageSize int
}

// CLIPEncoder embeds images with a CLIP vision model.
type CLIPEncoder struct {
	cfg     Config
	logger  *slog.Logger
	runtime *Runtime

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	closed  bool
}

// NewCLIPEncoder loads the model into a session on rt. The encoder holds a
// reference on rt until Close.
func NewCLIPEncoder(rt *Runtime, cfg Config, logger *slog.Logger) (*CLIPEncoder, error) {
	if rt == nil {
		return nil, errors.New("embedding runtime is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, errors.New("embedding model path is required")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("embedding model: %w", err)
	}
	if cfg.ImageSize <= 0 {
		return nil, fmt.Errorf("embedding image size must be positive, got %d", cfg.ImageSize)
	}

	if err := rt.acquire(); err != nil {
		return nil, err
	}
	session, err := newSession(cfg)
	if err != nil {
		rt.release()
		return nil, err
	}

	logger = logging.NewComponentLogger(logger, "clip")
	logger.Info("clip model loaded",
		logging.String(logging.FieldEventType, "embedding_model_loaded"),
		logging.String("model", cfg.ModelPath),
		logging.String("input", cfg.InputName),
		logging.String("output", cfg.OutputName),
		logging.Int("image_size", cfg.ImageSize),
	)

	return &CLIPEncoder{cfg: cfg, logger: logger, runtime: rt, session: session}, nil
}

func newSession(cfg Config) (*ort.DynamicAdvancedSession, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("set graph optimization level: %w", err)
	}
	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("create clip session: %w", err)
	}
	return session, nil
}

// Embed returns the image embedding of img.
func (e *CLIPEncoder) Embed(img image.Image) ([]float32, error) {
	if img == nil {
		return nil, errors.New("embed: nil image")
	}
	size := int64(e.cfg.ImageSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, size, size), Preprocess(img, e.cfg.ImageSize))
	if err != nil {
		return nil, fmt.Errorf("create pixel tensor: %w", err)
	}
	defer input.Destroy()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("embed: encoder closed")
	}

	outputs := make([]ort.Value, 1)
	if err := e.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("clip inference: %w", err)
	}
	defer outputs[0].Destroy()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("clip inference: unexpected output type %T", outputs[0])
	}
	data := tensor.GetData()
	if len(data) == 0 {
		return nil, errors.New("clip inference: empty embedding")
	}
	vec := make([]float32, len(data))
	copy(vec, data)
	return vec, nil
}

// Close releases the session and the encoder's reference on its Runtime.
// The environment itself stays up for other encoders.
func (e *CLIPEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	defer e.runtime.release()
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}
