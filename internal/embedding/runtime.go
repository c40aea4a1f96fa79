package embedding

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrRuntimeClosed is returned when an encoder is created on a closed Runtime.
var ErrRuntimeClosed = errors.New("onnx runtime closed")

// ErrRuntimeInUse is returned by Close while encoders still hold the runtime.
var ErrRuntimeInUse = errors.New("onnx runtime still in use")

// Runtime owns the ONNX Runtime environment, which is process-wide in the
// native library. Create one per process, share it between encoders, and
// Close it after every encoder is closed. The environment is initialized on
// the first encoder and destroyed only by Close.
type Runtime struct {
	mu     sync.Mutex
	refs   int
	owned  bool
	closed bool

	isInitialized func() bool
	initialize    func() error
	destroy       func() error
}

// NewRuntime prepares a runtime that loads the shared library from
// libraryPath, or from the platform default when empty.
func NewRuntime(libraryPath string) *Runtime {
	return &Runtime{
		isInitialized: ort.IsInitialized,
		initialize: func() error {
			if libraryPath != "" {
				ort.SetSharedLibraryPath(libraryPath)
			}
			return ort.InitializeEnvironment()
		},
		destroy: ort.DestroyEnvironment,
	}
}

// acquire takes a reference, initializing the environment if needed.
func (r *Runtime) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRuntimeClosed
	}
	if !r.owned && !r.isInitialized() {
		if err := r.initialize(); err != nil {
			return fmt.Errorf("initialize onnx runtime: %w", err)
		}
		r.owned = true
	}
	r.refs++
	return nil
}

func (r *Runtime) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs > 0 {
		r.refs--
	}
}

// Close destroys the environment if this runtime created it. It fails with
// ErrRuntimeInUse while any encoder is still open.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if r.refs > 0 {
		return fmt.Errorf("%w: %d encoder(s) open", ErrRuntimeInUse, r.refs)
	}
	r.closed = true
	if !r.owned {
		return nil
	}
	r.owned = false
	return r.destroy()
}
