package ocr

import (
	"context"
	"errors"
)

var (
	// ErrEngineUnavailable means the runtime or its language model could
	// not be loaded, or the engine is not ready. Manual entry stays possible.
	ErrEngineUnavailable = errors.New("ocr engine unavailable")

	// ErrEngineNotReady is wrapped together with ErrEngineUnavailable while
	// the engine is still loading or was never started.
	ErrEngineNotReady = errors.New("ocr engine not ready")

	// ErrRecognitionFailed means a recognize call errored or timed out.
	// It is never retried automatically.
	ErrRecognitionFailed = errors.New("text recognition failed")

	// ErrServiceClosed is returned once the service has been released.
	ErrServiceClosed = errors.New("ocr service closed")
)

// Runtime acquires an engine and loads its language model. This is slow
// and may fetch model assets over the network.
type Runtime interface {
	// Name identifies the runtime in logs and diagnostics
	Name() string

	// Initialize loads the runtime for the language hint
	Initialize(ctx context.Context, lang Language) (Engine, error)
}

// Engine is a loaded recognizer. Callers must not issue concurrent
// Recognize calls; Service enforces this.
type Engine interface {
	// Recognize runs OCR over one image
	Recognize(ctx context.Context, in Input) (*Result, error)

	// Close releases the underlying runtime
	Close() error
}
