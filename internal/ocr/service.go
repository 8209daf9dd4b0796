package ocr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/leasescan/internal/logger"
)

const (
	// DefaultInitTimeout bounds runtime initialization, model download included
	DefaultInitTimeout = 2 * time.Minute

	// DefaultRecognizeTimeout bounds a single recognition call
	DefaultRecognizeTimeout = 90 * time.Second
)

// State is the engine readiness state.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Service owns the process-wide engine. Initialization runs in the
// background; Recognize checks readiness synchronously and admits one
// recognition at a time.
type Service struct {
	runtime          Runtime
	language         Language
	logger           *logger.Logger
	initTimeout      time.Duration
	recognizeTimeout time.Duration

	mu      sync.Mutex
	state   State
	engine  Engine
	initErr error
	loaded  chan struct{}
	cancel  context.CancelFunc
	closed  bool

	// slot is held from the start of an engine call until it returns,
	// even when the caller stopped waiting.
	slot chan struct{}
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithServiceLogger sets the logger
func WithServiceLogger(log *logger.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = log
	}
}

// WithInitTimeout bounds initialization. Zero disables the bound.
func WithInitTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.initTimeout = d
	}
}

// WithRecognizeTimeout bounds each recognition call, waiting for the slot
// included. Zero disables the bound.
func WithRecognizeTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.recognizeTimeout = d
	}
}

// NewService creates a service for runtime. Nothing is loaded until Start.
func NewService(runtime Runtime, lang Language, opts ...ServiceOption) *Service {
	s := &Service{
		runtime:          runtime,
		language:         lang,
		logger:           logger.Get(),
		initTimeout:      DefaultInitTimeout,
		recognizeTimeout: DefaultRecognizeTimeout,
		state:            StateUninitialized,
		slot:             make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithEngine(runtime.Name(), string(lang))
	return s
}

// Language returns the language hint the engine is loaded with.
func (s *Service) Language() Language {
	return s.language
}

// State returns the current readiness state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the initialization error of a failed service.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initErr
}

// Start begins loading the engine in the background and returns at once.
// It is a no-op while loading or ready; a failed service starts over.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceClosed
	}
	if s.state == StateLoading || s.state == StateReady {
		return nil
	}

	ictx, cancel := withOptionalTimeout(ctx, s.initTimeout)

	s.state = StateLoading
	s.initErr = nil
	s.loaded = make(chan struct{})
	s.cancel = cancel

	s.logger.Info("Loading OCR engine")
	go s.load(ictx, cancel, s.loaded)
	return nil
}

func (s *Service) load(ctx context.Context, cancel context.CancelFunc, loaded chan struct{}) {
	defer close(loaded)
	defer cancel()

	start := time.Now()
	engine, err := s.initialize(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		if engine != nil {
			_ = engine.Close()
		}
		s.state = StateFailed
		s.initErr = fmt.Errorf("%w: %w", ErrEngineUnavailable, ErrServiceClosed)
		return
	}

	if err != nil {
		s.state = StateFailed
		s.initErr = fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
		s.logger.WithError(err).Warn("OCR engine failed to load, manual entry only")
		return
	}

	s.engine = engine
	s.state = StateReady
	s.logger.WithFields("duration", time.Since(start)).Info("OCR engine ready")
}

// initialize converts a runtime panic into an error.
func (s *Service) initialize(ctx context.Context) (engine Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			engine, err = nil, fmt.Errorf("runtime panic: %v", r)
		}
	}()
	return s.runtime.Initialize(ctx, s.language)
}

// Wait blocks until initialization finished and returns its error.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	state, loaded := s.state, s.loaded
	s.mu.Unlock()

	if state == StateUninitialized {
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, ErrEngineNotReady)
	}
	if loaded == nil {
		// closed before it was ever started
		return s.Err()
	}

	select {
	case <-loaded:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, ctx.Err())
	}
	return s.Err()
}

type recognition struct {
	result *Result
	err    error
}

// Recognize runs the engine over in. It fails fast with
// ErrEngineUnavailable when the engine is not ready, and returns
// ErrRecognitionFailed when the engine errors or the timeout passes.
func (s *Service) Recognize(ctx context.Context, in Input) (*Result, error) {
	s.mu.Lock()
	state, engine, initErr := s.state, s.engine, s.initErr
	s.mu.Unlock()

	switch state {
	case StateReady:
	case StateFailed:
		return nil, initErr
	default:
		return nil, fmt.Errorf("%w: %w (engine is %s)", ErrEngineUnavailable, ErrEngineNotReady, state)
	}

	rctx, cancel := withOptionalTimeout(ctx, s.recognizeTimeout)
	defer cancel()

	select {
	case s.slot <- struct{}{}:
	case <-rctx.Done():
		return nil, fmt.Errorf("%w: waiting for engine: %w", ErrRecognitionFailed, rctx.Err())
	}

	done := make(chan recognition, 1)
	go func() {
		defer func() { <-s.slot }()
		defer func() {
			if r := recover(); r != nil {
				done <- recognition{err: fmt.Errorf("engine panic: %v", r)}
			}
		}()
		res, err := engine.Recognize(rctx, in)
		done <- recognition{result: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			s.logger.WithError(r.err).Warn("Recognition failed")
			return nil, fmt.Errorf("%w: %w", ErrRecognitionFailed, r.err)
		}
		if r.result == nil {
			return nil, fmt.Errorf("%w: engine returned no result", ErrRecognitionFailed)
		}
		return r.result, nil
	case <-rctx.Done():
		s.logger.WithFields("timeout", s.recognizeTimeout).Warn("Recognition abandoned, engine call still running")
		return nil, fmt.Errorf("%w: %w", ErrRecognitionFailed, rctx.Err())
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// Close cancels a pending load, waits for an in-flight recognition and
// releases the engine. It is safe to call more than once.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	engine := s.engine
	s.engine = nil
	s.state = StateFailed
	s.initErr = fmt.Errorf("%w: %w", ErrEngineUnavailable, ErrServiceClosed)
	s.mu.Unlock()

	if engine == nil {
		return nil
	}

	s.slot <- struct{}{}
	defer func() { <-s.slot }()

	if err := engine.Close(); err != nil {
		return fmt.Errorf("failed to release OCR engine: %w", err)
	}
	s.logger.Debug("OCR engine released")
	return nil
}
