package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/leasescan/internal/extract"
	"github.com/platinummonkey/leasescan/internal/logger"
	"github.com/platinummonkey/leasescan/internal/ocr"
	"github.com/platinummonkey/leasescan/internal/preprocess"
	"github.com/platinummonkey/leasescan/internal/review"
)

// ErrEmptyImage is reported for uploads without pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Recognizer runs OCR. *ocr.Service satisfies it.
type Recognizer interface {
	Recognize(ctx context.Context, in ocr.Input) (*ocr.Result, error)
}

// Presenter reviews extracted fields. *review.Presenter satisfies it.
type Presenter interface {
	Present(ctx context.Context, prop review.Proposal) (review.Decision, error)
}

// Status is how a scan attempt ended.
type Status string

const (
	// StatusApplied means the operator confirmed values into the form
	StatusApplied Status = "applied"

	// StatusDiscarded means the operator rejected the extracted values
	StatusDiscarded Status = "discarded"

	// StatusStale means a newer attempt superseded this one
	StatusStale Status = "stale"

	// StatusManualEntry means recognition or review failed and the
	// operator continues by hand
	StatusManualEntry Status = "manual-entry"
)

// Outcome describes one finished attempt. The form was either updated
// with Decision.Applied or left untouched.
type Outcome struct {
	Seq      uint64
	Status   Status
	Result   *ocr.Result
	Fields   extract.Fields
	Decision review.Decision
	Err      error
	Duration time.Duration
}

// Pipeline wires the stages together.
type Pipeline struct {
	preprocessor *preprocess.Preprocessor
	recognizer   Recognizer
	presenter    Presenter
	binarize     bool
	logger       *logger.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithPreprocessor sets the preprocessor used before recognition.
func WithPreprocessor(p *preprocess.Preprocessor) Option {
	return func(pl *Pipeline) {
		pl.preprocessor = p
	}
}

// WithPreprocessing turns binarization on or off.
func WithPreprocessing(enabled bool) Option {
	return func(pl *Pipeline) {
		pl.binarize = enabled
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(pl *Pipeline) {
		pl.logger = log
	}
}

// NewPipeline creates a pipeline. Binarization is on by default.
func NewPipeline(recognizer Recognizer, presenter Presenter, opts ...Option) *Pipeline {
	pl := &Pipeline{
		recognizer: recognizer,
		presenter:  presenter,
		binarize:   true,
		logger:     logger.Get(),
	}
	for _, opt := range opts {
		opt(pl)
	}
	if pl.preprocessor == nil {
		pl.preprocessor = preprocess.New(preprocess.WithLogger(pl.logger))
	}
	return pl
}

// Process runs one attempt for sess. It never returns an error: failures
// are reported in the Outcome so the caller can fall back to manual entry.
func (p *Pipeline) Process(ctx context.Context, sess *Session, raw preprocess.RawImage) *Outcome {
	start := time.Now()
	seq := sess.Next()
	log := p.logger.WithSessionID(sess.ID()).WithRole(string(sess.Role())).WithAttempt(seq)

	out := p.process(ctx, sess, seq, raw, log)
	out.Seq = seq
	out.Duration = time.Since(start)

	entry := log.WithFields("status", string(out.Status), "duration", out.Duration)
	if out.Err != nil {
		entry = entry.WithError(out.Err)
	}
	entry.Info("Scan finished")
	return out
}

func (p *Pipeline) process(ctx context.Context, sess *Session, seq uint64, raw preprocess.RawImage, log *logger.Logger) *Outcome {
	if raw.Empty() {
		return &Outcome{Status: StatusManualEntry, Err: ErrEmptyImage}
	}

	img := preprocess.Passthrough(raw)
	if p.binarize {
		img = p.preprocessor.Binarize(raw)
	}

	data, err := img.PNG()
	if err != nil {
		return &Outcome{Status: StatusManualEntry, Err: fmt.Errorf("failed to prepare image: %w", err)}
	}

	log.WithFields("width", img.Width, "height", img.Height, "binarized", img.Binarized).Debug("Recognizing")
	res, err := p.recognizer.Recognize(ctx, ocr.Input{
		Image:        data,
		Width:        img.Width,
		Height:       img.Height,
		Preprocessed: img.Binarized,
	})

	if !sess.IsLatest(seq) {
		return &Outcome{Status: StatusStale, Result: res}
	}
	if err != nil {
		return &Outcome{Status: StatusManualEntry, Err: err}
	}

	fields := extract.Extract(res.Text)
	log.WithFields("found", fields.Len(), "confidence", res.Metadata.Confidence).Debug("Fields extracted")

	decision, err := p.presenter.Present(ctx, review.Proposal{
		Owner:    sess.owner(seq),
		Role:     sess.Role(),
		Binding:  sess.Binding(),
		RawText:  res.Text,
		Fields:   fields,
		Metadata: res.Metadata,
		Current:  func() bool { return sess.IsLatest(seq) },
	})

	out := &Outcome{Result: res, Fields: fields, Decision: decision}
	switch {
	case errors.Is(err, review.ErrSuperseded):
		out.Status = StatusStale
	case err != nil:
		out.Status = StatusManualEntry
		out.Err = err
	case decision.Action == review.ActionDiscard:
		out.Status = StatusDiscarded
	default:
		out.Status = StatusApplied
	}
	return out
}
