// Package review is the human checkpoint between field extraction and the
// form. Extracted values are staged as editable suggestions and only
// written once an operator accepts or edits them.
package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/platinummonkey/leasescan/internal/extract"
	"github.com/platinummonkey/leasescan/internal/form"
	"github.com/platinummonkey/leasescan/internal/logger"
	"github.com/platinummonkey/leasescan/internal/ocr"
)

// ErrSuperseded is returned when a newer scan replaced the proposal while
// the operator was deciding. Nothing is written.
var ErrSuperseded = errors.New("proposal superseded by a newer scan")

// Action is the operator's verdict on a proposal.
type Action string

const (
	ActionAccept  Action = "accept"
	ActionEdit    Action = "edit"
	ActionDiscard Action = "discard"
)

// ParseAction accepts the full word or its first letter.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "accept", "y", "yes":
		return ActionAccept, nil
	case "e", "edit":
		return ActionEdit, nil
	case "d", "discard", "n", "no":
		return ActionDiscard, nil
	default:
		return "", fmt.Errorf("unknown action %q (accept, edit or discard)", s)
	}
}

// Proposal is one recognition outcome awaiting review.
type Proposal struct {
	// Owner tags the staged suggestions, unique per scan attempt
	Owner string

	Role     form.Role
	Binding  form.Binding
	RawText  string
	Fields   extract.Fields
	Metadata ocr.Metadata

	// Current reports whether the proposal still belongs to the latest
	// scan. Nil means always current.
	Current func() bool
}

func (p Proposal) current() bool {
	return p.Current == nil || p.Current()
}

// Item is one reviewable field as shown to the operator.
type Item struct {
	Kind  extract.FieldKind
	Key   form.Key
	Value string
	Found bool
}

// View is what the operator sees.
type View struct {
	Role       form.Role
	RawText    string
	Items      []Item
	Engine     string
	Confidence float64
}

// Found returns how many fields were extracted.
func (v View) Found() int {
	n := 0
	for _, it := range v.Items {
		if it.Found {
			n++
		}
	}
	return n
}

// Decision is the result of a review.
type Decision struct {
	Action Action

	// Overrides replace or add values on edit. An empty value drops the field.
	Overrides map[form.Key]string

	// Applied holds what was written to the form, set by Presenter
	Applied map[form.Key]string
}

// Operator decides on a proposal.
type Operator interface {
	Review(ctx context.Context, view View) (Decision, error)
}

// OperatorFunc adapts a function to Operator.
type OperatorFunc func(ctx context.Context, view View) (Decision, error)

// Review calls f.
func (f OperatorFunc) Review(ctx context.Context, view View) (Decision, error) {
	return f(ctx, view)
}

// Presenter stages extracted values and commits or rolls them back
// depending on the operator.
type Presenter struct {
	store    *form.Store
	operator Operator
	logger   *logger.Logger
	rawSink  io.Writer
}

// Option configures a Presenter
type Option func(*Presenter)

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(p *Presenter) {
		p.logger = log
	}
}

// WithRawTextSink copies the recognized text to w for manual recovery.
func WithRawTextSink(w io.Writer) Option {
	return func(p *Presenter) {
		p.rawSink = w
	}
}

// NewPresenter creates a presenter writing into store.
func NewPresenter(store *form.Store, operator Operator, opts ...Option) *Presenter {
	p := &Presenter{
		store:    store,
		operator: operator,
		logger:   logger.Get(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Present shows the proposal and applies the operator's decision. The form
// is either updated with the full set of confirmed values or left as it
// was.
func (p *Presenter) Present(ctx context.Context, prop Proposal) (Decision, error) {
	log := p.logger.WithFields("owner", prop.Owner, "role", string(prop.Role))

	suggested := prop.Binding.Apply(prop.Fields)
	if err := p.store.Suggest(prop.Owner, suggested); err != nil {
		return Decision{}, fmt.Errorf("failed to stage suggestions: %w", err)
	}

	p.copyRawText(prop.RawText, log)

	decision, err := p.operator.Review(ctx, p.view(prop))
	if err != nil {
		p.store.Discard(prop.Owner)
		return Decision{}, fmt.Errorf("review aborted: %w", err)
	}

	if !prop.current() {
		n := p.store.Discard(prop.Owner)
		log.WithFields("dropped", n).Info("Discarding stale proposal")
		return Decision{Action: decision.Action}, ErrSuperseded
	}

	switch decision.Action {
	case ActionDiscard:
		n := p.store.Discard(prop.Owner)
		log.WithFields("dropped", n).Info("Operator discarded extracted fields")
		return decision, nil

	case ActionAccept:
		decision.Overrides = nil
	case ActionEdit:
	default:
		p.store.Discard(prop.Owner)
		return Decision{}, fmt.Errorf("unknown review action %q", decision.Action)
	}

	applied, err := p.store.CommitIf(prop.Owner, decision.Overrides, prop.Current)
	if errors.Is(err, form.ErrStale) {
		log.Info("Proposal superseded before commit")
		return Decision{Action: decision.Action}, ErrSuperseded
	}
	if err != nil {
		p.store.Discard(prop.Owner)
		return Decision{}, fmt.Errorf("failed to apply reviewed fields: %w", err)
	}
	decision.Applied = applied

	log.WithFields("action", string(decision.Action), "applied", len(applied)).Info("Extracted fields applied")
	return decision, nil
}

func (p *Presenter) view(prop Proposal) View {
	v := View{
		Role:       prop.Role,
		RawText:    prop.RawText,
		Engine:     prop.Metadata.Engine,
		Confidence: prop.Metadata.Confidence,
	}
	for _, kind := range extract.AllKinds {
		key, ok := prop.Binding[kind]
		if !ok {
			continue
		}
		value, found := prop.Fields.Get(kind)
		v.Items = append(v.Items, Item{Kind: kind, Key: key, Value: value, Found: found})
	}
	return v
}

func (p *Presenter) copyRawText(text string, log *logger.Logger) {
	if p.rawSink == nil {
		return
	}
	if _, err := io.WriteString(p.rawSink, text+"\n"); err != nil {
		log.WithError(err).Warn("Failed to copy recognized text")
	}
}
