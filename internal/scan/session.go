// Package scan runs the passport pipeline for one wizard scan step:
// preprocess, recognize, extract and review.
package scan

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/platinummonkey/leasescan/internal/form"
)

// Session is one operator's scan step. The role is fixed for its
// lifetime; each recognition attempt draws a new sequence number and only
// the latest one may reach the form.
type Session struct {
	id      string
	role    form.Role
	binding form.Binding
	seq     atomic.Uint64
}

// NewSession starts a session for role.
func NewSession(role form.Role) (*Session, error) {
	binding, err := form.BindingFor(role)
	if err != nil {
		return nil, err
	}
	return &Session{
		id:      uuid.NewString(),
		role:    role,
		binding: binding,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Role returns the identity role the session fills.
func (s *Session) Role() form.Role {
	return s.role
}

// Binding returns the field binding for the session's role.
func (s *Session) Binding() form.Binding {
	return s.binding
}

// Next issues the sequence number for a new attempt.
func (s *Session) Next() uint64 {
	return s.seq.Add(1)
}

// Latest returns the most recently issued sequence number.
func (s *Session) Latest() uint64 {
	return s.seq.Load()
}

// IsLatest reports whether seq is still the newest attempt.
func (s *Session) IsLatest(seq uint64) bool {
	return s.seq.Load() == seq
}

// Invalidate makes every outstanding attempt stale, as a retake does.
func (s *Session) Invalidate() {
	s.seq.Add(1)
}

func (s *Session) owner(seq uint64) string {
	return fmt.Sprintf("%s#%d", s.id, seq)
}
