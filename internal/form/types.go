package form

import (
	"errors"
	"time"
)

// SnapshotVersion is the current version of the snapshot file format
const SnapshotVersion = 1

// ErrUnknownKey is returned for names that are not wizard fields.
var ErrUnknownKey = errors.New("unknown form field")

// ErrStale is returned by CommitIf when the suggestions no longer belong
// to the latest scan.
var ErrStale = errors.New("suggestions are stale")

// Snapshot is the persisted wizard state. Only committed values are stored.
type Snapshot struct {
	// Version is the snapshot file format version
	Version int `json:"version"`

	// Values holds committed field values
	Values map[Key]string `json:"values"`

	// Residents lists the people who will live in the apartment
	Residents []Resident `json:"residents"`

	// CurrentStep is the wizard step the operator was on
	CurrentStep int `json:"current_step"`

	// UpdatedAt is when a value was last committed
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Resident is one entry of the residents list.
type Resident struct {
	Name      string `json:"name"`
	Birthdate string `json:"birthdate,omitempty"`
}

// Suggestion is a value staged by a scan but not yet confirmed.
type Suggestion struct {
	Key   Key
	Value string
	// Owner identifies the scan attempt that staged the value.
	Owner string
}

// NewSnapshot creates an empty snapshot on the first wizard step.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version:     SnapshotVersion,
		Values:      make(map[Key]string),
		Residents:   []Resident{},
		CurrentStep: 1,
	}
}

func (s *Snapshot) clone() *Snapshot {
	out := &Snapshot{
		Version:     s.Version,
		Values:      make(map[Key]string, len(s.Values)),
		Residents:   append([]Resident(nil), s.Residents...),
		CurrentStep: s.CurrentStep,
		UpdatedAt:   s.UpdatedAt,
	}
	for k, v := range s.Values {
		out.Values[k] = v
	}
	return out
}

// empty reports whether nothing has been entered yet.
func (s *Snapshot) empty() bool {
	return len(s.Values) == 0 && len(s.Residents) == 0 && s.UpdatedAt.IsZero()
}
