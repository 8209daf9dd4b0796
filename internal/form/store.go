package form

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Store holds committed wizard values and the suggestions staged by scans.
// Committed values are written to the snapshot file after every change;
// suggestions never are.
type Store struct {
	snap     *Snapshot
	pending  map[Key]Suggestion
	filePath string
	mu       sync.RWMutex
}

// NewStore creates a store backed by filePath. An empty path keeps the
// store in memory only.
func NewStore(filePath string) *Store {
	return &Store{
		snap:     NewSnapshot(),
		pending:  make(map[Key]Suggestion),
		filePath: filePath,
	}
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.filePath
}

// Load reads the snapshot file.
// If the file doesn't exist, the store starts empty (not an error)
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filePath == "" {
		return nil
	}

	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		s.snap = NewSnapshot()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read form file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse form file: %w", err)
	}

	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported form file version %d (expected %d)", snap.Version, SnapshotVersion)
	}

	for k := range snap.Values {
		if !k.Valid() {
			delete(snap.Values, k)
		}
	}
	if snap.Values == nil {
		snap.Values = make(map[Key]string)
	}
	if snap.Residents == nil {
		snap.Residents = []Resident{}
	}

	s.snap = &snap
	return nil
}

// Save writes the committed values to the snapshot file atomically
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.filePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal form: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create form directory: %w", err)
	}

	// Write to a temp file, then rename over the snapshot
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp form file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp form file: %w", err)
	}

	return nil
}

// mutate applies fn to a copy of the snapshot and persists it. The live
// snapshot is only replaced once the write succeeded, so a failed save
// leaves no partially-applied values behind.
func (s *Store) mutate(fn func(snap *Snapshot) error) error {
	next := s.snap.clone()
	if err := fn(next); err != nil {
		return err
	}
	next.UpdatedAt = time.Now().UTC()

	prev := s.snap
	s.snap = next
	if err := s.saveLocked(); err != nil {
		s.snap = prev
		return err
	}
	return nil
}

// Value returns the committed value of key.
func (s *Store) Value(key Key) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.snap.Values[key]
	return v, ok
}

// Values returns a copy of all committed values.
func (s *Store) Values() map[Key]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Key]string, len(s.snap.Values))
	for k, v := range s.snap.Values {
		out[k] = v
	}
	return out
}

// Set commits a manually entered value. An empty value clears the field.
func (s *Store) Set(key Key, value string) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(snap *Snapshot) error {
		if strings.TrimSpace(value) == "" {
			delete(snap.Values, key)
		} else {
			snap.Values[key] = value
		}
		return nil
	})
}

// Suggest stages values for owner without committing them. A newer
// suggestion for the same key replaces an older one whatever its owner.
func (s *Store) Suggest(owner string, values map[Key]string) error {
	for k := range values {
		if !k.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownKey, k)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range values {
		s.pending[k] = Suggestion{Key: k, Value: v, Owner: owner}
	}
	return nil
}

// Pending returns every staged suggestion in form order.
func (s *Store) Pending() []Suggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Suggestion, 0, len(s.pending))
	for _, k := range AllKeys {
		if sg, ok := s.pending[k]; ok {
			out = append(out, sg)
		}
	}
	return out
}

// Commit writes owner's suggestions, with overrides applied on top, into
// the committed values in one step and clears them from the pending set.
// Overrides may name fields that were never suggested; an empty override
// drops that field from the commit. Nothing is written when persisting
// fails.
func (s *Store) Commit(owner string, overrides map[Key]string) (map[Key]string, error) {
	return s.CommitIf(owner, overrides, nil)
}

// CommitIf is Commit guarded by current, which is evaluated under the
// store lock. When it reports false the owner's suggestions are dropped
// and ErrStale is returned. A nil current always commits.
func (s *Store) CommitIf(owner string, overrides map[Key]string, current func() bool) (map[Key]string, error) {
	for k := range overrides {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKey, k)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current != nil && !current() {
		s.dropOwnerLocked(owner)
		return nil, ErrStale
	}

	applied := make(map[Key]string)
	for k, sg := range s.pending {
		if sg.Owner == owner {
			applied[k] = sg.Value
		}
	}
	for k, v := range overrides {
		if strings.TrimSpace(v) == "" {
			delete(applied, k)
			continue
		}
		applied[k] = v
	}

	s.dropOwnerLocked(owner)

	if len(applied) == 0 {
		return applied, nil
	}

	err := s.mutate(func(snap *Snapshot) error {
		for k, v := range applied {
			snap.Values[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Discard drops owner's suggestions and reports how many were removed.
func (s *Store) Discard(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropOwnerLocked(owner)
}

func (s *Store) dropOwnerLocked(owner string) int {
	n := 0
	for k, sg := range s.pending {
		if sg.Owner == owner {
			delete(s.pending, k)
			n++
		}
	}
	return n
}

// Residents returns a copy of the residents list.
func (s *Store) Residents() []Resident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Resident(nil), s.snap.Residents...)
}

// AddResident appends a resident.
func (s *Store) AddResident(r Resident) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("resident name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(snap *Snapshot) error {
		snap.Residents = append(snap.Residents, r)
		return nil
	})
}

// RemoveResident removes the resident at index i.
func (s *Store) RemoveResident(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(snap *Snapshot) error {
		if i < 0 || i >= len(snap.Residents) {
			return fmt.Errorf("resident index %d out of range", i)
		}
		snap.Residents = append(snap.Residents[:i], snap.Residents[i+1:]...)
		return nil
	})
}

// Step returns the current wizard step.
func (s *Store) Step() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.CurrentStep
}

// SetStep records the current wizard step.
func (s *Store) SetStep(step int) error {
	if step < 1 {
		return fmt.Errorf("invalid step %d", step)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(func(snap *Snapshot) error {
		snap.CurrentStep = step
		return nil
	})
}

// Missing lists the required fields that are still empty, in form order,
// followed by ResidentsField when no resident has a name.
func (s *Store) Missing() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for _, k := range AllKeys {
		if strings.TrimSpace(s.snap.Values[k]) == "" {
			missing = append(missing, string(k))
		}
	}

	hasResident := false
	for _, r := range s.snap.Residents {
		if strings.TrimSpace(r.Name) != "" {
			hasResident = true
			break
		}
	}
	if !hasResident {
		missing = append(missing, ResidentsField)
	}
	return missing
}

// Snapshot returns a copy of the committed state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

// Reset clears all values and suggestions. The file is not touched until
// the next Save.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = NewSnapshot()
	s.pending = make(map[Key]Suggestion)
}

// LoadOrCreate loads an existing snapshot file or creates a new one if it doesn't exist
func LoadOrCreate(filePath string) (*Store, error) {
	store := NewStore(filePath)

	if err := store.Load(); err != nil {
		return nil, err
	}

	if store.snap.empty() {
		if err := store.Save(); err != nil {
			return nil, fmt.Errorf("failed to save initial form: %w", err)
		}
	}

	return store, nil
}
