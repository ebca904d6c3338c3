// Package acl holds the callsign access list shared by the reflectors.
//
// The list is a YAML sequence of entries:
//
//   - allowed: true
//     callsign: W1ABC
//     rid: 3112345
//
// Lookups return the first matching entry. A station without an entry is
// not allowed.
package acl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dbehnke/reflector-nexus/pkg/logger"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no entry exists for a callsign
var ErrNotFound = errors.New("acl entry not found")

// Entry is a single access list line
type Entry struct {
	Allowed  bool   `yaml:"allowed" json:"allowed"`
	Callsign string `yaml:"callsign" json:"callsign"`
	RID      uint32 `yaml:"rid,omitempty" json:"rid,omitempty"`
}

// Store is a concurrency safe, file backed access list
type Store struct {
	mu      sync.RWMutex
	path    string
	entries []Entry
	log     *logger.Logger
}

// NewStore creates a store holding entries; path may be empty for an
// in-memory list, in which case Persist is a no-op.
func NewStore(path string, entries []Entry, log *logger.Logger) *Store {
	if log == nil {
		log = logger.New(logger.Config{Level: "info"})
	}
	return &Store{
		path:    path,
		entries: append([]Entry(nil), entries...),
		log:     log.WithComponent("acl"),
	}
}

// Load reads the access list at path. A missing file yields an empty list.
func Load(path string, log *logger.Logger) (*Store, error) {
	s := NewStore(path, nil, log)
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Warn("ACL file not found, starting with an empty list", logger.String("path", path))
			return s, nil
		}
		return nil, fmt.Errorf("failed to read acl file: %w", err)
	}

	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse acl file %s: %w", path, err)
	}
	s.entries = entries

	s.log.Info("ACL loaded", logger.String("path", path), logger.Int("entries", len(entries)))
	return s, nil
}

// Allowed reports whether callsign has an allowing entry. Callsigns compare
// case-insensitively.
func (s *Store) Allowed(callsign string) bool {
	e, ok := s.Lookup(callsign)
	return ok && e.Allowed
}

// AllowedID reports whether the numeric radio id has an allowing entry
func (s *Store) AllowedID(rid uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.RID == rid {
			return e.Allowed
		}
	}
	return false
}

// Lookup returns the first entry for callsign
func (s *Store) Lookup(callsign string) (Entry, bool) {
	callsign = strings.TrimSpace(callsign)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if strings.EqualFold(e.Callsign, callsign) {
			return e, true
		}
	}
	return Entry{}, false
}

// AddOrUpdate replaces the first entry with the same callsign, or appends
// entry when none exists.
func (s *Store) AddOrUpdate(entry Entry) {
	entry.Callsign = strings.TrimSpace(entry.Callsign)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if strings.EqualFold(s.entries[i].Callsign, entry.Callsign) {
			if entry.RID == 0 {
				entry.RID = s.entries[i].RID
			}
			s.entries[i] = entry
			return
		}
	}
	s.entries = append(s.entries, entry)
}

// SetAllowed flips the allowed flag of an existing entry
func (s *Store) SetAllowed(callsign string, allowed bool) error {
	callsign = strings.TrimSpace(callsign)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if strings.EqualFold(s.entries[i].Callsign, callsign) {
			s.entries[i].Allowed = allowed
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, callsign)
}

// Entries returns a copy of the list
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

// Persist writes the list back to its file. The file is replaced atomically.
func (s *Store) Persist() error {
	if s.path == "" {
		return nil
	}

	data, err := yaml.Marshal(s.Entries())
	if err != nil {
		return fmt.Errorf("failed to encode acl: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create acl directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".acl-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp acl file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write acl: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close acl: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace acl file: %w", err)
	}

	s.log.Debug("ACL saved", logger.String("path", s.path))
	return nil
}
