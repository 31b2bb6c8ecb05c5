// Package profiles manages the persisted model-profile collection: the
// user's named model nicknames, which one is current, and the on-disk
// JSON document backing them.
package profiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/marcus/pilot/internal/llmerr"
	"github.com/marcus/pilot/internal/logging"
)

// Profile is one user-visible model record.
type Profile struct {
	Nickname    string    `json:"nickname"`
	DisplayName string    `json:"display_name"`
	ModelID     string    `json:"model_id"`
	Provider    string    `json:"provider"`
	Endpoint    string    `json:"endpoint,omitempty"`
	LastUsed    time.Time `json:"last_used,omitempty"`
}

// document is the on-disk shape. Unknown fields in the file are ignored
// on read for forward compatibility.
type document struct {
	Models  []Profile `json:"models"`
	Current string    `json:"current"`
}

var nicknameRe = regexp.MustCompile(`^[a-z0-9-]{1,8}$`)

// ValidNickname reports whether a nickname is acceptable: 1-8 chars,
// lowercase alphanumerics and dashes.
func ValidNickname(name string) bool {
	return nicknameRe.MatchString(name)
}

// Store is the single-writer profile store. Writes are atomic
// (temp-then-rename) so a crash mid-write cannot corrupt the file; a
// corrupt file on read degrades to an empty store rather than failing.
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
}

// NewStore opens the store at path, creating parent directories.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating profiles dir: %w", err)
	}
	s := &Store{path: path}
	s.load()
	return s, nil
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return // no profiles yet
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Component("profiles").Warn().Err(err).
			Str("path", s.path).Msg("profile file unreadable, starting empty")
		return
	}
	s.doc = doc
}

// save writes the given document to disk atomically. Caller holds s.mu.
func (s *Store) save(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling profiles: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing profiles: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming profiles file: %w", err)
	}
	return nil
}

// List returns all profiles in stored order.
func (s *Store) List() []Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Profile, len(s.doc.Models))
	copy(out, s.doc.Models)
	return out
}

// Get returns the profile for a nickname.
func (s *Store) Get(nickname string) (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.find(nickname)
}

// Current returns the currently selected profile, if any.
func (s *Store) Current() (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Current == "" {
		return Profile{}, false
	}
	return s.doc.find(s.doc.Current)
}

// Add inserts a new profile. Nicknames are unique; adding an existing
// one is an error.
func (s *Store) Add(p Profile) error {
	if !ValidNickname(p.Nickname) {
		return fmt.Errorf("invalid nickname %q: must be 1-8 chars of [a-z0-9-]", p.Nickname)
	}
	if p.DisplayName == "" {
		p.DisplayName = p.ModelID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.doc.find(p.Nickname); exists {
		return fmt.Errorf("profile %q already exists", p.Nickname)
	}
	next := s.doc.clone()
	next.Models = append(next.Models, p)
	if err := s.save(next); err != nil {
		return err
	}
	s.doc = next
	return nil
}

// Switch marks a profile current and stamps its last-used time. The
// in-memory and on-disk state only change if the write succeeds.
func (s *Store) Switch(nickname string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, p := range s.doc.Models {
		if p.Nickname == nickname {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Profile{}, &llmerr.ProviderNotFoundError{Name: nickname}
	}

	next := s.doc.clone()
	next.Models[idx].LastUsed = time.Now()
	next.Current = nickname
	if err := s.save(next); err != nil {
		return Profile{}, err
	}
	s.doc = next
	return next.Models[idx], nil
}

func (d document) find(nickname string) (Profile, bool) {
	for _, p := range d.Models {
		if p.Nickname == nickname {
			return p, true
		}
	}
	return Profile{}, false
}

func (d document) clone() document {
	models := make([]Profile, len(d.Models))
	copy(models, d.Models)
	return document{Models: models, Current: d.Current}
}
