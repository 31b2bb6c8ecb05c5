package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists one credential file per OAuth-backed provider.
// Files are owner-readable only and written atomically so a crash
// mid-write cannot leave a half-written token on disk.
type FileStore struct {
	dir string
}

// NewFileStore creates the store, ensuring the directory exists with
// owner-only permissions.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating credentials dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(provider string) string {
	return filepath.Join(s.dir, provider+".json")
}

// Load reads the stored credential for a provider. Returns
// os.ErrNotExist when no usable credential is stored; a corrupt file is
// treated the same way rather than blocking all further auth.
func (s *FileStore) Load(provider string) (Credential, error) {
	data, err := os.ReadFile(s.path(provider))
	if err != nil {
		if os.IsNotExist(err) {
			return Credential{}, os.ErrNotExist
		}
		return Credential{}, fmt.Errorf("reading credential for %s: %w", provider, err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, os.ErrNotExist
	}
	return cred, nil
}

// Save writes a credential atomically with owner-only permissions.
func (s *FileStore) Save(provider string, cred Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credential: %w", err)
	}

	tmp := s.path(provider) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing credential: %w", err)
	}
	if err := os.Rename(tmp, s.path(provider)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming credential file: %w", err)
	}
	return nil
}

// Delete removes the stored credential for a provider.
func (s *FileStore) Delete(provider string) error {
	err := os.Remove(s.path(provider))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting credential for %s: %w", provider, err)
	}
	return nil
}

// List returns the providers that currently have a stored credential.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var providers []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			providers = append(providers, name[:len(name)-len(".json")])
		}
	}
	return providers, nil
}
