package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gpaddons-go/errcode"

	"gopkg.in/yaml.v3"
)

// Store loads and persists add-on options.
type Store interface {
	Load() (AddonOptions, error)
	Save(AddonOptions) error
}

// -----------------------------------------------------------------------------
// MemStore
// -----------------------------------------------------------------------------

// MemStore keeps options in RAM. Firmware builds use it seeded from a preset.
type MemStore struct {
	mu    sync.Mutex
	opts  AddonOptions
	saves int
}

func NewMemStore(o AddonOptions) *MemStore {
	return &MemStore{opts: o.Clone()}
}

func (s *MemStore) Load() (AddonOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Clone(), nil
}

func (s *MemStore) Save(o AddonOptions) error {
	if err := o.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.opts = o.Clone()
	s.saves++
	s.mu.Unlock()
	return nil
}

// Saves counts successful Save calls.
func (s *MemStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// -----------------------------------------------------------------------------
// FileStore
// -----------------------------------------------------------------------------

// FileStore persists options as YAML. Fields absent from the file keep the
// values from Defaults; a missing file loads Defaults unchanged.
type FileStore struct {
	Path     string
	Defaults AddonOptions

	mu sync.Mutex
}

func (s *FileStore) Load() (AddonOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.Defaults.Clone()
	raw, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return o, nil
	}
	if err != nil {
		return AddonOptions{}, errcode.Wrap(errcode.Error, "load "+s.Path, err)
	}
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return AddonOptions{}, errcode.Wrap(errcode.InvalidParams, "parse "+s.Path, err)
	}
	if err := o.Validate(); err != nil {
		return AddonOptions{}, err
	}
	return o, nil
}

// Save writes atomically via a temp file in the same directory.
func (s *FileStore) Save(o AddonOptions) error {
	if err := o.Validate(); err != nil {
		return err
	}
	raw, err := yaml.Marshal(o)
	if err != nil {
		return errcode.Wrap(errcode.Error, "encode options", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".addons-*.yaml")
	if err != nil {
		return errcode.Wrap(errcode.Error, "save "+s.Path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errcode.Wrap(errcode.Error, "save "+s.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return errcode.Wrap(errcode.Error, "save "+s.Path, err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return errcode.Wrap(errcode.Error, "save "+s.Path, err)
	}
	return nil
}
