// Package locstore persists the last resolved location for the lookup command. The state file
// is a JSON object of named records; the location lives under a single fixed key.
package locstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// Key is the record name the location is stored under.
const Key = "weatherLocation"

// ErrCorrupt is returned by Load when the state file or its location record cannot be decoded.
var ErrCorrupt = errors.New("locstore: corrupt state")

// Store reads and writes one state file. Not safe for concurrent writers across processes.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Load returns the saved location. A missing file or missing record is (zero, false, nil).
// Unreadable content returns ErrCorrupt; callers treat it as no saved location.
func (s *Store) Load() (models.Location, bool, error) {
	records, err := s.read()
	if err != nil {
		return models.Location{}, false, err
	}
	raw, ok := records[Key]
	if !ok || string(raw) == "null" {
		return models.Location{}, false, nil
	}
	var loc models.Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return models.Location{}, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, Key, err)
	}
	return loc, true, nil
}

// Save replaces the location record, keeping any other records in the file. The write goes
// through a temp file and rename so readers never see a partial file.
func (s *Store) Save(loc models.Location) error {
	records, err := s.read()
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return err
		}
		records = map[string]json.RawMessage{}
	}
	raw, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("locstore: encode location: %w", err)
	}
	records[Key] = raw
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("locstore: encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("locstore: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".locstore-*")
	if err != nil {
		return fmt.Errorf("locstore: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("locstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("locstore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("locstore: replace state file: %w", err)
	}
	return nil
}

// Clear removes the location record. Other records are kept.
func (s *Store) Clear() error {
	records, err := s.read()
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			return os.Remove(s.path)
		}
		return err
	}
	if _, ok := records[Key]; !ok {
		return nil
	}
	delete(records, Key)
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("locstore: encode state: %w", err)
	}
	return os.WriteFile(s.path, append(data, '\n'), 0o644)
}

func (s *Store) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("locstore: read %s: %w", s.path, err)
	}
	records := map[string]json.RawMessage{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return records, nil
}
