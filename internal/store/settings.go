package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const settingsFile = "tictactoe_settings.json"

// settings is the on-disk shape of durable local state.
type settings struct {
	DeviceID    string `json:"device_id"`
	DisplayName string `json:"display_name,omitempty"`
	LastMatchID string `json:"last_match_id,omitempty"`
}

// FileStore persists client settings as a JSON file in the data dir.
// The device id survives logout; the display name does not.
type FileStore struct {
	mu   sync.Mutex
	path string
	s    settings
}

// NewFileStore loads existing settings from dir, or starts empty when
// no file exists yet.
func NewFileStore(dir string) (*FileStore, error) {
	fs := &FileStore{path: filepath.Join(dir, settingsFile)}

	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := json.Unmarshal(data, &fs.s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return fs, nil
}

// DeviceID returns the durable device identifier, or "".
func (f *FileStore) DeviceID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s.DeviceID
}

// SetDeviceID persists the device identifier.
func (f *FileStore) SetDeviceID(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.DeviceID = id
	return f.save()
}

// DisplayName returns the last-used display name, or "".
func (f *FileStore) DisplayName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s.DisplayName
}

// SetDisplayName persists the display name used for auto-connect.
func (f *FileStore) SetDisplayName(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.DisplayName = name
	return f.save()
}

// ClearDisplayName removes the persisted display name.
func (f *FileStore) ClearDisplayName() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.DisplayName = ""
	return f.save()
}

// LastMatchID returns the best-effort resume hint, or "".
func (f *FileStore) LastMatchID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s.LastMatchID
}

// SetLastMatchID persists the resume hint.
func (f *FileStore) SetLastMatchID(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.LastMatchID = id
	return f.save()
}

// ClearLastMatchID removes the resume hint.
func (f *FileStore) ClearLastMatchID() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.LastMatchID = ""
	return f.save()
}

func (f *FileStore) save() error {
	data, err := json.MarshalIndent(f.s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
