package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_Roundtrip(t *testing.T) {
	dir := t.TempDir()

	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if fs.DeviceID() != "" || fs.DisplayName() != "" || fs.LastMatchID() != "" {
		t.Fatalf("fresh store must be empty")
	}

	if err := fs.SetDeviceID("device-1"); err != nil {
		t.Fatalf("SetDeviceID() error = %v", err)
	}
	if err := fs.SetDisplayName("alice"); err != nil {
		t.Fatalf("SetDisplayName() error = %v", err)
	}
	if err := fs.SetLastMatchID("match-1"); err != nil {
		t.Fatalf("SetLastMatchID() error = %v", err)
	}

	reloaded, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() reload error = %v", err)
	}
	if got := reloaded.DeviceID(); got != "device-1" {
		t.Errorf("DeviceID = %q, want device-1", got)
	}
	if got := reloaded.DisplayName(); got != "alice" {
		t.Errorf("DisplayName = %q, want alice", got)
	}
	if got := reloaded.LastMatchID(); got != "match-1" {
		t.Errorf("LastMatchID = %q, want match-1", got)
	}
}

func TestFileStore_Clears(t *testing.T) {
	dir := t.TempDir()

	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := fs.SetDeviceID("device-1"); err != nil {
		t.Fatal(err)
	}
	if err := fs.SetDisplayName("alice"); err != nil {
		t.Fatal(err)
	}
	if err := fs.SetLastMatchID("match-1"); err != nil {
		t.Fatal(err)
	}

	if err := fs.ClearDisplayName(); err != nil {
		t.Fatalf("ClearDisplayName() error = %v", err)
	}
	if err := fs.ClearLastMatchID(); err != nil {
		t.Fatalf("ClearLastMatchID() error = %v", err)
	}

	reloaded, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() reload error = %v", err)
	}
	if got := reloaded.DisplayName(); got != "" {
		t.Errorf("DisplayName after clear = %q, want empty", got)
	}
	if got := reloaded.LastMatchID(); got != "" {
		t.Errorf("LastMatchID after clear = %q, want empty", got)
	}
	if got := reloaded.DeviceID(); got != "device-1" {
		t.Errorf("DeviceID after clears = %q, want device-1", got)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, settingsFile)
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFileStore(dir); err == nil {
		t.Fatalf("NewFileStore() on corrupt file must fail")
	}
}
