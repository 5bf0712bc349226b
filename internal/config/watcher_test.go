package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_FiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panpad.toml")
	if err := os.WriteFile(path, []byte("deadzone = 0.1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fired := make(chan string, 10)
	w, err := NewWatcher(path, func(p string) { fired <- p }, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() = %v", err)
	}
	defer w.Close()

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("deadzone = 0.2\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case p := <-fired:
		if p != w.Path() {
			t.Errorf("handler path = %q, want %q", p, w.Path())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	// The burst is coalesced.
	select {
	case <-fired:
		t.Error("burst produced more than one reload")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_Close(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panpad.toml")

	fired := make(chan string, 1)
	w, err := NewWatcher(path, func(p string) { fired <- p }, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
		t.Error("closed watcher fired")
	case <-time.After(150 * time.Millisecond):
	}
}
