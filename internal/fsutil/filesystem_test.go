package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOSFileSystem_WriteReadRemove(t *testing.T) {
	fsys := OSFileSystem{}
	path := filepath.Join(t.TempDir(), "marker.log")

	if err := fsys.WriteFile(path, []byte("ready"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !fsys.Exists(path) {
		t.Fatal("expected file to exist")
	}
	data, err := fsys.ReadFile(path)
	if err != nil || string(data) != "ready" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
	if err := fsys.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if fsys.Exists(path) {
		t.Error("expected file to be gone")
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.WriteFile("/test.txt", []byte("hello, world"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello, world" {
		t.Errorf("expected %q, got %q", "hello, world", data)
	}
}

func TestMemoryFileSystem_FailNextWrites(t *testing.T) {
	mfs := NewMemoryFileSystem()
	mfs.FailNextWrites(2)

	for i := 0; i < 2; i++ {
		err := mfs.WriteFile("/m", []byte("x"), 0644)
		if !errors.Is(err, ErrInjected) {
			t.Fatalf("attempt %d: expected ErrInjected, got %v", i, err)
		}
	}
	if err := mfs.WriteFile("/m", []byte("x"), 0644); err != nil {
		t.Fatalf("third write should succeed: %v", err)
	}
	if got := mfs.WriteAttempts(); got != 3 {
		t.Errorf("WriteAttempts = %d, want 3", got)
	}
	if !mfs.Exists("/m") {
		t.Error("expected /m to exist")
	}
}

func TestMemoryFileSystem_MkdirAllAndRemove(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/a/b/c", 0755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"/a", "/a/b", "/a/b/c"} {
		if !mfs.Exists(p) {
			t.Errorf("expected %s to exist", p)
		}
	}
	if err := mfs.Remove("/missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	got, err := ExpandHome("~/ws_gui.log")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "ws_gui.log"); got != want {
		t.Errorf("ExpandHome = %q, want %q", got, want)
	}

	got, _ = ExpandHome("/tmp/./x.log")
	if got != "/tmp/x.log" {
		t.Errorf("ExpandHome(/tmp/./x.log) = %q", got)
	}
	if strings.HasPrefix(got, "~") {
		t.Error("unexpected tilde")
	}
}
