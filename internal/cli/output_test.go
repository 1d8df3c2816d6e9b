package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/princepp/princepp/internal/cli"
	"github.com/princepp/princepp/pkg/fs"
)

func Test_OpenOutputFile_CreatesAndAppends(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	fsys := fs.NewReal()

	f1, err := cli.OpenOutputFile(fsys, path)
	if err != nil {
		t.Fatalf("OpenOutputFile: %v", err)
	}

	if _, err := f1.Write([]byte("first\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := f1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := cli.OpenOutputFile(fsys, path)
	if err != nil {
		t.Fatalf("OpenOutputFile (second open): %v", err)
	}

	if _, err := f2.Write([]byte("second\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := f2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(data) != "first\nsecond\n" {
		t.Fatalf("content = %q, want %q", string(data), "first\nsecond\n")
	}
}

func Test_OpenOutputFile_InvalidDirectory_Fails(t *testing.T) {
	t.Parallel()

	fsys := fs.NewReal()

	_, err := cli.OpenOutputFile(fsys, filepath.Join(t.TempDir(), "missing-dir", "out.txt"))
	if err == nil {
		t.Fatal("expected an error opening a file in a nonexistent directory")
	}
}
