package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/nexusflow/nexusflow/internal/log"
)

func testConfig() Config {
	return Config{
		Extensions:   []string{".py", ".md", ".go"},
		ExcludedDirs: []string{"node_modules", "__pycache__", "dist"},
		MaxFileSize:  1024,
	}
}

// writeFile creates a file with parent directories.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func relPaths(files []File) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.RelPath
	}
	sort.Strings(paths)
	return paths
}

func TestScan_FilterPolicy(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "main.py"), "print('hi')")
	writeFile(t, filepath.Join(root, "README.md"), "# readme")
	writeFile(t, filepath.Join(root, "notes.MD"), "# case insensitive ext")
	writeFile(t, filepath.Join(root, ".env"), "SECRET=1")
	writeFile(t, filepath.Join(root, "image.png"), "binary")
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "index.py"), "nope")
	writeFile(t, filepath.Join(root, ".git", "config.py"), "nope")
	writeFile(t, filepath.Join(root, "src", "util.go"), "package util")
	writeFile(t, filepath.Join(root, "big.py"), strings.Repeat("x", 2048))

	s := New(testConfig(), log.NewNop())
	got := relPaths(s.Scan(root))

	want := []string{"README.md", "main.py", "notes.MD", "src/util.go"}
	if len(got) != len(want) {
		t.Fatalf("Scan() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Scan() = %v, want %v", got, want)
		}
	}
}

func TestScan_ExcludedNamesApplyToFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app.py"), "x = 1")
	writeFile(t, filepath.Join(root, "generated.py"), "x = 2")

	// Exclusion entries match any path segment, not only directories.
	cfg := testConfig()
	cfg.ExcludedDirs = append(cfg.ExcludedDirs, "generated.py")

	s := New(cfg, log.NewNop())
	got := relPaths(s.Scan(root))
	if len(got) != 1 || got[0] != "app.py" {
		t.Errorf("Scan() = %v, want [app.py]", got)
	}
}

func TestScan_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.py"), "def f(): pass")
	writeFile(t, filepath.Join(root, "docs", "b.md"), "# notes")

	s := New(testConfig(), log.NewNop())

	first := relPaths(s.Scan(root))
	second := relPaths(s.Scan(root))

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 files per scan, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("scans differ: %v vs %v", first, second)
		}
	}
}

func TestScan_MissingRoot(t *testing.T) {
	s := New(testConfig(), log.NewNop())
	if got := s.Scan(filepath.Join(t.TempDir(), "does-not-exist")); len(got) != 0 {
		t.Errorf("Scan(missing root) = %v, want empty", got)
	}
}

func TestScan_RootIsFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "lonely.py")
	writeFile(t, file, "x = 1")

	s := New(testConfig(), log.NewNop())
	if got := s.Scan(file); len(got) != 0 {
		t.Errorf("Scan(file root) = %v, want empty", got)
	}
}

func TestScan_Descriptors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pkg", "handler.GO"), "package pkg")

	s := New(testConfig(), log.NewNop())
	files := s.Scan(root)
	if len(files) != 1 {
		t.Fatalf("expected one file, got %d", len(files))
	}

	f := files[0]
	if f.RelPath != "pkg/handler.GO" {
		t.Errorf("RelPath = %q", f.RelPath)
	}
	if f.Name != "handler.GO" {
		t.Errorf("Name = %q", f.Name)
	}
	if f.Ext != ".go" {
		t.Errorf("Ext = %q, want lowercased .go", f.Ext)
	}
	if !filepath.IsAbs(f.Path) {
		t.Errorf("Path = %q, want absolute", f.Path)
	}
}
