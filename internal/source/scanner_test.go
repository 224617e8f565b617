package source

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestScanFindsPythonFiles(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.py")
	b := writeFile(t, root, "pkg/b.py")
	writeFile(t, root, "notes.txt")
	writeFile(t, root, "venv/lib/site.py")
	writeFile(t, root, "__pycache__/a.cpython-312.py")

	files, err := NewScanner(root, nil).Scan(nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d: %v", len(files), files)
	}
	if files[0] != a || files[1] != b {
		t.Errorf("unexpected files (want sorted [a.py pkg/b.py]): %v", files)
	}
}

func TestScanExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.py")
	writeFile(t, root, "tests/test_skip.py")
	writeFile(t, root, "gen/auto_gen.py")

	files, err := NewScanner(root, []string{"tests/**", "**/auto_*.py"}).Scan(nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "keep.py" {
		t.Errorf("excludes not applied: %v", files)
	}
}

func TestScanExplicitTargets(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.py")
	writeFile(t, root, "b.py")
	writeFile(t, root, "sub/c.py")

	files, err := NewScanner(root, nil).Scan([]string{"a.py", "sub"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
	if files[0] != a {
		t.Errorf("expected explicit file first after sort: %v", files)
	}
}

func TestScanMissingTarget(t *testing.T) {
	root := t.TempDir()
	if _, err := NewScanner(root, nil).Scan([]string{"nope.py"}); err == nil {
		t.Error("expected error for missing target")
	}
}

func TestRel(t *testing.T) {
	root := t.TempDir()
	s := NewScanner(root, nil)
	if got := s.Rel(filepath.Join(root, "pkg", "a.py")); got != "pkg/a.py" {
		t.Errorf("Rel = %q, want pkg/a.py", got)
	}
}
