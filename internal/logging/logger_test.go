package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitializeDisabled(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Settings{DebugMode: false}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer CloseAll()

	// No logs directory should be created in production mode
	if _, err := os.Stat(filepath.Join(ws, ".framecheck", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not exist when debug mode is off")
	}

	l := Get(CategoryScan)
	l.Info("should be dropped")
}

func TestInitializeDebugWritesFiles(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Settings{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer CloseAll()

	Scan("discovered %d files", 3)

	dir := filepath.Join(ws, ".framecheck", "logs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}

	var found bool
	for _, e := range entries {
		if strings.Contains(e.Name(), "scan") {
			found = true
			data, _ := os.ReadFile(filepath.Join(dir, e.Name()))
			if !strings.Contains(string(data), "discovered 3 files") {
				t.Errorf("scan log missing message, got: %s", data)
			}
		}
	}
	if !found {
		t.Error("expected a scan log file")
	}
}

func TestCategoryFilter(t *testing.T) {
	ws := t.TempDir()
	err := Initialize(ws, Settings{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"watch": false},
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer CloseAll()

	if IsCategoryEnabled(CategoryWatch) {
		t.Error("watch category should be disabled")
	}
	if !IsCategoryEnabled(CategoryParse) {
		t.Error("parse category should default to enabled")
	}
}
