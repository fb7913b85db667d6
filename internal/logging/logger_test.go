package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func resetLoggingState() {
	CloseAll()
	logsDir = ""
	workspace = ""
	config = loggingConfig{}
	logLevel = LevelInfo
}

func writeLoggingConfig(t *testing.T, ws, content string) {
	t.Helper()
	configDir := filepath.Join(ws, ".steward")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

// TestAllCategoriesLog tests that all categories create log files when debug_mode is true
func TestAllCategoriesLog(t *testing.T) {
	tempDir := t.TempDir()
	writeLoggingConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
`)

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
		CategoryBoot,
		CategoryStore,
		CategoryScanner,
		CategoryPolicy,
		CategoryMemory,
		CategoryRisk,
		CategoryOracle,
		CategoryCycle,
		CategorySeed,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	CloseAll()

	for _, cat := range categories {
		matches, err := filepath.Glob(filepath.Join(tempDir, ".steward", "logs", "*_"+string(cat)+".log"))
		if err != nil || len(matches) == 0 {
			t.Errorf("Expected a log file for category %s", cat)
			continue
		}
		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Errorf("Failed to read log for %s: %v", cat, err)
			continue
		}
		for _, level := range []string{"[INFO]", "[DEBUG]", "[WARN]", "[ERROR]"} {
			if !strings.Contains(string(data), level) {
				t.Errorf("Category %s log missing %s entry", cat, level)
			}
		}
	}
}

// TestProductionModeIsSilent verifies that a workspace without a config
// produces no log directory and no-op loggers.
func TestProductionModeIsSilent(t *testing.T) {
	tempDir := t.TempDir()

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}
	if IsDebugMode() {
		t.Error("Expected debug mode to be disabled without config")
	}

	Cycle("This should go nowhere: day %d", 1)
	Get(CategoryStore).Error("Nor should this")

	if _, err := os.Stat(filepath.Join(tempDir, ".steward", "logs")); !os.IsNotExist(err) {
		t.Error("Expected no logs directory in production mode")
	}
}

// TestCategoryFiltering verifies that a category can be disabled while
// others stay enabled.
func TestCategoryFiltering(t *testing.T) {
	tempDir := t.TempDir()
	writeLoggingConfig(t, tempDir, `
logging:
  debug_mode: true
  level: info
  categories:
    oracle: false
    cycle: true
`)

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsCategoryEnabled(CategoryOracle) {
		t.Error("Expected oracle category to be disabled")
	}
	if !IsCategoryEnabled(CategoryCycle) {
		t.Error("Expected cycle category to be enabled")
	}
	// Unlisted categories default to enabled in debug mode.
	if !IsCategoryEnabled(CategoryRisk) {
		t.Error("Expected unlisted risk category to be enabled")
	}

	Oracle("Suppressed message")
	CloseAll()

	matches, _ := filepath.Glob(filepath.Join(tempDir, ".steward", "logs", "*_oracle.log"))
	if len(matches) != 0 {
		t.Error("Expected no oracle log file when category is disabled")
	}
}

// TestLogLevelFiltering verifies that debug entries are dropped at info level.
func TestLogLevelFiltering(t *testing.T) {
	tempDir := t.TempDir()
	writeLoggingConfig(t, tempDir, `
logging:
  debug_mode: true
  level: info
`)

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	logger := Get(CategoryMemory)
	logger.Debug("Dropped at info level")
	logger.Info("Kept at info level")
	CloseAll()

	matches, _ := filepath.Glob(filepath.Join(tempDir, ".steward", "logs", "*_memory.log"))
	if len(matches) == 0 {
		t.Fatal("Expected a memory log file")
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "Dropped at info level") {
		t.Error("Debug entry should be filtered at info level")
	}
	if !strings.Contains(string(data), "Kept at info level") {
		t.Error("Info entry should be written at info level")
	}
}

// TestConcurrentLogging exercises Get and the convenience helpers from
// multiple goroutines.
func TestConcurrentLogging(t *testing.T) {
	tempDir := t.TempDir()
	writeLoggingConfig(t, tempDir, `
logging:
  debug_mode: true
  level: debug
`)

	resetLoggingState()
	defer resetLoggingState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				Risk("goroutine %d iteration %d", n, j)
				Get(CategoryStore).Info("goroutine %d store op %d", n, j)
			}
		}(i)
	}
	wg.Wait()
	CloseAll()

	matches, _ := filepath.Glob(filepath.Join(tempDir, ".steward", "logs", "*_risk.log"))
	if len(matches) == 0 {
		t.Fatal("Expected a risk log file")
	}
}
