package log

import (
	"path/filepath"
	"testing"

	"signal-backtest/internal/config"
)

func TestNewLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest.log")
	logger, err := NewLogger(config.LoggingConfig{
		Level:       "debug",
		Encoding:    "json",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	logger.Debug("hello")
	_ = logger.Sync()
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(config.LoggingConfig{Level: "loud", Encoding: "console"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestWithSymbol_NilLogger(t *testing.T) {
	if WithSymbol(nil, "AAPL") == nil {
		t.Fatalf("expected a usable logger")
	}
}
