package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger writing to stdout for the duration of a test.
func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}
