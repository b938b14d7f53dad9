package server

import (
	"io"
	"log"
	"os"
	"testing"
)

// TestMain initializes the package loggers once, before any test runs.
// Individual tests must not touch them afterwards: session goroutines from
// one test may still be logging while the next test starts.
func TestMain(m *testing.M) {
	errorLog = log.New(io.Discard, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
	log.SetOutput(io.Discard)

	os.Exit(m.Run())
}
