package indexer

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in this
// package. Index runs fan out workers; none may outlive their run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
