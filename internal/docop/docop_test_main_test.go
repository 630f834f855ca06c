package docop_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that no watchContext or fakestorage delivery goroutine
// outlives its test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
