package executor

import (
	"io"
	"sync"

	"github.com/caffeineduck/nixwasm/eval"
)

// TestExecutor provides a shared executor for tests to avoid repeated
// runtime setup. Use GetTestExecutor() to get a shared instance that's
// reused across tests.
var (
	testExecutor     *Executor
	testExecutorOnce sync.Once
	testExecutorErr  error
)

// GetTestExecutor returns a shared executor for testing. It has no store,
// so fetches fail softly, and guest stdio is discarded.
func GetTestExecutor() (*Executor, error) {
	testExecutorOnce.Do(func() {
		testExecutor, testExecutorErr = New(eval.NewState(),
			WithStdout(io.Discard),
			WithStderr(io.Discard),
		)
	})
	return testExecutor, testExecutorErr
}

// CloseTestExecutor closes the shared test executor.
// Call this in TestMain if needed, but typically not necessary.
func CloseTestExecutor() {
	if testExecutor != nil {
		testExecutor.Close()
		testExecutor = nil
		testExecutorOnce = sync.Once{} // Reset for next test run
	}
}
