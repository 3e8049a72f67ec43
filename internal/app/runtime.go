package app

import (
	"os"
	"sync/atomic"
)

const testModeEnv = "DEPOT_TEST_MODE"

var testMode atomic.Bool

func init() {
	RefreshTestMode()
}

// InTestMode reports whether binaries should skip runtime side effects such
// as dialing MySQL or binding ports.
func InTestMode() bool {
	return testMode.Load()
}

// RefreshTestMode re-reads DEPOT_TEST_MODE after environment changes.
func RefreshTestMode() {
	testMode.Store(os.Getenv(testModeEnv) == "1")
}
