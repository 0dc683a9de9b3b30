package app

import (
	"os"
	"sync/atomic"
)

const testModeEnv = "PAROKIA_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether command entrypoints should return before opening
// database, Redis or listener resources. The environment is read once.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads PAROKIA_TEST_MODE and returns the new value.
func RefreshTestMode() bool {
	on := os.Getenv(testModeEnv) == "1"
	testMode.Store(&on)
	return on
}
