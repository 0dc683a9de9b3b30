// Package testing flips the process into test mode when imported, so command
// entrypoints and runtime wiring skip network side effects.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PAROKIA_TEST_MODE", "1")
		if os.Getenv("SUPERADMIN_BOOTSTRAP_EMAIL") == "" {
			_ = os.Setenv("SUPERADMIN_BOOTSTRAP_EMAIL", "pastor@parokia.local")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
