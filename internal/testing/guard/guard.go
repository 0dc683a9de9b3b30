// Package guard puts a test binary in test mode when blank-imported, so the
// app packages never reach for live Postgres or Redis during unit tests.
package guard

import "os"

func init() {
	if os.Getenv("PAROKIA_TEST_MODE") == "" {
		_ = os.Setenv("PAROKIA_TEST_MODE", "1")
	}
	// Async last-login needs a queue; unit tests always touch synchronously.
	_ = os.Setenv("LAST_LOGIN_ASYNC", "false")
}
