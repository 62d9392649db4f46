package app

import (
	"os"
	"sync"
)

const testModeEnv = "LEDGER_TEST_MODE"

// InTestMode reports whether binaries are being loaded by `go test` and should
// return before dialing Postgres or Redis. The flag is read once.
var InTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})
