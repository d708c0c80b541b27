// Package testing prepares the process environment for test binaries that
// import it for side effects. Binaries see test mode and never dial a real
// Redis.
package testing

import "os"

var defaults = map[string]string{
	"REDIS_ADDR": "127.0.0.1:0",
}

func init() {
	_ = os.Setenv("TUTTI_TEST_MODE", "1")
	for key, value := range defaults {
		if _, ok := os.LookupEnv(key); !ok {
			_ = os.Setenv(key, value)
		}
	}
}
