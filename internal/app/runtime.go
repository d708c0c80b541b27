package app

import (
	"os"
	"strconv"
	"strings"
)

// TestModeEnv disables process startup when truthy.
const TestModeEnv = "TUTTI_TEST_MODE"

// InTestMode reports whether TUTTI_TEST_MODE holds a true value. Binaries
// return early in that mode so package tests can import them.
func InTestMode() bool {
	raw := strings.TrimSpace(os.Getenv(TestModeEnv))
	if raw == "" {
		return false
	}
	on, err := strconv.ParseBool(raw)
	return err == nil && on
}
