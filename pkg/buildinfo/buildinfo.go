// SPDX-License-Identifier: GPL-3.0-or-later

package buildinfo

import (
	"fmt"
	"runtime"
)

// Info is the one-line build summary logged at start-up.
func Info() string {
	return fmt.Sprintf("version: %s, go: %s, os/arch: %s/%s", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
