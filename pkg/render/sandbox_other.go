//go:build !linux

package render

import (
	"errors"
	"runtime"
)

var errSandboxUnsupported = errors.New("resource-limit sandbox is only supported on linux; set renderer.sandbox.enabled=false on " + runtime.GOOS)

// ApplyProfile is unavailable outside Linux.
func ApplyProfile(Profile) error {
	return errSandboxUnsupported
}

func execWithProfile(Profile, string, []string, []string) error {
	return errSandboxUnsupported
}
