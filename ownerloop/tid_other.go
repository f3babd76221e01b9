//go:build !linux && !windows

package ownerloop

// currentThreadID is unsupported on this platform.
func currentThreadID() int { return 0 }
