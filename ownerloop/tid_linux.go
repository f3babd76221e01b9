//go:build linux

package ownerloop

import (
	"golang.org/x/sys/unix"
)

func currentThreadID() int { return unix.Gettid() }
