//go:build !windows

package session

import "golang.org/x/sys/unix"

const killedCode = -int(unix.SIGKILL)
