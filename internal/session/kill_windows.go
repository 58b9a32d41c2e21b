//go:build windows

package session

const killedCode = 1
