//go:build windows

package process

import (
	"syscall"
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const processTerminate = 0x0001

// Windows has no SIGTERM equivalent for arbitrary processes.
const gracefulStopSupported = false

func requestStop(pid int) error { return forceKill(pid) }

// forceKill terminates pid with exit code 1. A process that cannot be opened
// has already gone.
func forceKill(pid int) error {
	if pid <= 0 {
		return nil
	}
	h, _, _ := procOpenProcess.Call(uintptr(processTerminate), 0, uintptr(uint32(pid)))
	if h == 0 {
		return nil
	}
	defer func() { _, _, _ = procCloseHandle.Call(h) }()
	if ret, _, err := procTerminateProcess.Call(h, uintptr(1)); ret == 0 {
		return err
	}
	return nil
}
