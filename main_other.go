//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// The hotkey backend needs the main thread on darwin.
func main() {
	mainthread.Init(run)
}
