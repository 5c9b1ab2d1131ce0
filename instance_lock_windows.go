//go:build windows

package main

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

type instanceLock struct {
	mutex windows.Handle
}

func (l *instanceLock) Release() error {
	if l == nil || l.mutex == 0 {
		return nil
	}
	handle := l.mutex
	l.mutex = 0
	if err := windows.CloseHandle(handle); err != nil {
		return fmt.Errorf("release account mutex: %w", err)
	}
	return nil
}

// acquireInstanceLock opens the session-local named mutex for key. The
// second result is true when another process already created it.
func acquireInstanceLock(key string) (*instanceLock, bool, error) {
	name, err := windows.UTF16PtrFromString(`Local\BoximBot-` + key)
	if err != nil {
		return nil, false, fmt.Errorf("encode mutex name: %w", err)
	}
	handle, err := windows.CreateMutex(nil, false, name)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		if handle != 0 {
			_ = windows.CloseHandle(handle)
		}
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create account mutex: %w", err)
	}
	return &instanceLock{mutex: handle}, false, nil
}
