//go:build !windows

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

var lockDir = func() (string, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(root, "boxim-bot", "locks"), nil
}

type instanceLock struct {
	file *flock.Flock
}

func (l *instanceLock) Release() error {
	if l == nil || l.file == nil || !l.file.Locked() {
		return nil
	}
	if err := l.file.Unlock(); err != nil {
		return fmt.Errorf("release account lock %s: %w", l.file.Path(), err)
	}
	return nil
}

// acquireInstanceLock takes the flock for key. The second result is true
// when another process already holds it.
func acquireInstanceLock(key string) (*instanceLock, bool, error) {
	dir, err := lockDir()
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, false, fmt.Errorf("create lock directory: %w", err)
	}
	file := flock.New(filepath.Join(dir, key+".lock"))
	held, err := file.TryLock()
	switch {
	case err != nil:
		return nil, false, fmt.Errorf("lock %s: %w", file.Path(), err)
	case !held:
		return nil, true, nil
	}
	return &instanceLock{file: file}, false, nil
}
