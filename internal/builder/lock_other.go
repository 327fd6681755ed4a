//go:build !linux
// +build !linux

package builder

import "fmt"

type lock struct{}

func acquireLock(root string) (*lock, error) {
	return nil, fmt.Errorf("ocibuilder is only supported on Linux")
}

func (l *lock) release() error { return nil }
