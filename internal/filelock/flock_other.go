//go:build !unix

package filelock

import "os"

const platformSupported = false

type lockKind int

const (
	lockShared lockKind = iota
	lockExclusive
)

func lockFile(*os.File, lockKind, bool) error {
	return ErrUnsupported
}

func unlockFile(*os.File) error {
	return ErrUnsupported
}
