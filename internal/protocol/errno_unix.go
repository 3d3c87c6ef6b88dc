//go:build unix

// internal/protocol/errno_unix.go
package protocol

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// isTransient reports conditions a write or read may simply retry.
func isTransient(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}

// isClosed reports conditions after which the handle must be reopened.
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, unix.EBADF) || errors.Is(err, os.ErrClosed)
}
