//go:build !unix

// internal/protocol/errno_other.go
package protocol

import (
	"errors"
	"io"
	"os"
)

func isTransient(err error) bool {
	return false
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed)
}
