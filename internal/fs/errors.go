// Package fs provides the FUSE view of the store.
//
// This file contains the translation from store errors to errno values.
package fs

import (
	"errors"
	"os"

	"undofs/internal/logging"
	"undofs/internal/store"

	"bazil.org/fuse"
	"golang.org/x/sys/unix"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")
)

// ToFuseError converts an error from the engine to the errno FUSE
// expects. Unknown errors become EIO.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		errLogger.Trace("Converting store error to FUSE error: %v", storeErr)
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return unix.ENOENT
	case errors.Is(err, store.ErrNoAttr):
		return fuse.ErrNoXattr
	case errors.Is(err, store.ErrExists):
		return unix.EEXIST
	case errors.Is(err, store.ErrNotDir):
		return unix.ENOTDIR
	case errors.Is(err, store.ErrIsDir):
		return unix.EISDIR
	case errors.Is(err, store.ErrFileTooBig):
		return unix.EFBIG
	case errors.Is(err, store.ErrInvalidPath), errors.Is(err, store.ErrInvalidArgument):
		return unix.EINVAL
	case errors.Is(err, os.ErrPermission):
		return unix.EACCES
	default:
		errLogger.Debug("Unknown error type, returning EIO: %v", err)
		return unix.EIO
	}
}
