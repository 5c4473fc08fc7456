// Package store is the in-memory record and content store behind undofs.
//
// This file contains error types and error handling utilities.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a path doesn't exist
	ErrNotFound = errors.New("no such file or directory")

	// ErrNoAttr indicates an extended attribute doesn't exist
	ErrNoAttr = errors.New("no such attribute")

	// ErrExists indicates path already exists
	ErrExists = errors.New("path already exists")

	// ErrNotDir indicates a directory operation on a non-directory
	ErrNotDir = errors.New("not a directory")

	// ErrIsDir indicates a file operation on a directory
	ErrIsDir = errors.New("is a directory")

	// ErrInvalidPath indicates an invalid path format, including any path
	// deeper than one level below the root
	ErrInvalidPath = errors.New("invalid path format")

	// ErrInvalidArgument indicates a negative offset or length, or a
	// readlink on something that is not a link
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrFileTooBig indicates a write or truncate past the maximum file size
	ErrFileTooBig = errors.New("file too large")
)

// Error wraps store errors with context about the operation and
// affected path.
type Error struct {
	Op   string // Operation that failed (e.g., "write", "rename")
	Path string // Affected path
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}

// Operation names for consistent logging and error reporting
const (
	OpCreate      = "create"
	OpWrite       = "write"
	OpTruncate    = "truncate"
	OpUnlink      = "unlink"
	OpRename      = "rename"
	OpMkdir       = "mkdir"
	OpRmdir       = "rmdir"
	OpSymlink     = "symlink"
	OpChmod       = "chmod"
	OpChown       = "chown"
	OpUtimens     = "utimens"
	OpSetXattr    = "setxattr"
	OpRemoveXattr = "removexattr"
	OpGetXattr    = "getxattr"
	OpListXattr   = "listxattr"
	OpGetattr     = "getattr"
	OpOpen        = "open"
	OpRead        = "read"
	OpReaddir     = "readdir"
	OpReadlink    = "readlink"
	OpRestore     = "restore"
)
