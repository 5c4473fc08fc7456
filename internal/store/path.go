package store

import (
	"path"
	"strings"
)

// RootPath is the path of the fixed root record.
const RootPath = "/"

// Clean normalizes p into an absolute, cleaned path.
func Clean(p string) string {
	cleaned := path.Clean("/" + p)
	return cleaned
}

// Join returns the path of name inside dir.
func Join(dir, name string) string {
	return Clean(dir + "/" + name)
}

// Base returns the last element of p.
func Base(p string) string {
	return path.Base(Clean(p))
}

// IsRoot reports whether p names the root.
func IsRoot(p string) bool {
	return Clean(p) == RootPath
}

// validLeaf cleans p and checks that it names exactly one entry below the
// root. The store is single-level.
func validLeaf(op, p string) (string, error) {
	cleaned := Clean(p)
	if cleaned == RootPath || strings.Contains(cleaned[1:], "/") {
		return "", newError(op, p, ErrInvalidPath)
	}
	return cleaned, nil
}
