package fs

import (
	"bazil.org/fuse/fs"

	"undofs/internal/store"
)

// pathNode is a node bound to one store path. The path moves with renames.
type pathNode interface {
	fs.Node
	Path() string
	setPath(p string)
	matches(rec *store.Record) bool
}

// Node is what every entry in the tree supports.
type Node interface {
	fs.Node
	fs.NodeSetattrer
	fs.NodeGetxattrer
	fs.NodeListxattrer
	fs.NodeSetxattrer
	fs.NodeRemovexattrer
}

// Directory represents a directory in the store.
type Directory interface {
	Node
	fs.NodeStringLookuper
	fs.HandleReadDirAller
	fs.NodeCreater
	fs.NodeMkdirer
	fs.NodeSymlinker
	fs.NodeRemover
	fs.NodeRenamer
}

// FileInterface represents a regular file.
type FileInterface interface {
	Node
	fs.NodeOpener
	fs.NodeFsyncer
}

// SymlinkInterface represents a symbolic link.
type SymlinkInterface interface {
	Node
	fs.NodeReadlinker
}

// FileHandleInterface represents an open file handle.
type FileHandleInterface interface {
	fs.Handle
	fs.HandleReader
	fs.HandleWriter
	fs.HandleReleaser
}

var (
	_ fs.FS               = (*FS)(nil)
	_ fs.FSStatfser       = (*FS)(nil)
	_ Directory           = (*Dir)(nil)
	_ FileInterface       = (*File)(nil)
	_ SymlinkInterface    = (*Symlink)(nil)
	_ FileHandleInterface = (*Handle)(nil)
)
