package fs

import (
	"context"
	"syscall"

	"undofs/internal/logging"
	"undofs/internal/store"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir represents either the root or one of the leaf directories below it.
// Leaf directories are always empty; nothing can be created inside them.
type Dir struct {
	node
}

func (d *Dir) matches(rec *store.Record) bool {
	return rec.IsDir()
}

func (d *Dir) isRoot() bool {
	return store.IsRoot(d.Path())
}

// child returns the path of name inside d, refusing anything below a leaf
// directory.
func (d *Dir) child(name string) (string, error) {
	if !d.isRoot() {
		dirLogger.Warn("Attempted to create %q inside leaf directory %q", name, d.Path())
		return "", syscall.EPERM
	}
	return store.Join(store.RootPath, name), nil
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	dirLogger.Debug("Looking up %q in directory %q", name, d.Path())
	if !d.isRoot() {
		return nil, syscall.ENOENT
	}

	n, err := d.fs.lookup(store.Join(store.RootPath, name))
	if err != nil {
		dirLogger.Trace("Path not found: %q", name)
		return nil, ToFuseError(err)
	}
	return n, nil
}

// ReadDirAll implements the HandleReadDirAller interface, listing directory contents.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	p := d.Path()
	dirLogger.Debug("Reading directory contents: %q", p)

	names, err := d.fs.engine.Readdir(p)
	if err != nil {
		return nil, ToFuseError(err)
	}

	entries := []fuse.Dirent{
		{Name: ".", Type: fuse.DT_Dir},
		{Name: "..", Type: fuse.DT_Dir},
	}
	for _, name := range names {
		rec, err := d.fs.engine.Getattr(store.Join(p, name))
		if err != nil {
			// Removed between the listing and the stat.
			continue
		}
		entries = append(entries, fuse.Dirent{Name: name, Type: direntType(rec)})
	}

	dirLogger.Debug("Directory %q contains %d entries", p, len(entries))
	return entries, nil
}

func direntType(rec *store.Record) fuse.DirentType {
	switch {
	case rec.IsDir():
		return fuse.DT_Dir
	case rec.IsSymlink():
		return fuse.DT_Link
	default:
		return fuse.DT_File
	}
}

// Create implements the NodeCreater interface, adding an empty file and
// opening it.
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	p, err := d.child(req.Name)
	if err != nil {
		return nil, nil, err
	}
	dirLogger.Info("Creating file %q (mode %v)", p, req.Mode)

	fd, err := d.fs.engine.Create(p, req.Mode)
	if err != nil {
		return nil, nil, ToFuseError(err)
	}
	n, err := d.fs.lookup(p)
	if err != nil {
		return nil, nil, ToFuseError(err)
	}
	if err := n.Attr(ctx, &resp.Attr); err != nil {
		return nil, nil, err
	}
	file := n.(*File)
	return file, &Handle{file: file, fd: fd}, nil
}

// Mkdir implements the NodeMkdirer interface, creating a new leaf directory.
func (d *Dir) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	p, err := d.child(req.Name)
	if err != nil {
		return nil, err
	}
	dirLogger.Info("Creating new directory %q", p)

	if err := d.fs.engine.Mkdir(p, req.Mode); err != nil {
		return nil, ToFuseError(err)
	}
	n, err := d.fs.lookup(p)
	if err != nil {
		return nil, ToFuseError(err)
	}
	return n, nil
}

// Symlink implements the NodeSymlinker interface.
func (d *Dir) Symlink(_ context.Context, req *fuse.SymlinkRequest) (fusefs.Node, error) {
	p, err := d.child(req.NewName)
	if err != nil {
		return nil, err
	}
	dirLogger.Info("Creating symlink %q -> %q", p, req.Target)

	if err := d.fs.engine.Symlink(p, req.Target); err != nil {
		return nil, ToFuseError(err)
	}
	n, err := d.fs.lookup(p)
	if err != nil {
		return nil, ToFuseError(err)
	}
	return n, nil
}

// Remove implements the NodeRemover interface, removing a file or directory.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	if !d.isRoot() {
		return syscall.ENOENT
	}
	p := store.Join(store.RootPath, req.Name)
	dirLogger.Info("Removing %q (isDir=%v)", p, req.Dir)

	var err error
	if req.Dir {
		err = d.fs.engine.Rmdir(p)
	} else {
		err = d.fs.engine.Unlink(p)
	}
	if err != nil {
		dirLogger.Debug("Remove %q failed: %v", p, err)
		return ToFuseError(err)
	}

	d.fs.forget(p)
	return nil
}

// Rename implements the NodeRenamer interface. Both names must live in
// the root.
func (d *Dir) Rename(_ context.Context, req *fuse.RenameRequest, newDir fusefs.Node) error {
	target, ok := newDir.(*Dir)
	if !ok {
		dirLogger.Error("Target is not a valid directory type")
		return syscall.EINVAL
	}
	if !d.isRoot() {
		return syscall.ENOENT
	}
	newPath, err := target.child(req.NewName)
	if err != nil {
		return err
	}
	oldPath := store.Join(store.RootPath, req.OldName)
	dirLogger.Info("Renaming %q to %q", oldPath, newPath)

	if err := d.fs.engine.Rename(oldPath, newPath); err != nil {
		dirLogger.Debug("Rename failed: %v", err)
		return ToFuseError(err)
	}

	d.fs.move(oldPath, newPath)
	return nil
}
