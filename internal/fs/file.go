package fs

import (
	"context"

	"undofs/internal/logging"
	"undofs/internal/store"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// File represents a regular file in the store.
type File struct {
	node
}

func (f *File) matches(rec *store.Record) bool {
	return !rec.IsDir() && !rec.IsSymlink()
}

// Open implements the NodeOpener interface. Content is read and written
// through the engine, so the handle only remembers which file it belongs to.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	p := f.Path()
	fileLogger.Debug("Opening file %q with flags %v", p, req.Flags)

	fd, err := f.fs.engine.Open(p)
	if err != nil {
		return nil, ToFuseError(err)
	}

	// Content changes under replay, so the page cache cannot be trusted.
	resp.Flags |= fuse.OpenDirectIO
	return &Handle{file: f, fd: fd}, nil
}

// Fsync implements the NodeFsyncer interface. There is nothing to flush.
func (f *File) Fsync(_ context.Context, _ *fuse.FsyncRequest) error {
	return nil
}

// Handle is an open file. Reads and writes resolve the file's current path
// on every call so a rename while open is harmless.
type Handle struct {
	file *File
	fd   uint64
}

// Read implements the HandleReader interface.
func (h *Handle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	p := h.file.Path()
	fileLogger.Trace("Reading %d bytes from file %q at offset %d", req.Size, p, req.Offset)

	data, err := h.file.fs.engine.Read(p, req.Size, req.Offset)
	if err != nil {
		return ToFuseError(err)
	}
	resp.Data = data
	return nil
}

// Write implements the HandleWriter interface.
func (h *Handle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	p := h.file.Path()
	fileLogger.Trace("Writing %d bytes to file %q at offset %d", len(req.Data), p, req.Offset)

	n, err := h.file.fs.engine.Write(p, req.Data, req.Offset)
	if err != nil {
		return ToFuseError(err)
	}
	resp.Size = n
	return nil
}

// Release implements the HandleReleaser interface.
func (h *Handle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	fileLogger.Debug("Closing file %q (fd %d)", h.file.Path(), h.fd)
	return nil
}

// Symlink represents a symbolic link.
type Symlink struct {
	node
}

func (s *Symlink) matches(rec *store.Record) bool {
	return rec.IsSymlink()
}

// Readlink implements the NodeReadlinker interface.
func (s *Symlink) Readlink(_ context.Context, _ *fuse.ReadlinkRequest) (string, error) {
	target, err := s.fs.engine.Readlink(s.Path())
	if err != nil {
		return "", ToFuseError(err)
	}
	return target, nil
}
