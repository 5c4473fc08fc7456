package fs

import (
	"context"
	"sync"
	"time"

	"undofs/internal/logging"
	"undofs/internal/store"

	"bazil.org/fuse"
)

var (
	nodeLogger = logging.GetLogger().WithPrefix("node")
)

// node carries what every entry kind shares: the owning FS and the
// current path, which rename updates in place.
type node struct {
	fs   *FS
	mu   sync.RWMutex
	path string
}

// Path returns the store path the node currently stands for.
func (n *node) Path() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.path
}

func (n *node) setPath(p string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = p
}

// Attr implements the Node interface, copying the record into a.
func (n *node) Attr(_ context.Context, a *fuse.Attr) error {
	p := n.Path()
	rec, err := n.fs.engine.Getattr(p)
	if err != nil {
		nodeLogger.Trace("Getattr %q: %v", p, err)
		return ToFuseError(err)
	}
	fillAttr(rec, a)
	return nil
}

func fillAttr(rec *store.Record, a *fuse.Attr) {
	a.Mode = rec.Mode
	a.Size = safeInt64ToUint64(rec.Size)
	a.Nlink = rec.Nlink
	a.Uid = rec.Uid
	a.Gid = rec.Gid
	a.Atime = rec.Atime
	a.Mtime = rec.Mtime
	a.Ctime = rec.Ctime
	a.BlockSize = 512
	a.Blocks = safeInt64ToUint64((rec.Size + 511) / 512)
}

// Setattr implements the NodeSetattrer interface. Each changed field is
// its own primitive: size truncates, mode chmods, uid/gid chown and times
// utimens.
func (n *node) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	p := n.Path()
	e := n.fs.engine
	nodeLogger.Debug("Setattr %q (valid=%v)", p, req.Valid)

	if req.Valid.Size() {
		if err := e.Truncate(p, safeUint64ToInt64(req.Size)); err != nil {
			return ToFuseError(err)
		}
	}
	if req.Valid.Mode() {
		if err := e.Chmod(p, req.Mode); err != nil {
			return ToFuseError(err)
		}
	}
	if req.Valid.Uid() || req.Valid.Gid() {
		rec, err := e.Getattr(p)
		if err != nil {
			return ToFuseError(err)
		}
		uid, gid := rec.Uid, rec.Gid
		if req.Valid.Uid() {
			uid = req.Uid
		}
		if req.Valid.Gid() {
			gid = req.Gid
		}
		if err := e.Chown(p, uid, gid); err != nil {
			return ToFuseError(err)
		}
	}
	if req.Valid.Atime() || req.Valid.Mtime() || req.Valid.AtimeNow() || req.Valid.MtimeNow() {
		rec, err := e.Getattr(p)
		if err != nil {
			return ToFuseError(err)
		}
		atime := pickTime(req.Valid.Atime(), req.Valid.AtimeNow(), req.Atime, rec.Atime)
		mtime := pickTime(req.Valid.Mtime(), req.Valid.MtimeNow(), req.Mtime, rec.Mtime)
		if err := e.Utimens(p, atime, mtime); err != nil {
			return ToFuseError(err)
		}
	}

	return n.Attr(ctx, &resp.Attr)
}

// pickTime resolves one utimens argument. The zero time asks the store
// for the current time.
func pickTime(set, now bool, requested, current time.Time) time.Time {
	switch {
	case now:
		return time.Time{}
	case set:
		return requested
	default:
		return current
	}
}

// Getxattr implements the NodeGetxattrer interface.
func (n *node) Getxattr(_ context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	value, err := n.fs.engine.GetXattr(n.Path(), req.Name)
	if err != nil {
		return ToFuseError(err)
	}
	resp.Xattr = value
	return nil
}

// Listxattr implements the NodeListxattrer interface.
func (n *node) Listxattr(_ context.Context, _ *fuse.ListxattrRequest, resp *fuse.ListxattrResponse) error {
	names, err := n.fs.engine.ListXattr(n.Path())
	if err != nil {
		return ToFuseError(err)
	}
	resp.Append(names...)
	return nil
}

// Setxattr implements the NodeSetxattrer interface.
func (n *node) Setxattr(_ context.Context, req *fuse.SetxattrRequest) error {
	p := n.Path()
	nodeLogger.Debug("Setting xattr %q on %q (%d bytes)", req.Name, p, len(req.Xattr))
	return ToFuseError(n.fs.engine.SetXattr(p, req.Name, req.Xattr))
}

// Removexattr implements the NodeRemovexattrer interface.
func (n *node) Removexattr(_ context.Context, req *fuse.RemovexattrRequest) error {
	p := n.Path()
	nodeLogger.Debug("Removing xattr %q from %q", req.Name, p)
	return ToFuseError(n.fs.engine.RemoveXattr(p, req.Name))
}
