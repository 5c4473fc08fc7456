package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"undofs/internal/engine"
	"undofs/internal/logging"
	"undofs/internal/store"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
	"github.com/avast/retry-go/v4"
	"golang.org/x/sys/unix"
)

var (
	vfsLogger = logging.GetLogger().WithPrefix("vfs")
)

// FS exposes an engine through FUSE. Every callback becomes one engine
// primitive; nodes are cached per path so the kernel sees a stable node
// for a path across renames and replays.
type FS struct {
	engine *engine.Engine
	root   *Dir

	mu    sync.Mutex
	nodes map[string]pathNode

	conn       *fuse.Conn
	server     *fusefs.Server
	mountPoint string
	done       chan struct{}
}

// New creates the dispatcher for e. Nothing is mounted until Mount.
func New(e *engine.Engine) *FS {
	f := &FS{
		engine: e,
		nodes:  make(map[string]pathNode),
		done:   make(chan struct{}),
	}
	f.root = &Dir{node: node{fs: f, path: store.RootPath}}
	f.nodes[store.RootPath] = f.root
	return f
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (f *FS) Root() (fusefs.Node, error) {
	vfsLogger.Trace("Getting root directory node")
	return f.root, nil
}

// Statfs implements the fusefs.FSStatfser interface.
func (f *FS) Statfs(_ context.Context, _ *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	st := f.engine.Statfs()
	resp.Bsize = st.BlockSize
	resp.Frsize = st.BlockSize
	resp.Blocks = st.Blocks
	resp.Bfree = st.Available
	resp.Bavail = st.Available
	resp.Files = st.Files
	resp.Namelen = 255
	return nil
}

// lookup returns the cached node for p, replacing it when the entry at p
// changed type since it was cached.
func (f *FS) lookup(p string) (fusefs.Node, error) {
	rec, err := f.engine.Getattr(p)
	if err != nil {
		return nil, err
	}
	p = store.Clean(p)

	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[p]; ok && n.matches(rec) {
		return n, nil
	}
	n := f.newNode(p, rec)
	f.nodes[p] = n
	return n, nil
}

func (f *FS) newNode(p string, rec *store.Record) pathNode {
	switch {
	case rec.IsDir():
		return &Dir{node: node{fs: f, path: p}}
	case rec.IsSymlink():
		return &Symlink{node: node{fs: f, path: p}}
	default:
		return &File{node: node{fs: f, path: p}}
	}
}

func (f *FS) cached(p string) (pathNode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[p]
	return n, ok
}

// forget drops the node cached for p.
func (f *FS) forget(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nodes, p)
}

// move re-keys the node cached at oldPath under newPath.
func (f *FS) move(oldPath, newPath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[oldPath]
	delete(f.nodes, oldPath)
	delete(f.nodes, newPath)
	if ok {
		n.setPath(newPath)
		f.nodes[newPath] = n
	}
}

// Mount mounts the filesystem on mountPoint, serves it in the background
// and waits up to timeout for the kernel to report the mount.
func (f *FS) Mount(ctx context.Context, mountPoint string, timeout time.Duration) error {
	vfsLogger.Info("Mounting virtual filesystem")
	vfsLogger.Debug("Mount point: %s", mountPoint)

	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return fmt.Errorf("mount point not usable: %w", err)
	}

	mountOpts := []fuse.MountOption{
		fuse.FSName("undofs"),
		fuse.Subtype("undofs"),
	}
	vfsLogger.Debug("Mounting with options: %+v", mountOpts)

	c, err := fuse.Mount(mountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}
	f.conn = c
	f.mountPoint = mountPoint
	f.server = fusefs.New(c, &fusefs.Config{
		Debug: func(msg interface{}) {
			vfsLogger.Trace("%v", msg)
		},
	})

	go func() {
		defer close(f.done)
		if err := f.server.Serve(f); err != nil {
			vfsLogger.Error("FUSE server error: %v", err)
		}
		vfsLogger.Debug("FUSE server stopped")
	}()

	if err := waitForMount(ctx, mountPoint, timeout); err != nil {
		_ = fuse.Unmount(mountPoint)
		c.Close()
		vfsLogger.Error("Mount point not ready: %v", err)
		return fmt.Errorf("mount point failed to initialize: %w", err)
	}

	vfsLogger.Info("Filesystem mounted successfully")
	return nil
}

var errNotMounted = errors.New("not mounted yet")

// waitForMount polls until mountPoint sits on a different device than its
// parent directory.
func waitForMount(ctx context.Context, mountPoint string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	parent := filepath.Dir(filepath.Clean(mountPoint))
	return retry.Do(
		func() error {
			var mp, pp unix.Stat_t
			if err := unix.Stat(mountPoint, &mp); err != nil {
				return err
			}
			if err := unix.Stat(parent, &pp); err != nil {
				return retry.Unrecoverable(err)
			}
			if mp.Dev == pp.Dev {
				return errNotMounted
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(20*time.Millisecond),
		retry.MaxDelay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// Unmount cleanly unmounts the filesystem and waits for the server to stop.
func (f *FS) Unmount() error {
	if f.conn == nil {
		return nil
	}
	vfsLogger.Info("Unmounting filesystem from: %s", f.mountPoint)
	if err := fuse.Unmount(f.mountPoint); err != nil {
		vfsLogger.Error("Unmount failed: %v", err)
		return err
	}
	<-f.done
	err := f.conn.Close()
	f.conn = nil
	vfsLogger.Info("Unmount completed successfully")
	return err
}

// Done is closed once the FUSE server has stopped.
func (f *FS) Done() <-chan struct{} {
	return f.done
}

// Invalidate follows a replay: nodes are re-keyed along the replayed
// renames, so open handles keep pointing at their file, and the kernel is
// told to drop what it cached for every touched path.
func (f *FS) Invalidate(r *engine.Replay) {
	if r == nil {
		return
	}
	for _, m := range r.Moves {
		f.move(store.Clean(m.From), store.Clean(m.To))
	}
	if f.server == nil {
		return
	}
	for _, p := range r.Paths {
		p = store.Clean(p)
		if store.IsRoot(p) {
			continue
		}
		f.invalidate(f.server.InvalidateEntry(f.root, store.Base(p)), p)
		if n, ok := f.cached(p); ok {
			f.invalidate(f.server.InvalidateNodeAttr(n), p)
			f.invalidate(f.server.InvalidateNodeData(n), p)
			if rec, err := f.engine.Getattr(p); err != nil || !n.matches(rec) {
				f.forget(p)
			}
		}
	}
	f.invalidate(f.server.InvalidateNodeAttr(f.root), store.RootPath)
	f.invalidate(f.server.InvalidateNodeData(f.root), store.RootPath)
}

func (f *FS) invalidate(err error, p string) {
	if err != nil && !errors.Is(err, fuse.ErrNotCached) {
		vfsLogger.Debug("Invalidating %q: %v", p, err)
	}
}
