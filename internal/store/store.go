package store

import (
	"bytes"
	"os"
	"sort"
	"time"

	"undofs/internal/logging"
)

var (
	storeLogger = logging.GetLogger().WithPrefix("store")
)

const permBits = os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky

// DefaultMaxFileSize bounds the content of a single entry.
const DefaultMaxFileSize int64 = 64 << 20

// StatFS describes the (fixed) capacity reported for the store.
type StatFS struct {
	BlockSize uint32
	Blocks    uint64
	Available uint64
	Files     uint64
}

// Store owns the path to record and path to content mappings. It knows
// nothing about journaling and is not safe for concurrent use; the engine
// serializes every call.
type Store struct {
	records map[string]*Record
	content map[string][]byte
	nextFD  uint64
	maxSize int64
	uid     uint32
	gid     uint32
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithOwner sets the uid/gid given to newly created entries.
func WithOwner(uid, gid uint32) Option {
	return func(s *Store) {
		s.uid = uid
		s.gid = gid
	}
}

// WithMaxFileSize sets the largest content a write or truncate may
// produce. Non-positive values keep the default.
func WithMaxFileSize(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// WithClock replaces time.Now as the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store holding only the root directory.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]*Record),
		content: make(map[string][]byte),
		maxSize: DefaultMaxFileSize,
		uid:     safeIntToUint32(os.Getuid()),
		gid:     safeIntToUint32(os.Getgid()),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	now := s.now()
	s.records[RootPath] = &Record{
		Mode:  os.ModeDir | 0755,
		Uid:   s.uid,
		Gid:   s.gid,
		Nlink: 2,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	s.content[RootPath] = []byte{}
	return s
}

// MaxFileSize returns the content size limit.
func (s *Store) MaxFileSize() int64 {
	return s.maxSize
}

// Owner returns the uid/gid assigned to new entries.
func (s *Store) Owner() (uint32, uint32) {
	return s.uid, s.gid
}

func (s *Store) lookup(op, p string) (string, *Record, error) {
	cleaned := Clean(p)
	rec, ok := s.records[cleaned]
	if !ok {
		return "", nil, newError(op, p, ErrNotFound)
	}
	return cleaned, rec, nil
}

func (s *Store) root() *Record {
	return s.records[RootPath]
}

// insert adds a record and charges its footprint to the root.
func (s *Store) insert(p string, rec *Record, data []byte) {
	s.records[p] = rec
	s.content[p] = data
	root := s.root()
	root.Size += footprint(rec)
	if rec.IsDir() {
		root.Nlink++
	}
}

// remove drops a record and refunds its footprint.
func (s *Store) remove(p string) {
	rec := s.records[p]
	root := s.root()
	root.Size -= footprint(rec)
	if rec.IsDir() {
		root.Nlink--
	}
	delete(s.records, p)
	delete(s.content, p)
}

func (s *Store) newRecord(mode os.FileMode, nlink uint32, size int64) *Record {
	now := s.now()
	return &Record{
		Mode:  mode,
		Uid:   s.uid,
		Gid:   s.gid,
		Nlink: nlink,
		Size:  size,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
}

// Create adds an empty regular file and returns a new descriptor number.
func (s *Store) Create(p string, perm os.FileMode) (uint64, error) {
	p, err := validLeaf(OpCreate, p)
	if err != nil {
		return 0, err
	}
	if _, exists := s.records[p]; exists {
		return 0, newError(OpCreate, p, ErrExists)
	}

	s.insert(p, s.newRecord(perm&permBits, 1, 0), []byte{})
	s.nextFD++
	storeLogger.Trace("Created %q (mode %v, fd %d)", p, perm&permBits, s.nextFD)
	return s.nextFD, nil
}

// Mkdir adds an empty directory.
func (s *Store) Mkdir(p string, perm os.FileMode) error {
	p, err := validLeaf(OpMkdir, p)
	if err != nil {
		return err
	}
	if _, exists := s.records[p]; exists {
		return newError(OpMkdir, p, ErrExists)
	}

	s.insert(p, s.newRecord(os.ModeDir|perm&permBits, 2, 0), []byte{})
	storeLogger.Trace("Created directory %q", p)
	return nil
}

// Symlink creates a link at target whose content is the literal source.
func (s *Store) Symlink(target, source string) error {
	target, err := validLeaf(OpSymlink, target)
	if err != nil {
		return err
	}
	if _, exists := s.records[target]; exists {
		return newError(OpSymlink, target, ErrExists)
	}

	s.insert(target, s.newRecord(os.ModeSymlink|0777, 1, int64(len(source))), []byte(source))
	storeLogger.Trace("Created symlink %q -> %q", target, source)
	return nil
}

// Write overlays data at offset, zero-filling any gap, and returns the
// number of bytes accepted, which is always len(data).
func (s *Store) Write(p string, data []byte, offset int64) (int, error) {
	p, rec, err := s.lookup(OpWrite, p)
	if err != nil {
		return 0, err
	}
	if rec.IsDir() {
		return 0, newError(OpWrite, p, ErrIsDir)
	}
	if offset < 0 {
		return 0, newError(OpWrite, p, ErrInvalidArgument)
	}
	// Compared by subtraction so offset+len cannot overflow.
	if offset > s.maxSize || int64(len(data)) > s.maxSize-offset {
		return 0, newError(OpWrite, p, ErrFileTooBig)
	}

	old := s.content[p]
	end := offset + int64(len(data))
	size := int64(len(old))
	if end > size {
		size = end
	}
	updated := make([]byte, size)
	copy(updated, old)
	copy(updated[offset:], data)

	s.content[p] = updated
	rec.Size = size
	rec.Mtime = s.now()
	return len(data), nil
}

// Truncate cuts or zero-extends the content to length bytes.
func (s *Store) Truncate(p string, length int64) error {
	p, rec, err := s.lookup(OpTruncate, p)
	if err != nil {
		return err
	}
	if rec.IsDir() {
		return newError(OpTruncate, p, ErrIsDir)
	}
	if length < 0 {
		return newError(OpTruncate, p, ErrInvalidArgument)
	}
	if length > s.maxSize {
		return newError(OpTruncate, p, ErrFileTooBig)
	}

	updated := make([]byte, length)
	copy(updated, s.content[p])
	s.content[p] = updated

	now := s.now()
	rec.Size = length
	rec.Mtime = now
	rec.Ctime = now
	return nil
}

// Unlink removes a non-directory entry.
func (s *Store) Unlink(p string) error {
	p, err := validLeaf(OpUnlink, p)
	if err != nil {
		return err
	}
	_, rec, err := s.lookup(OpUnlink, p)
	if err != nil {
		return err
	}
	if rec.IsDir() {
		return newError(OpUnlink, p, ErrIsDir)
	}

	s.remove(p)
	storeLogger.Trace("Unlinked %q", p)
	return nil
}

// Rmdir removes a directory. Directories never have children in a
// single-level store, so only the type is checked.
func (s *Store) Rmdir(p string) error {
	p, err := validLeaf(OpRmdir, p)
	if err != nil {
		return err
	}
	_, rec, err := s.lookup(OpRmdir, p)
	if err != nil {
		return err
	}
	if !rec.IsDir() {
		return newError(OpRmdir, p, ErrNotDir)
	}

	s.remove(p)
	storeLogger.Trace("Removed directory %q", p)
	return nil
}

// Rename moves the record and content from oldPath to newPath, replacing
// any existing entry at newPath, and refreshes the change time.
func (s *Store) Rename(oldPath, newPath string) error {
	oldPath, err := validLeaf(OpRename, oldPath)
	if err != nil {
		return err
	}
	newPath, err = validLeaf(OpRename, newPath)
	if err != nil {
		return err
	}
	_, rec, err := s.lookup(OpRename, oldPath)
	if err != nil {
		return err
	}
	if oldPath == newPath {
		return nil
	}

	if existing, ok := s.records[newPath]; ok {
		switch {
		case existing.IsDir() && !rec.IsDir():
			return newError(OpRename, newPath, ErrIsDir)
		case !existing.IsDir() && rec.IsDir():
			return newError(OpRename, newPath, ErrNotDir)
		}
		s.remove(newPath)
	}

	s.records[newPath] = rec
	s.content[newPath] = s.content[oldPath]
	delete(s.records, oldPath)
	delete(s.content, oldPath)
	rec.Ctime = s.now()
	storeLogger.Trace("Renamed %q -> %q", oldPath, newPath)
	return nil
}

// Chmod replaces the permission bits, keeping the type bits.
func (s *Store) Chmod(p string, mode os.FileMode) error {
	_, rec, err := s.lookup(OpChmod, p)
	if err != nil {
		return err
	}
	rec.Mode = rec.Mode&os.ModeType | mode&permBits
	rec.Ctime = s.now()
	return nil
}

// Chown sets the owner ids.
func (s *Store) Chown(p string, uid, gid uint32) error {
	_, rec, err := s.lookup(OpChown, p)
	if err != nil {
		return err
	}
	rec.Uid = uid
	rec.Gid = gid
	rec.Ctime = s.now()
	return nil
}

// Utimens sets access and modification times. A zero time means now.
func (s *Store) Utimens(p string, atime, mtime time.Time) error {
	_, rec, err := s.lookup(OpUtimens, p)
	if err != nil {
		return err
	}
	now := s.now()
	if atime.IsZero() {
		atime = now
	}
	if mtime.IsZero() {
		mtime = now
	}
	rec.Atime = atime
	rec.Mtime = mtime
	return nil
}

// SetXattr stores a copy of value under name.
func (s *Store) SetXattr(p, name string, value []byte) error {
	return s.patch(OpSetXattr, p, func(rec *Record) {
		if rec.Xattrs == nil {
			rec.Xattrs = make(map[string][]byte)
		}
		rec.Xattrs[name] = bytes.Clone(value)
	})
}

// RemoveXattr deletes the named attribute.
func (s *Store) RemoveXattr(p, name string) error {
	_, rec, err := s.lookup(OpRemoveXattr, p)
	if err != nil {
		return err
	}
	if _, ok := rec.Xattrs[name]; !ok {
		return newError(OpRemoveXattr, p, ErrNoAttr)
	}
	return s.patch(OpRemoveXattr, p, func(rec *Record) {
		delete(rec.Xattrs, name)
		if len(rec.Xattrs) == 0 {
			rec.Xattrs = nil
		}
	})
}

// GetXattr returns a copy of the named attribute.
func (s *Store) GetXattr(p, name string) ([]byte, error) {
	_, rec, err := s.lookup(OpGetXattr, p)
	if err != nil {
		return nil, err
	}
	value, ok := rec.Xattrs[name]
	if !ok {
		return nil, newError(OpGetXattr, p, ErrNoAttr)
	}
	return bytes.Clone(value), nil
}

// ListXattr returns the attribute names in sorted order.
func (s *Store) ListXattr(p string) ([]string, error) {
	_, rec, err := s.lookup(OpListXattr, p)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rec.Xattrs))
	for name := range rec.Xattrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Getattr returns a copy of the record at p.
func (s *Store) Getattr(p string) (*Record, error) {
	_, rec, err := s.lookup(OpGetattr, p)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Open marks the entry accessed and hands out a new descriptor number.
func (s *Store) Open(p string) (uint64, error) {
	_, rec, err := s.lookup(OpOpen, p)
	if err != nil {
		return 0, err
	}
	rec.Atime = s.now()
	s.nextFD++
	return s.nextFD, nil
}

// Read returns up to size bytes starting at offset. Only the access time
// changes.
func (s *Store) Read(p string, size int, offset int64) ([]byte, error) {
	p, rec, err := s.lookup(OpRead, p)
	if err != nil {
		return nil, err
	}
	if offset < 0 || size < 0 {
		return nil, newError(OpRead, p, ErrInvalidArgument)
	}
	rec.Atime = s.now()

	data := s.content[p]
	if offset >= int64(len(data)) {
		return []byte{}, nil
	}
	end := offset + int64(size)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return bytes.Clone(data[offset:end]), nil
}

// Readdir lists the names inside the directory p, sorted.
func (s *Store) Readdir(p string) ([]string, error) {
	p, rec, err := s.lookup(OpReaddir, p)
	if err != nil {
		return nil, err
	}
	if !rec.IsDir() {
		return nil, newError(OpReaddir, p, ErrNotDir)
	}
	rec.Atime = s.now()

	if p != RootPath {
		return []string{}, nil
	}
	names := make([]string, 0, len(s.records)-1)
	for path := range s.records {
		if path != RootPath {
			names = append(names, path[1:])
		}
	}
	sort.Strings(names)
	return names, nil
}

// Readlink returns a symlink's target.
func (s *Store) Readlink(p string) (string, error) {
	p, rec, err := s.lookup(OpReadlink, p)
	if err != nil {
		return "", err
	}
	if !rec.IsSymlink() {
		return "", newError(OpReadlink, p, ErrInvalidArgument)
	}
	rec.Atime = s.now()
	return string(s.content[p]), nil
}

// Statfs reports fixed capacity figures.
func (s *Store) Statfs() StatFS {
	return StatFS{
		BlockSize: 512,
		Blocks:    4096,
		Available: 2048,
		Files:     uint64(len(s.records)),
	}
}

// Restore reinserts a copy of rec and data at p, charging the root as a
// create would. Replay uses it to bring back removed entries.
func (s *Store) Restore(p string, rec *Record, data []byte) error {
	p, err := validLeaf(OpRestore, p)
	if err != nil {
		return err
	}
	if _, exists := s.records[p]; exists {
		return newError(OpRestore, p, ErrExists)
	}
	s.insert(p, rec.Clone(), bytes.Clone(data))
	return nil
}

// Patch applies fn to the live record at p. Footprint changes caused by fn
// are carried over to the root size.
func (s *Store) Patch(p string, fn func(rec *Record)) error {
	return s.patch(OpRestore, p, fn)
}

func (s *Store) patch(op, p string, fn func(rec *Record)) error {
	p, rec, err := s.lookup(op, p)
	if err != nil {
		return err
	}
	before := footprint(rec)
	fn(rec)
	if p != RootPath {
		s.root().Size += footprint(rec) - before
	}
	return nil
}

// Content returns a copy of the content stored at p.
func (s *Store) Content(p string) ([]byte, error) {
	p, _, err := s.lookup(OpRead, p)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(s.content[p]), nil
}

// SetContent replaces the content at p with a copy of data. Metadata is
// left to the caller.
func (s *Store) SetContent(p string, data []byte) error {
	p, _, err := s.lookup(OpWrite, p)
	if err != nil {
		return err
	}
	s.content[p] = bytes.Clone(data)
	return nil
}

// Exists reports whether p has a record.
func (s *Store) Exists(p string) bool {
	_, ok := s.records[Clean(p)]
	return ok
}

// Paths returns every live path, root included, sorted.
func (s *Store) Paths() []string {
	paths := make([]string, 0, len(s.records))
	for p := range s.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// RootSize returns the aggregate size estimate kept on the root.
func (s *Store) RootSize() int64 {
	return s.root().Size
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}
