// Package vfs is a minimal file layer that resolves a path either to an entry
// of a bufstore.Store (when the path is a numeric key) or to a real file.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	godocvfs "golang.org/x/tools/godoc/vfs"

	"github.com/cbegin/psgengine-go/internal/bufstore"
)

var (
	ErrNotExist  = errors.New("vfs: file does not exist")
	ErrBadFD     = errors.New("vfs: bad file descriptor")
	ErrBadWhence = errors.New("vfs: invalid whence")
)

type fileState struct {
	// memory backing
	key    uint64
	offset int64
	// real file backing
	file godocvfs.ReadSeekCloser
	size int64
}

func (f *fileState) inMemory() bool { return f.file == nil }

// FS dispatches descriptor operations on either backing. Like the store it
// wraps, FS is not safe for concurrent use.
type FS struct {
	store *bufstore.Store
	files godocvfs.FileSystem
	fds   map[int]*fileState
}

// New returns an FS over store. files may be nil, in which case only
// in-memory keys resolve.
func New(store *bufstore.Store, files godocvfs.FileSystem) *FS {
	return &FS{
		store: store,
		files: files,
		fds:   make(map[int]*fileState),
	}
}

// OS is a shorthand for New(store, vfs.OS(root)).
func OS(store *bufstore.Store, root string) *FS {
	return New(store, godocvfs.OS(root))
}

// ParseKey reports whether path names a buffer key.
func ParseKey(path string) (uint64, bool) {
	p := strings.TrimSpace(path)
	if p == "" {
		return 0, false
	}
	k, err := strconv.ParseUint(p, 10, 64)
	if err != nil || k == 0 {
		return 0, false
	}
	return k, true
}

// Open resolves path to a descriptor. A buffer key descriptor holds its own
// store reference until Close, so the data outlives other owners.
func (v *FS) Open(path string) (int, error) {
	if key, ok := ParseKey(path); ok && v.store != nil && v.store.Retain(key) {
		return v.newFD(&fileState{key: key}), nil
	}
	if v.files == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotExist, path)
	}
	f, err := v.files.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return 0, fmt.Errorf("vfs: open %s: %w", path, err)
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("vfs: size of %s: %w", path, err)
	}
	return v.newFD(&fileState{file: f, size: size}), nil
}

func (v *FS) newFD(st *fileState) int {
	fd := 1
	for v.fds[fd] != nil {
		fd++
	}
	v.fds[fd] = st
	return fd
}

func (v *FS) state(fd int) (*fileState, error) {
	st, ok := v.fds[fd]
	if !ok {
		return nil, ErrBadFD
	}
	return st, nil
}

func (v *FS) Close(fd int) error {
	st, err := v.state(fd)
	if err != nil {
		return err
	}
	delete(v.fds, fd)
	if st.inMemory() {
		v.store.Release(st.key)
		return nil
	}
	return st.file.Close()
}

func (v *FS) Read(fd int, p []byte) (int, error) {
	st, err := v.state(fd)
	if err != nil {
		return 0, err
	}
	if !st.inMemory() {
		return st.file.Read(p)
	}
	data := v.store.Get(st.key)
	if st.offset >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[st.offset:])
	st.offset += int64(n)
	return n, nil
}

func (v *FS) Seek(fd int, offset int64, whence int) (int64, error) {
	st, err := v.state(fd)
	if err != nil {
		return 0, err
	}
	if !st.inMemory() {
		return st.file.Seek(offset, whence)
	}
	size := int64(len(v.store.Get(st.key)))
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = st.offset + offset
	case io.SeekEnd:
		pos = size + offset
	default:
		return st.offset, ErrBadWhence
	}
	if pos < 0 {
		pos = 0
	}
	if pos > size {
		pos = size
	}
	st.offset = pos
	return pos, nil
}

func (v *FS) Tell(fd int) (int64, error) {
	st, err := v.state(fd)
	if err != nil {
		return 0, err
	}
	if st.inMemory() {
		return st.offset, nil
	}
	return st.file.Seek(0, io.SeekCurrent)
}

// Size returns the total size in bytes of the descriptor's backing.
func (v *FS) Size(fd int) (int64, error) {
	st, err := v.state(fd)
	if err != nil {
		return 0, err
	}
	if st.inMemory() {
		return int64(len(v.store.Get(st.key))), nil
	}
	return st.size, nil
}

// Open descriptors, lowest first.
func (v *FS) Descriptors() []int {
	out := make([]int, 0, len(v.fds))
	for fd := range v.fds {
		out = append(out, fd)
	}
	sort.Ints(out)
	return out
}

// File wraps fd as an io.ReadSeekCloser; closing it closes the descriptor.
func (v *FS) File(fd int) (io.ReadSeekCloser, error) {
	if _, err := v.state(fd); err != nil {
		return nil, err
	}
	return &descriptor{fs: v, fd: fd}, nil
}

type descriptor struct {
	fs *FS
	fd int
}

func (d *descriptor) Read(p []byte) (int, error) { return d.fs.Read(d.fd, p) }

func (d *descriptor) Seek(offset int64, whence int) (int64, error) {
	return d.fs.Seek(d.fd, offset, whence)
}

func (d *descriptor) Close() error { return d.fs.Close(d.fd) }
