// Package local provides a directory-backed implementation of filestore.Store.
//
// Buckets are subdirectories of the configured root; the bucket "." is the
// root itself. Object keys use forward slashes on every platform.
package local

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/koustreak/dbspec/internal/errs"
	"github.com/koustreak/dbspec/internal/filestore"
)

// Driver is a local file system implementation of filestore.Store.
type Driver struct {
	root string
}

// New returns a Driver rooted at cfg.Root, creating the directory if needed.
func New(_ context.Context, cfg *filestore.Config) (*Driver, error) {
	if cfg.Root == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "local store needs a root directory")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, mapError(err, "failed to create root directory")
	}
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, mapError(err, "failed to resolve root directory")
	}
	return &Driver{root: abs}, nil
}

// Ping checks that the root directory is still there.
func (d *Driver) Ping(_ context.Context) error {
	st, err := os.Stat(d.root)
	if err != nil {
		return mapError(err, "ping failed")
	}
	if !st.IsDir() {
		return errs.New(errs.ErrKindInvalidInput, "root is not a directory")
	}
	return nil
}

// Close is a no-op.
func (d *Driver) Close() error { return nil }

// ListObjects walks the bucket directory. Keys are sorted.
func (d *Driver) ListObjects(ctx context.Context, bucket string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	base, err := d.bucketDir(bucket)
	if err != nil {
		return nil, err
	}
	var out []filestore.ObjectInfo
	err = filepath.WalkDir(base, func(p string, e fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == base {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if e.IsDir() {
			key += "/"
		}
		if e.IsDir() && strings.HasPrefix(opts.Prefix, key) {
			return nil // on the way down to the prefix
		}
		if !strings.HasPrefix(key, opts.Prefix) {
			if e.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if e.IsDir() {
			if !opts.Recursive {
				out = append(out, filestore.ObjectInfo{Key: key, Size: -1, IsDir: true})
				return fs.SkipDir
			}
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		out = append(out, objectInfo(key, info))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, mapError(err, "failed to list objects")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// GetObject opens the file at key.
func (d *Driver) GetObject(_ context.Context, bucket, key string) (filestore.Object, error) {
	p, err := d.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mapError(err, "failed to stat object after get")
	}
	info := objectInfo(key, st)
	return &object{ReadCloser: f, info: &info}, nil
}

// StatObject returns metadata for the file at key.
func (d *Driver) StatObject(_ context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	p, err := d.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(p)
	if err != nil {
		return nil, mapError(err, "failed to stat object")
	}
	if st.IsDir() {
		return nil, errs.Newf(errs.ErrKindNotFound, "%s is a directory", key)
	}
	info := objectInfo(key, st)
	return &info, nil
}

// PutObject writes through a temporary file and renames it into place so a
// reader never sees a half-written document.
func (d *Driver) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, contentType string) (*filestore.ObjectInfo, error) {
	p, err := d.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, mapError(err, "failed to create directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return nil, mapError(err, "failed to create object")
	}
	defer os.Remove(tmp.Name())

	h := md5.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		tmp.Close()
		return nil, mapError(err, "failed to write object")
	}
	if err := tmp.Close(); err != nil {
		return nil, mapError(err, "failed to write object")
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return nil, mapError(err, "failed to write object")
	}
	st, err := os.Stat(p)
	if err != nil {
		return nil, mapError(err, "failed to stat object after put")
	}
	info := objectInfo(key, st)
	info.ContentType = contentType
	info.ETag = hex.EncodeToString(h.Sum(nil))
	return &info, nil
}

// RemoveObject deletes the file at key and prunes directories left empty.
func (d *Driver) RemoveObject(_ context.Context, bucket, key string) error {
	p, err := d.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return mapError(err, "failed to remove object")
	}
	base, _ := d.bucketDir(bucket)
	for dir := filepath.Dir(p); dir != base && strings.HasPrefix(dir, base); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// --- helpers ---

func (d *Driver) bucketDir(bucket string) (string, error) {
	if bucket == "" || bucket == "." {
		return d.root, nil
	}
	if strings.ContainsAny(bucket, `/\`) || bucket == ".." {
		return "", errs.Newf(errs.ErrKindInvalidInput, "invalid bucket name %q", bucket)
	}
	return filepath.Join(d.root, bucket), nil
}

func (d *Driver) objectPath(bucket, key string) (string, error) {
	base, err := d.bucketDir(bucket)
	if err != nil {
		return "", err
	}
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean != "/"+key {
		return "", errs.Newf(errs.ErrKindInvalidInput, "invalid object key %q", key)
	}
	return filepath.Join(base, filepath.FromSlash(clean[1:])), nil
}

func objectInfo(key string, st fs.FileInfo) filestore.ObjectInfo {
	return filestore.ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		ContentType:  filestore.ContentTypeYAML,
		LastModified: st.ModTime(),
	}
}

// object wraps an open file and exposes filestore.Object.
type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
