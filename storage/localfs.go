package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	vodpipeerrors "github.com/streamforge/vodpipe/errors"
)

// LocalBackend roots a Backend under a single directory on disk (spec.md
// §4.1: the local backend roots under raw/ and processed/; the Facade
// holds one LocalBackend per root).
type LocalBackend struct {
	// BaseDir is the filesystem root this backend is scoped to.
	BaseDir string
	// RoutePrefix is the relative route Presign returns, served by an
	// external, out-of-scope file handler (SPEC_FULL.md §4.1).
	RoutePrefix string
}

func NewLocalBackend(baseDir, routePrefix string) *LocalBackend {
	return &LocalBackend{BaseDir: baseDir, RoutePrefix: routePrefix}
}

func (b *LocalBackend) resolve(objectPath string) string {
	return filepath.Join(b.BaseDir, filepath.FromSlash(objectPath))
}

func (b *LocalBackend) Put(ctx context.Context, objectPath string, data io.Reader, contentType string) error {
	full := b.resolve(objectPath)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	tmp := full + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(tmp)
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	// rename is atomic on the same filesystem, matching the "never
	// partial" put contract (spec.md §4.1).
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	return nil
}

func (b *LocalBackend) Get(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	f, err := os.Open(b.resolve(objectPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vodpipeerrors.NewNotFoundError(objectPath, err)
		}
		return nil, vodpipeerrors.NewStorageUnavailableError(err)
	}
	return f, nil
}

func (b *LocalBackend) Delete(ctx context.Context, objectPath string) error {
	err := os.Remove(b.resolve(objectPath))
	if err != nil && !os.IsNotExist(err) {
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	return nil
}

func (b *LocalBackend) DeletePrefix(ctx context.Context, prefix string) error {
	err := os.RemoveAll(b.resolve(prefix))
	if err != nil && !os.IsNotExist(err) {
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	return nil
}

func (b *LocalBackend) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := os.Stat(b.resolve(objectPath))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, vodpipeerrors.NewStorageUnavailableError(err)
}

func (b *LocalBackend) List(ctx context.Context, prefix string, delimiter string) (Listing, error) {
	root := b.resolve(prefix)
	var listing Listing
	seenPrefixes := map[string]bool{}

	err := filepath.WalkDir(root, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.BaseDir, walkPath)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasSuffix(key, ".tmp") {
			return nil
		}
		if delimiter != "" {
			afterPrefix := strings.TrimPrefix(key, strings.TrimSuffix(prefix, "/")+"/")
			if idx := strings.Index(afterPrefix, delimiter); idx >= 0 {
				commonPrefix := key[:len(key)-len(afterPrefix)] + afterPrefix[:idx+len(delimiter)]
				if !seenPrefixes[commonPrefix] {
					seenPrefixes[commonPrefix] = true
					listing.CommonPrefixes = append(listing.CommonPrefixes, commonPrefix)
				}
				return nil
			}
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		listing.Files = append(listing.Files, Entry{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return Listing{}, vodpipeerrors.NewStorageUnavailableError(err)
	}
	return listing, nil
}

func (b *LocalBackend) Presign(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	exists, err := b.Exists(ctx, objectPath)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", vodpipeerrors.NewNotFoundError(objectPath, nil)
	}
	u := url.URL{Path: path.Join(b.RoutePrefix, objectPath)}
	return u.String(), nil
}

// Compose streams an ordered append of parts into output (spec.md §4.1:
// "implementation may use... a streaming append (local)"). If any part is
// missing, no output file is created.
func (b *LocalBackend) Compose(ctx context.Context, output string, parts []string) error {
	for _, part := range parts {
		exists, err := b.Exists(ctx, part)
		if err != nil {
			return err
		}
		if !exists {
			return vodpipeerrors.NewNotFoundError(part, nil)
		}
	}

	full := b.resolve(output)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	tmp := full + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	for _, part := range parts {
		in, err := b.Get(ctx, part)
		if err != nil {
			out.Close()
			os.Remove(tmp)
			return err
		}
		_, copyErr := io.Copy(out, in)
		in.Close()
		if copyErr != nil {
			out.Close()
			os.Remove(tmp)
			return vodpipeerrors.NewStorageUnavailableError(copyErr)
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	return nil
}

var _ fmt.Stringer = (*LocalBackend)(nil)

func (b *LocalBackend) String() string {
	return fmt.Sprintf("local(%s)", b.BaseDir)
}
