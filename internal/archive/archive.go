// Package archive bundles a response cache directory into a zstd-compressed
// tar file and restores it, so a finished run's cache can be moved to
// another machine and resumed there without repeating requests.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zstd"

	"rfcoverage/internal/types"
)

// Extension is appended to bundle file names.
const Extension = ".tar.zst"

// Stats reports what Pack or Unpack processed.
type Stats struct {
	Files int
	Bytes int64
}

// Pack writes every regular file directly under dir into dst. Entries are
// stored with their base name in lexical order. The bundle is written to a
// temporary file and renamed into place.
func Pack(ctx context.Context, dir, dst string) (st Stats, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return st, types.NewAppError(types.ErrCodeInternalIO, "cannot list cache directory "+dir, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp*")
	if err != nil {
		return st, types.NewAppError(types.ErrCodeInternalIO, "cannot create bundle "+dst, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return st, err
	}
	defer func() {
		if err != nil {
			enc.Close()
		}
	}()
	tw := tar.NewWriter(enc)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		n, err := addFile(tw, filepath.Join(dir, name), name)
		if err != nil {
			return st, err
		}
		st.Files++
		st.Bytes += n
	}

	if err := tw.Close(); err != nil {
		return st, fmt.Errorf("close tar stream: %w", err)
	}
	if err := enc.Close(); err != nil {
		return st, fmt.Errorf("close zstd stream: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return st, fmt.Errorf("close bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return st, types.NewAppError(types.ErrCodeInternalIO, "cannot move bundle into place", err)
	}
	return st, nil
}

func addFile(tw *tar.Writer, path, name string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalIO, "cannot open "+path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return 0, err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("write header %s: %w", name, err)
	}
	n, err := io.Copy(tw, f)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", name, err)
	}
	return n, nil
}

// Unpack restores a bundle into dir, creating it when missing. Existing
// files are overwritten only when overwrite is set; otherwise they are kept
// and not counted. Entries that would escape dir are rejected.
func Unpack(ctx context.Context, src, dir string, overwrite bool) (Stats, error) {
	var st Stats

	f, err := os.Open(src)
	if err != nil {
		return st, types.NewAppError(types.ErrCodeInternalIO, "cannot open bundle "+src, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return st, types.NewAppError(types.ErrCodeInternalIO, "bundle is not zstd compressed", err)
	}
	defer dec.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return st, types.NewAppError(types.ErrCodeInternalIO, "cannot create "+dir, err)
	}

	tr := tar.NewReader(dec)
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, types.NewAppError(types.ErrCodeInternalIO, "corrupt bundle "+src, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Clean(hdr.Name)
		if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
			return st, types.NewAppError(types.ErrCodeValidationInvalidInput,
				fmt.Sprintf("bundle entry %q is not a plain file name", hdr.Name), nil)
		}

		path := filepath.Join(dir, name)
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				continue
			} else if !errors.Is(err, fs.ErrNotExist) {
				return st, err
			}
		}

		n, err := writeFile(path, tr)
		if err != nil {
			return st, err
		}
		st.Files++
		st.Bytes += n
	}
}

func writeFile(path string, r io.Reader) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalIO, "cannot create "+path, err)
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, types.NewAppError(types.ErrCodeInternalIO, "cannot write "+path, err)
	}
	return n, nil
}
