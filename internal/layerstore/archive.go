//go:build linux
// +build linux

package layerstore

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"
)

// whiteoutPrefix marks a tar entry that deletes a lower-layer file.
const whiteoutPrefix = ".wh."

// opaqueWhiteout marks a tar entry that hides an entire lower
// directory's contents.
const opaqueWhiteout = ".wh..wh..opq"

const (
	overlayOpaqueXattr = "trusted.overlay.opaque"
	overlayOpaqueValue = "y"
)

// TarDiff tars the contents of diffDir (recursively, paths relative to
// diffDir) into w. Used by commit to produce the uncompressed layer
// tar whose digest becomes the config's diff_id.
func TarDiff(diffDir string, w io.Writer) error {
	tw := tar.NewWriter(w)
	defer tw.Close()

	var entries []string
	err := filepath.Walk(diffDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == diffDir {
			return nil
		}
		entries = append(entries, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk diff directory: %w", err)
	}
	sort.Strings(entries)

	for _, path := range entries {
		if err := writeTarEntry(tw, diffDir, path); err != nil {
			return err
		}
	}
	return nil
}

func writeTarEntry(tw *tar.Writer, base, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("lstat %s: %w", path, err)
	}

	rel, err := filepath.Rel(base, path)
	if err != nil {
		return fmt.Errorf("relativize %s: %w", path, err)
	}

	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		link, err = os.Readlink(path)
		if err != nil {
			return fmt.Errorf("readlink %s: %w", path, err)
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("build tar header for %s: %w", path, err)
	}
	header.Name = filepath.ToSlash(rel)

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar header for %s: %w", path, err)
	}

	if info.Mode().IsRegular() {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		_, err = io.Copy(tw, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("copy %s into tar: %w", path, err)
		}
	}
	return nil
}

// Gzip copies r through a gzip compressor into w.
func Gzip(w io.Writer, r io.Reader) error {
	gz := gzip.NewWriter(w)
	if _, err := io.Copy(gz, r); err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	return gz.Close()
}

// ExtractTarGzInto extracts r (gzip auto-detected by magic bytes) into
// destDir, handling whiteouts per OCI layer/overlayfs conventions.
func ExtractTarGzInto(r io.Reader, destDir string) error {
	tr, err := newTarReader(r)
	if err != nil {
		return fmt.Errorf("open tar stream: %w", err)
	}
	return extractTar(tr, destDir)
}

func newTarReader(r io.Reader) (*tar.Reader, error) {
	buf := make([]byte, 2)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	mr := io.MultiReader(strings.NewReader(string(buf[:n])), r)

	if n >= 2 && buf[0] == 0x1f && buf[1] == 0x8b {
		gz, err := gzip.NewReader(mr)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return tar.NewReader(gz), nil
	}
	return tar.NewReader(mr), nil
}

func extractTar(tr *tar.Reader, destDir string) error {
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		cleanName := filepath.Clean(header.Name)
		if strings.HasPrefix(cleanName, "..") || filepath.IsAbs(cleanName) {
			return fmt.Errorf("invalid path in tar: %s", header.Name)
		}
		target := filepath.Join(destDir, cleanName)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
			return fmt.Errorf("path traversal detected: %s", header.Name)
		}

		baseName := filepath.Base(cleanName)
		if strings.HasPrefix(baseName, whiteoutPrefix) {
			if err := handleWhiteout(destDir, cleanName); err != nil {
				return fmt.Errorf("handle whiteout %s: %w", cleanName, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create parent directory for %s: %w", cleanName, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("create directory %s: %w", cleanName, err)
			}
		case tar.TypeReg, tar.TypeRegA:
			if err := extractRegularFile(tr, target, header); err != nil {
				return fmt.Errorf("extract file %s: %w", cleanName, err)
			}
		case tar.TypeSymlink:
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create symlink %s: %w", cleanName, err)
			}
		case tar.TypeLink:
			linkTarget := filepath.Join(destDir, filepath.Clean(header.Linkname))
			os.Remove(target)
			if err := os.Link(linkTarget, target); err != nil {
				return fmt.Errorf("create hard link %s: %w", cleanName, err)
			}
		case tar.TypeChar, tar.TypeBlock:
			// Device nodes require CAP_MKNOD and are not needed for the
			// core's on-disk staging; the runtime executor provides /dev.
			continue
		case tar.TypeFifo:
			os.Remove(target)
			if err := unix.Mkfifo(target, uint32(header.Mode)); err != nil {
				return fmt.Errorf("create fifo %s: %w", cleanName, err)
			}
		default:
			continue
		}
	}
}

func extractRegularFile(tr *tar.Reader, target string, header *tar.Header) error {
	os.Remove(target)
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
	if err != nil {
		return err
	}
	_, err = io.Copy(f, tr)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// handleWhiteout processes a whiteout entry, deleting the shadowed
// lower-layer file (as an overlayfs char-device whiteout) or marking a
// directory opaque (via the trusted.overlay.opaque xattr).
func handleWhiteout(destDir, whiteoutPath string) error {
	baseName := filepath.Base(whiteoutPath)
	dirName := filepath.Dir(whiteoutPath)

	if baseName == opaqueWhiteout {
		opaqueDir := filepath.Join(destDir, dirName)
		if err := os.MkdirAll(opaqueDir, 0o755); err != nil {
			return err
		}
		if err := unix.Setxattr(opaqueDir, overlayOpaqueXattr, []byte(overlayOpaqueValue), 0); err != nil {
			return fmt.Errorf("set opaque xattr on %s: %w", opaqueDir, err)
		}
		return nil
	}

	deletedFile := strings.TrimPrefix(baseName, whiteoutPrefix)
	if deletedFile == "" {
		return fmt.Errorf("invalid whiteout entry: %s", whiteoutPath)
	}
	target := filepath.Join(destDir, dirName, deletedFile)

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	_ = os.RemoveAll(target)

	mode := uint32(unix.S_IFCHR | 0o600)
	dev := int(unix.Mkdev(0, 0))
	if err := unix.Mknod(target, mode, dev); err != nil {
		return fmt.Errorf("create whiteout device %s: %w", target, err)
	}
	return nil
}

// IsEmptyDir reports whether dir contains no entries (or doesn't exist).
func IsEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
