package builder

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocibuilder/ocibuilder/internal/layerstore"
)

// Copy copies src from the host into dest inside container's mounted
// rootfs, preserving permissions verbatim, and returns the SHA-256 of
// src (or of its last visited child if src is a directory).
func (b *Builder) Copy(container, src, dest string, addHistory bool) (string, error) {
	var result string
	err := b.withLock(func() error {
		d, err := b.copy(container, src, dest, addHistory)
		result = d
		return err
	})
	return result, err
}

func (b *Builder) copy(containerName, src, dest string, addHistory bool) (string, error) {
	return b.copyOrAdd(containerName, src, dest, addHistory, false)
}

// Add behaves like Copy, except sources that are gzipped-tar or
// plain-tar archives (detected by magic bytes) are extracted into dest
// rather than copied verbatim; ownership is not preserved either way.
func (b *Builder) Add(container, src, dest string, addHistory bool) (string, error) {
	var result string
	err := b.withLock(func() error {
		d, err := b.add(container, src, dest, addHistory)
		result = d
		return err
	})
	return result, err
}

func (b *Builder) add(containerName, src, dest string, addHistory bool) (string, error) {
	return b.copyOrAdd(containerName, src, dest, addHistory, true)
}

func (b *Builder) copyOrAdd(containerName, src, dest string, addHistory, extract bool) (string, error) {
	cntID, err := b.Containers.ContainerDigest(containerName)
	if err != nil {
		return "", err
	}
	record, err := b.Containers.ContainerByDigest(cntID)
	if err != nil {
		return "", err
	}

	mountPoint, err := b.mountTopLayer(record)
	if err != nil {
		return "", err
	}
	defer layerstore.UnmountOverlay(mountPoint)

	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}

	target := filepath.Join(mountPoint, dest)
	var srcDigest digest.Digest

	if extract && !info.IsDir() {
		isArchive, err := isTarArchive(src)
		if err != nil {
			return "", err
		}
		if isArchive {
			srcDigest, err = hashFile(src)
			if err != nil {
				return "", err
			}
			f, err := os.Open(src)
			if err != nil {
				return "", fmt.Errorf("open source: %w", err)
			}
			defer f.Close()
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", fmt.Errorf("create destination: %w", err)
			}
			if err := layerstore.ExtractTarGzInto(f, target); err != nil {
				return "", fmt.Errorf("extract archive: %w", err)
			}
			return finishCopyOrAdd(b, cntID, addHistory, src, dest, srcDigest)
		}
	}

	if info.IsDir() {
		srcDigest, err = copyTree(src, target)
	} else {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", fmt.Errorf("create destination directory: %w", err)
		}
		srcDigest, err = copyFile(src, target, info.Mode())
	}
	if err != nil {
		return "", err
	}

	return finishCopyOrAdd(b, cntID, addHistory, src, dest, srcDigest)
}

func finishCopyOrAdd(b *Builder, cntID string, addHistory bool, src, dest string, srcDigest digest.Digest) (string, error) {
	if addHistory {
		imgConfig, err := b.Containers.GetBuilderConfig(cntID)
		if err != nil {
			return "", err
		}
		now := time.Now().UTC()
		imgConfig.History = append(imgConfig.History, ocispec.History{
			Created:   &now,
			CreatedBy: fmt.Sprintf("COPY %s %s", src, dest),
		})
		if err := b.Containers.WriteBuilderConfig(cntID, imgConfig); err != nil {
			return "", err
		}
	}
	return srcDigest.String(), nil
}

// copyTree copies src's contents into dest recursively, preserving
// each entry's permission bits, and returns the digest of the last
// regular file visited in filepath.Walk order.
func copyTree(src, dest string) (digest.Digest, error) {
	var last digest.Digest
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("read symlink %s: %w", path, err)
			}
			return os.Symlink(link, target)
		}
		d, err := copyFile(path, target, info.Mode())
		if err != nil {
			return err
		}
		last = d
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("copy tree: %w", err)
	}
	return last, nil
}

func copyFile(src, dest string, mode os.FileMode) (digest.Digest, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source file: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create destination directory: %w", err)
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return "", fmt.Errorf("create destination file: %w", err)
	}

	digester := digest.Canonical.Digester()
	_, copyErr := io.Copy(io.MultiWriter(out, digester.Hash()), in)
	closeErr := out.Close()
	if copyErr != nil {
		return "", fmt.Errorf("copy file: %w", copyErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("close destination file: %w", closeErr)
	}
	return digester.Digest(), nil
}

func hashFile(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()
	digester := digest.Canonical.Digester()
	if _, err := io.Copy(digester.Hash(), f); err != nil {
		return "", fmt.Errorf("hash source file: %w", err)
	}
	return digester.Digest(), nil
}

// isTarArchive reports whether path looks like a gzip or plain tar
// stream, by magic bytes: the gzip header, or the ustar magic of a tar
// header block at offset 0. Pre-POSIX tar headers are not recognized.
func isTarArchive(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, fmt.Errorf("read source header: %w", err)
	}
	if n >= 2 && header[0] == 0x1f && header[1] == 0x8b {
		return true, nil
	}
	if n >= 263 && bytes.Equal(header[257:262], []byte("ustar")) {
		return true, nil
	}
	return false, nil
}
