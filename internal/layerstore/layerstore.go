//go:build linux
// +build linux

// Package layerstore implements the LayerStore component: a
// content-addressed blob store under <root>/overlay-layers/ and an
// overlay filesystem staging area under <root>/overlay/, where every
// layer directory carries exactly four subdirectories — diff, rootfs,
// work, tmp — as required by kernel overlayfs or fuse-overlayfs.
package layerstore

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocibuilder/ocibuilder/pkg/fileutil"
)

// LayersDescriptorFile is the name of the JSON file recording every
// layer descriptor added via AddLayerDesc and not since dropped by
// RemoveBlob.
const LayersDescriptorFile = "layers.json"

const (
	blobsDirName   = "overlay-layers"
	overlayDirName = "overlay"

	diffDirName   = "diff"
	rootfsDirName = "rootfs"
	workDirName   = "work"
	tmpDirName    = "tmp"
)

// Store is the LayerStore: a blob store plus overlay staging area
// rooted at a single directory.
type Store struct {
	root string
	mu   sync.Mutex // serializes read-modify-write of layers.json
}

// New creates (if absent) the blob and overlay roots under root and
// returns a Store bound to them.
func New(root string) (*Store, error) {
	s := &Store{root: root}
	if err := os.MkdirAll(filepath.Join(root, blobsDirName, digest.SHA256.String()), 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, overlayDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create overlay directory: %w", err)
	}
	return s, nil
}

// BlobPath is a pure path computation; no I/O.
func (s *Store) BlobPath(d digest.Digest) string {
	return filepath.Join(s.root, blobsDirName, d.Algorithm().String(), d.Encoded())
}

// OverlayDirPath is the root directory of a layer's overlay staging area.
func (s *Store) OverlayDirPath(d digest.Digest) string {
	return filepath.Join(s.root, overlayDirName, d.Encoded())
}

// OverlayDiffPath returns the layer's upper/diff directory.
func (s *Store) OverlayDiffPath(d digest.Digest) string {
	return filepath.Join(s.OverlayDirPath(d), diffDirName)
}

// OverlayRootfsPath returns the layer's merged-view mount target.
func (s *Store) OverlayRootfsPath(d digest.Digest) string {
	return filepath.Join(s.OverlayDirPath(d), rootfsDirName)
}

// OverlayWorkPath returns the layer's overlayfs scratch directory.
func (s *Store) OverlayWorkPath(d digest.Digest) string {
	return filepath.Join(s.OverlayDirPath(d), workDirName)
}

// OverlayTmpPath returns the layer's always-present fallback lowerdir,
// used when a container's rootfs_diff chain is empty (scratch).
func (s *Store) OverlayTmpPath(d digest.Digest) string {
	return filepath.Join(s.OverlayDirPath(d), tmpDirName)
}

// HasBlob reports whether the blob for d is present on disk.
func (s *Store) HasBlob(d digest.Digest) bool {
	_, err := os.Stat(s.BlobPath(d))
	return err == nil
}

// WriteBlob streams r into the blob path for d, hashing as it writes
// so the whole image is never buffered in memory (this resolves the
// spec's own open question about pull's in-memory buffering). The
// write lands in a temp file in the same directory and is renamed
// into place only after the computed digest matches d; any mismatch
// leaves no trace under the content-addressed path.
func (s *Store) WriteBlob(d digest.Digest, r io.Reader) (int64, error) {
	path := s.BlobPath(d)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create blob algorithm directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "blob-*")
	if err != nil {
		return 0, fmt.Errorf("create temp blob file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanTmp := true
	defer func() {
		if cleanTmp {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	digester := d.Algorithm().Digester()
	n, err := io.Copy(io.MultiWriter(tmp, digester.Hash()), r)
	if err != nil {
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp blob file: %w", err)
	}

	if actual := digester.Digest(); actual != d {
		return 0, fmt.Errorf("blob digest mismatch: expected %s, got %s", d, actual)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("finalize blob: %w", err)
	}
	cleanTmp = false
	return n, nil
}

// GetBlob opens the blob for reading.
func (s *Store) GetBlob(d digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.BlobPath(d))
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", d, err)
	}
	return f, nil
}

// RemoveBlob unlinks the blob file for d and drops its descriptor from
// layers.json. Removing an absent blob is not an error.
func (s *Store) RemoveBlob(d digest.Digest) error {
	if err := os.Remove(s.BlobPath(d)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob %s: %w", d, err)
	}
	return s.removeLayerDesc(d)
}

// CreateLayerOverlayDir creates the four overlay subdirectories for d.
// It fails if the layer directory already exists.
func (s *Store) CreateLayerOverlayDir(d digest.Digest) error {
	dir := s.OverlayDirPath(d)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("overlay directory already exists: %s", dir)
	}
	for _, sub := range []string{diffDirName, rootfsDirName, workDirName, tmpDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			os.RemoveAll(dir)
			return fmt.Errorf("create overlay subdirectory %s: %w", sub, err)
		}
	}
	return nil
}

// EmptyLayerOverlayDir removes and recreates the four subdirectories
// of d's overlay directory, leaving the parent directory itself intact.
func (s *Store) EmptyLayerOverlayDir(d digest.Digest) error {
	dir := s.OverlayDirPath(d)
	for _, sub := range []string{diffDirName, rootfsDirName, workDirName, tmpDirName} {
		p := filepath.Join(dir, sub)
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("clear overlay subdirectory %s: %w", sub, err)
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("recreate overlay subdirectory %s: %w", sub, err)
		}
	}
	return nil
}

// RemoveLayerOverlay removes the entire overlay directory for d.
func (s *Store) RemoveLayerOverlay(d digest.Digest) error {
	if err := os.RemoveAll(s.OverlayDirPath(d)); err != nil {
		return fmt.Errorf("remove overlay directory: %w", err)
	}
	return nil
}

type layerDescriptorList struct {
	Layers []ocispec.Descriptor `json:"layers"`
}

func (s *Store) layersPath() string {
	return filepath.Join(s.root, blobsDirName, LayersDescriptorFile)
}

func (s *Store) loadLayerDescs() (*layerDescriptorList, error) {
	list := &layerDescriptorList{}
	data, err := os.ReadFile(s.layersPath())
	if err != nil {
		if os.IsNotExist(err) {
			return list, nil // first-run semantics: missing index is empty
		}
		return nil, fmt.Errorf("read layers.json: %w", err)
	}
	if err := json.Unmarshal(data, list); err != nil {
		return nil, fmt.Errorf("parse layers.json: %w", err)
	}
	return list, nil
}

func (s *Store) saveLayerDescs(list *layerDescriptorList) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal layers.json: %w", err)
	}
	return fileutil.AtomicWriteFile(s.layersPath(), data, 0o644)
}

// AddLayerDesc appends descriptor to layers.json. Appending the same
// digest twice is a no-op (idempotent).
func (s *Store) AddLayerDesc(desc ocispec.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	desc.MediaType = NormalizeMediaType(desc.MediaType)

	list, err := s.loadLayerDescs()
	if err != nil {
		return err
	}
	for _, existing := range list.Layers {
		if existing.Digest == desc.Digest {
			return nil
		}
	}
	list.Layers = append(list.Layers, desc)
	return s.saveLayerDescs(list)
}

func (s *Store) removeLayerDesc(d digest.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadLayerDescs()
	if err != nil {
		return err
	}
	kept := list.Layers[:0]
	for _, existing := range list.Layers {
		if existing.Digest != d {
			kept = append(kept, existing)
		}
	}
	list.Layers = kept
	return s.saveLayerDescs(list)
}

// LayerDescs returns every descriptor this store has recorded.
func (s *Store) LayerDescs() ([]ocispec.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.loadLayerDescs()
	if err != nil {
		return nil, err
	}
	return list.Layers, nil
}

// DirSize walks path and sums the apparent size of every regular file
// under it, used to compute an image's total on-disk footprint.
func DirSize(path string) (int64, error) {
	var total int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", path, err)
	}
	return total, nil
}

// dockerToOCIMediaType maps Docker distribution media types to their
// OCI equivalents. Unknown types are preserved and logged, never
// rejected.
var dockerToOCIMediaType = map[string]string{
	"application/vnd.docker.image.rootfs.diff.tar.gzip": ocispec.MediaTypeImageLayerGzip,
	"application/vnd.docker.image.rootfs.diff.tar":      ocispec.MediaTypeImageLayer,
	"application/vnd.docker.container.image.v1+json":    ocispec.MediaTypeImageConfig,
	"application/vnd.docker.distribution.manifest.v2+json": ocispec.MediaTypeImageManifest,
}

// NormalizeMediaType converts a Docker-style media type to its OCI
// equivalent; types already OCI, or unrecognized, pass through
// unchanged (but unrecognized ones are logged).
func NormalizeMediaType(mediaType string) string {
	if mapped, ok := dockerToOCIMediaType[mediaType]; ok {
		return mapped
	}
	switch mediaType {
	case ocispec.MediaTypeImageLayerGzip, ocispec.MediaTypeImageLayer, ocispec.MediaTypeImageConfig,
		ocispec.MediaTypeImageManifest, ocispec.MediaTypeImageIndex, "":
		return mediaType
	default:
		slog.Warn("layerstore: unrecognized media type preserved verbatim", "media_type", mediaType)
		return mediaType
	}
}
