//go:build !linux
// +build !linux

package layerstore

import (
	"fmt"
	"io"
	"runtime"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

var errNotSupported = fmt.Errorf("layerstore is only supported on Linux (current: %s)", runtime.GOOS)

// Store stub for non-Linux platforms; overlayfs staging requires Linux.
type Store struct{}

func New(root string) (*Store, error) { return nil, errNotSupported }

func (s *Store) BlobPath(d digest.Digest) string          { return "" }
func (s *Store) OverlayDirPath(d digest.Digest) string    { return "" }
func (s *Store) OverlayDiffPath(d digest.Digest) string   { return "" }
func (s *Store) OverlayRootfsPath(d digest.Digest) string { return "" }
func (s *Store) OverlayWorkPath(d digest.Digest) string   { return "" }
func (s *Store) OverlayTmpPath(d digest.Digest) string    { return "" }
func (s *Store) HasBlob(d digest.Digest) bool             { return false }

func (s *Store) WriteBlob(d digest.Digest, r io.Reader) (int64, error) { return 0, errNotSupported }
func (s *Store) GetBlob(d digest.Digest) (io.ReadCloser, error)        { return nil, errNotSupported }
func (s *Store) RemoveBlob(d digest.Digest) error                      { return errNotSupported }
func (s *Store) CreateLayerOverlayDir(d digest.Digest) error           { return errNotSupported }
func (s *Store) EmptyLayerOverlayDir(d digest.Digest) error            { return errNotSupported }
func (s *Store) RemoveLayerOverlay(d digest.Digest) error              { return errNotSupported }
func (s *Store) AddLayerDesc(desc ocispec.Descriptor) error            { return errNotSupported }
func (s *Store) LayerDescs() ([]ocispec.Descriptor, error)             { return nil, errNotSupported }

func MountOverlay(lowerDirs []string, upperDir, workDir, mountPoint string) error { return errNotSupported }
func UnmountOverlay(mountPoint string) error                                     { return errNotSupported }
func IsMounted(path string) bool                                                 { return false }
func TarDiff(diffDir string, w io.Writer) error                                  { return errNotSupported }
func Gzip(w io.Writer, r io.Reader) error                                        { return errNotSupported }
func ExtractTarGzInto(r io.Reader, destDir string) error                         { return errNotSupported }
func IsEmptyDir(dir string) (bool, error)                                        { return false, errNotSupported }
func DirSize(path string) (int64, error)                                        { return 0, errNotSupported }
func NormalizeMediaType(mediaType string) string                                { return mediaType }
