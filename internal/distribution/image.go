package distribution

import (
	"bytes"
	"fmt"
	"io"

	ggcrv1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// BlobOpener opens the content of a locally stored blob for reading.
type BlobOpener func(d digest.Digest) (io.ReadCloser, error)

// NewImage wraps a manifest already resident in the ImageStore (plus
// its config bytes and a way to open blobs from the LayerStore) as a
// ggcrv1.Image, the shape remote.Write needs to push it. This mirrors
// go-containerregistry's own tarball/partial images, except the
// backing store is ours rather than a tarball on disk.
func NewImage(manifestBytes, configBytes []byte, open BlobOpener) (ggcrv1.Image, error) {
	var manifest ocispec.Manifest
	if err := unmarshalJSON(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &storeImage{
		manifestBytes: manifestBytes,
		manifest:      &manifest,
		configBytes:   configBytes,
		open:          open,
	}, nil
}

type storeImage struct {
	manifestBytes []byte
	manifest      *ocispec.Manifest
	configBytes   []byte
	open          BlobOpener
}

func (img *storeImage) Layers() ([]ggcrv1.Layer, error) {
	layers := make([]ggcrv1.Layer, len(img.manifest.Layers))
	for i, desc := range img.manifest.Layers {
		layers[i] = &storeLayer{desc: desc, open: img.open}
	}
	return layers, nil
}

func (img *storeImage) MediaType() (types.MediaType, error) {
	return types.MediaType(img.manifest.MediaType), nil
}

func (img *storeImage) Size() (int64, error) { return int64(len(img.manifestBytes)), nil }

func (img *storeImage) ConfigName() (ggcrv1.Hash, error) {
	return ggcrv1.NewHash(img.manifest.Config.Digest.String())
}

func (img *storeImage) ConfigFile() (*ggcrv1.ConfigFile, error) {
	var cfg ggcrv1.ConfigFile
	if err := unmarshalJSON(img.configBytes, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func (img *storeImage) RawConfigFile() ([]byte, error) { return img.configBytes, nil }

func (img *storeImage) Digest() (ggcrv1.Hash, error) {
	return ggcrv1.NewHash(digest.FromBytes(img.manifestBytes).String())
}

func (img *storeImage) Manifest() (*ggcrv1.Manifest, error) {
	var m ggcrv1.Manifest
	if err := unmarshalJSON(img.manifestBytes, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

func (img *storeImage) RawManifest() ([]byte, error) { return img.manifestBytes, nil }

func (img *storeImage) LayerByDigest(h ggcrv1.Hash) (ggcrv1.Layer, error) {
	for _, desc := range img.manifest.Layers {
		if desc.Digest.String() == h.String() {
			return &storeLayer{desc: desc, open: img.open}, nil
		}
	}
	if img.manifest.Config.Digest.String() == h.String() {
		return &storeLayer{
			desc: ocispec.Descriptor{
				MediaType: img.manifest.Config.MediaType,
				Digest:    img.manifest.Config.Digest,
				Size:      img.manifest.Config.Size,
			},
			raw: img.configBytes,
		}, nil
	}
	return nil, fmt.Errorf("layer not found: %s", h)
}

func (img *storeImage) LayerByDiffID(h ggcrv1.Hash) (ggcrv1.Layer, error) {
	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, err
	}
	for i, diffID := range cfg.RootFS.DiffIDs {
		if diffID.String() == h.String() && i < len(img.manifest.Layers) {
			return &storeLayer{desc: img.manifest.Layers[i], open: img.open}, nil
		}
	}
	return nil, fmt.Errorf("layer not found for diff id: %s", h)
}

// storeLayer adapts a descriptor plus a blob opener (or, for the
// config "layer", a raw byte slice already in memory) to ggcrv1.Layer.
type storeLayer struct {
	desc ocispec.Descriptor
	open BlobOpener
	raw  []byte
}

func (l *storeLayer) Digest() (ggcrv1.Hash, error) { return ggcrv1.NewHash(l.desc.Digest.String()) }

func (l *storeLayer) DiffID() (ggcrv1.Hash, error) { return l.Digest() }

func (l *storeLayer) Compressed() (io.ReadCloser, error) {
	if l.raw != nil {
		return io.NopCloser(bytes.NewReader(l.raw)), nil
	}
	return l.open(l.desc.Digest)
}

func (l *storeLayer) Uncompressed() (io.ReadCloser, error) { return l.Compressed() }

func (l *storeLayer) Size() (int64, error) { return l.desc.Size, nil }

func (l *storeLayer) MediaType() (types.MediaType, error) { return types.MediaType(l.desc.MediaType), nil }
