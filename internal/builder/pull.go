package builder

import (
	"fmt"
	"time"

	ggcrv1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/ocibuilder/ocibuilder/internal/distribution"
	"github.com/ocibuilder/ocibuilder/internal/layerstore"
)

// Pull fetches imageName from a registry and stores it locally,
// returning the image's digest (the sha256 of its config). An image
// already present is returned without any network I/O.
func (b *Builder) Pull(imageName string, insecure, anonymous bool) (string, error) {
	var result string
	err := b.withLock(func() error {
		id, err := b.pull(imageName, insecure, anonymous)
		result = id
		return err
	})
	return result, err
}

func (b *Builder) pull(imageName string, insecure, anonymous bool) (string, error) {
	if id, err := b.Images.ImageDigest(imageName); err == nil {
		return id, nil
	}
	// ImageNotFound during the pre-check is not an error: it converts
	// to "do the full pull".

	ref, err := distribution.ParseReference(imageName, insecure)
	if err != nil {
		return "", err
	}
	opts := distribution.BuildAuth(insecure, anonymous)

	mc, err := distribution.PullManifestAndConfig(ref, opts)
	if err != nil {
		return "", fmt.Errorf("pull manifest: %w", err)
	}

	imageID := digest.FromBytes(mc.ConfigBytes).Encoded()
	b.progressf("pulling %s", imageName)

	group := new(errgroup.Group)
	for _, layer := range mc.Layers {
		layer := layer
		group.Go(func() error {
			return b.pullOneLayer(layer)
		})
	}
	if err := group.Wait(); err != nil {
		return "", fmt.Errorf("pull layers: %w", err)
	}

	for _, desc := range mc.Manifest.Layers {
		if err := b.Layers.AddLayerDesc(desc); err != nil {
			return "", fmt.Errorf("record layer descriptor: %w", err)
		}
	}

	if err := b.Images.WriteConfig(imageID, mc.ConfigBytes); err != nil {
		return "", err
	}
	if err := b.Images.WriteManifest(imageID, mc.Manifest); err != nil {
		return "", err
	}

	size := int64(len(mc.ConfigBytes))
	for _, desc := range mc.Manifest.Layers {
		dirSize, err := layerstore.DirSize(b.Layers.OverlayDirPath(desc.Digest))
		if err != nil {
			return "", fmt.Errorf("measure layer size: %w", err)
		}
		size += dirSize
	}

	if err := b.Images.WriteImages(imageName, imageID, size, time.Now().UTC()); err != nil {
		return "", err
	}
	return imageID, nil
}

// pullOneLayer downloads a single layer, streaming it into the blob
// store under a hashing writer (never buffering the whole blob in
// memory), then unpacks it into the layer's diff/ for overlay use.
// Two distinct digests never target the same layer concurrently, so
// CreateLayerOverlayDir's existence check can't race with itself.
func (b *Builder) pullOneLayer(layer ggcrv1.Layer) error {
	rc, d, _, err := distribution.PullBlob(layer)
	if err != nil {
		return err
	}
	defer rc.Close()

	if b.Layers.HasBlob(d) {
		b.progressf("layer %s: already exists", d.Encoded()[:12])
		return nil
	}
	if _, err := b.Layers.WriteBlob(d, rc); err != nil {
		return fmt.Errorf("store layer %s: %w", d, err)
	}

	if err := b.Layers.CreateLayerOverlayDir(d); err != nil {
		return fmt.Errorf("create overlay for layer %s: %w", d, err)
	}
	blob, err := b.Layers.GetBlob(d)
	if err != nil {
		return err
	}
	defer blob.Close()
	if err := layerstore.ExtractTarGzInto(blob, b.Layers.OverlayDiffPath(d)); err != nil {
		return fmt.Errorf("extract layer %s: %w", d, err)
	}
	b.progressf("layer %s: pull complete", d.Encoded()[:12])
	return nil
}
