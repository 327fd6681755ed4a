package builder

import (
	"fmt"

	"github.com/ocibuilder/ocibuilder/internal/distribution"
)

// Push uploads image (a local image name or digest) to destination,
// a registry reference. remote.Write uploads every layer blob, then
// the config, then the manifest last, so a push that fails partway
// never leaves a manifest referencing missing blobs.
func (b *Builder) Push(image, destination string, insecure, anonymous bool) error {
	return b.withLock(func() error {
		return b.push(image, destination, insecure, anonymous)
	})
}

func (b *Builder) push(image, destination string, insecure, anonymous bool) error {
	imageID, err := b.Images.ImageDigest(image)
	if err != nil {
		return err
	}
	configBytes, err := b.Images.GetConfigBytes(imageID)
	if err != nil {
		return err
	}
	rawManifest, err := b.Images.GetManifestBytes(imageID)
	if err != nil {
		return err
	}

	img, err := distribution.NewImage(rawManifest, configBytes, b.Layers.GetBlob)
	if err != nil {
		return fmt.Errorf("build pushable image: %w", err)
	}

	ref, err := distribution.ParseReference(destination, insecure)
	if err != nil {
		return err
	}
	opts := distribution.BuildAuth(insecure, anonymous)

	b.progressf("pushing %s to %s", image, destination)
	if err := distribution.Push(ref, img, opts); err != nil {
		return err
	}
	b.progressf("push complete: %s", destination)
	return nil
}
