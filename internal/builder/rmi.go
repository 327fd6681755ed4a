package builder

import (
	"fmt"

	"github.com/ocibuilder/ocibuilder/pkg/ocierrors"
)

// Rmi removes each named image. An image referenced by a container is
// refused unless force is set, in which case the referencing
// containers (and their top-layer overlays) are removed first.
func (b *Builder) Rmi(images []string, force bool) error {
	return b.withLock(func() error {
		return b.rmi(images, force)
	})
}

func (b *Builder) rmi(images []string, force bool) error {
	for _, name := range images {
		if err := b.rmiOne(name, force); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) rmiOne(name string, force bool) error {
	imageID, err := b.Images.ImageDigest(name)
	if err != nil {
		return err
	}

	using, err := b.Containers.ContainersByImage(imageID)
	if err != nil {
		return err
	}
	if len(using) > 0 && !force {
		return fmt.Errorf("%s: %w", name, ocierrors.ErrImageUsedByContainer)
	}
	for _, c := range using {
		if err := b.Layers.RemoveLayerOverlay(c.TopLayer); err != nil {
			return fmt.Errorf("remove container %s top layer: %w", c.ID, err)
		}
		if err := b.Containers.Remove(c.ID); err != nil {
			return fmt.Errorf("remove container %s: %w", c.ID, err)
		}
	}

	manifest, err := b.Images.GetManifest(imageID)
	if err != nil {
		return err
	}

	if err := b.Images.Remove(imageID); err != nil {
		return err
	}

	for _, desc := range manifest.Layers {
		if err := b.Layers.RemoveLayerOverlay(desc.Digest); err != nil {
			return fmt.Errorf("remove layer overlay %s: %w", desc.Digest, err)
		}
		if err := b.Layers.RemoveBlob(desc.Digest); err != nil {
			return fmt.Errorf("remove layer blob %s: %w", desc.Digest, err)
		}
	}
	return nil
}
