package builder

import (
	"fmt"

	"github.com/ocibuilder/ocibuilder/internal/layerstore"
	"github.com/ocibuilder/ocibuilder/pkg/ocierrors"
)

// Rm removes each named container. A container whose rootfs is
// currently mounted is refused unless force is set, in which case it
// is unmounted first.
func (b *Builder) Rm(containers []string, force bool) error {
	return b.withLock(func() error {
		return b.rm(containers, force)
	})
}

func (b *Builder) rm(containers []string, force bool) error {
	for _, name := range containers {
		if err := b.rmOne(name, force); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) rmOne(name string, force bool) error {
	cntID, err := b.Containers.ContainerDigest(name)
	if err != nil {
		return err
	}
	record, err := b.Containers.ContainerByDigest(cntID)
	if err != nil {
		return err
	}

	mountPoint := b.Layers.OverlayRootfsPath(record.TopLayer)
	if isMountedByTable(mountPoint) {
		if !force {
			return fmt.Errorf("%s: %w", name, ocierrors.ErrMountUmountError)
		}
		if err := layerstore.UnmountOverlay(mountPoint); err != nil {
			return fmt.Errorf("unmount %s: %w", name, err)
		}
	}

	if err := b.Layers.RemoveLayerOverlay(record.TopLayer); err != nil {
		return fmt.Errorf("remove top layer overlay: %w", err)
	}
	if err := b.Containers.Remove(cntID); err != nil {
		return fmt.Errorf("remove container record: %w", err)
	}
	return nil
}
