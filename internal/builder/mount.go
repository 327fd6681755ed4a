package builder

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ocibuilder/ocibuilder/internal/containerstore"
	"github.com/ocibuilder/ocibuilder/internal/layerstore"
)

// Mount prepares container's merged rootfs view and returns the mount
// point. If already mounted, it unmounts first (mount is idempotent
// from the caller's perspective, never "already mounted").
func (b *Builder) Mount(container string) (string, error) {
	var result string
	err := b.withLock(func() error {
		mp, err := b.mount(container)
		result = mp
		return err
	})
	return result, err
}

func (b *Builder) mount(containerName string) (string, error) {
	cntID, err := b.Containers.ContainerDigest(containerName)
	if err != nil {
		return "", err
	}
	record, err := b.Containers.ContainerByDigest(cntID)
	if err != nil {
		return "", err
	}
	return b.mountTopLayer(record)
}

// mountTopLayer mounts record's top layer, using its parent chain
// (reversed to base-first, the order LayerStore's MountOptions wants)
// as lowerdirs, falling back to the top layer's own tmp/ when the
// chain is empty (a fresh scratch container).
func (b *Builder) mountTopLayer(record *containerstore.Record) (string, error) {
	mountPoint := b.Layers.OverlayRootfsPath(record.TopLayer)

	if isMountedByTable(mountPoint) {
		if err := layerstore.UnmountOverlay(mountPoint); err != nil {
			return "", fmt.Errorf("unmount existing mount: %w", err)
		}
	}

	var lowerDirs []string
	if len(record.RootfsDiff) == 0 {
		lowerDirs = []string{b.Layers.OverlayTmpPath(record.TopLayer)}
	} else {
		for _, d := range reverseDigests(record.RootfsDiff) {
			lowerDirs = append(lowerDirs, b.Layers.OverlayDiffPath(d))
		}
	}

	upperDir := b.Layers.OverlayDiffPath(record.TopLayer)
	workDir := b.Layers.OverlayWorkPath(record.TopLayer)

	if err := layerstore.MountOverlay(lowerDirs, upperDir, workDir, mountPoint); err != nil {
		return "", fmt.Errorf("mount container rootfs: %w", err)
	}
	return mountPoint, nil
}

// Unmount tears down container's merged rootfs view. Unmounting a
// container that isn't mounted is not an error.
func (b *Builder) Unmount(container string) error {
	return b.withLock(func() error {
		cntID, err := b.Containers.ContainerDigest(container)
		if err != nil {
			return err
		}
		record, err := b.Containers.ContainerByDigest(cntID)
		if err != nil {
			return err
		}
		return layerstore.UnmountOverlay(b.Layers.OverlayRootfsPath(record.TopLayer))
	})
}

// isMountedByTable scans /proc/mounts for an entry whose mount point
// matches path exactly (layerstore.IsMounted's device-id comparison is
// used internally by LayerStore, but mount/umount need the table-scan
// form since they check a path the caller supplied directly).
func isMountedByTable(path string) bool {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return layerstore.IsMounted(path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == path {
			return true
		}
	}
	return false
}
