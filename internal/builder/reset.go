package builder

import (
	"fmt"
	"os"
	"path/filepath"
)

// Reset removes every store directory rooted at the builder's root,
// returning it to an empty state as if newly initialized.
func (b *Builder) Reset() error {
	return b.withLock(func() error {
		return b.reset()
	})
}

func (b *Builder) reset() error {
	overlayDir := filepath.Join(b.root, "overlay")

	// overlayfs and fuse-overlayfs leave nested directories (work/,
	// merged rootfs mountpoints) with restrictive permissions; walk and
	// loosen every directory first so the subsequent RemoveAll doesn't
	// trip over a directory it can't list.
	if err := relaxPermissions(overlayDir); err != nil {
		return err
	}

	for _, dir := range []string{"overlay-images", "overlay-containers", "overlay-layers", "overlay", "tmp"} {
		if err := os.RemoveAll(filepath.Join(b.root, dir)); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}
	return nil
}

func relaxPermissions(root string) error {
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				if chmodErr := os.Chmod(filepath.Dir(path), 0o755); chmodErr != nil {
					return chmodErr
				}
				info, err = os.Lstat(path)
				if err != nil {
					return err
				}
			} else {
				return err
			}
		}
		if info.IsDir() {
			return os.Chmod(path, 0o755)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("relax overlay permissions: %w", err)
	}
	return nil
}
