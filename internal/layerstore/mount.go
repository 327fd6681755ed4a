//go:build linux
// +build linux

package layerstore

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// MountOptions builds the overlayfs option string for a mount, given
// lowerDirs in bottom-to-top extraction order (overlayfs itself wants
// them topmost-first in lowerdir=).
func MountOptions(lowerDirs []string, upperDir, workDir string) (string, error) {
	if len(lowerDirs) == 0 {
		return "", fmt.Errorf("at least one lower directory is required")
	}
	for _, dir := range lowerDirs {
		if _, err := os.Stat(dir); err != nil {
			return "", fmt.Errorf("lower directory not accessible: %s: %w", dir, err)
		}
	}

	reversed := make([]string, len(lowerDirs))
	for i, dir := range lowerDirs {
		reversed[len(lowerDirs)-1-i] = dir
	}

	return fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
		strings.Join(reversed, ":"), upperDir, workDir), nil
}

// MountOverlay mounts lowerDirs/upperDir/workDir at mountPoint. Root
// uses the kernel overlay filesystem directly; a nonzero effective uid
// shells out to fuse-overlayfs.
func MountOverlay(lowerDirs []string, upperDir, workDir, mountPoint string) error {
	if err := os.MkdirAll(upperDir, 0o755); err != nil {
		return fmt.Errorf("create upper directory: %w", err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return fmt.Errorf("create mount point: %w", err)
	}

	options, err := MountOptions(lowerDirs, upperDir, workDir)
	if err != nil {
		return err
	}

	if os.Geteuid() == 0 {
		if err := unix.Mount("overlay", mountPoint, "overlay", 0, options); err != nil {
			return fmt.Errorf("mount overlay: %w (options: %s)", err, options)
		}
		return nil
	}

	cmd := exec.Command("fuse-overlayfs", "-o", options, mountPoint)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("fuse-overlayfs: %w (options: %s)", err, options)
	}
	return nil
}

// UnmountOverlay unmounts mountPoint, falling back to a lazy detach
// unmount if the mount is busy. A path that isn't currently mounted is
// treated as already unmounted.
func UnmountOverlay(mountPoint string) error {
	if !IsMounted(mountPoint) {
		return nil
	}

	if os.Geteuid() == 0 {
		if err := unix.Unmount(mountPoint, 0); err != nil {
			if err == unix.EBUSY {
				return unix.Unmount(mountPoint, unix.MNT_DETACH)
			}
			return fmt.Errorf("unmount overlay: %w", err)
		}
		return nil
	}

	cmd := exec.Command("fusermount", "-u", mountPoint)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("fusermount: %w", err)
	}
	return nil
}

// IsMounted reports whether path is a mount point, by comparing its
// device number against its parent's — scanning the process mount
// table is unnecessary for this single check.
func IsMounted(path string) bool {
	pathStat, err := os.Stat(path)
	if err != nil {
		return false
	}
	parentStat, err := os.Stat(filepath.Dir(path))
	if err != nil {
		return false
	}

	pathSys, ok := pathStat.Sys().(*unix.Stat_t)
	if !ok {
		return false
	}
	parentSys, ok := parentStat.Sys().(*unix.Stat_t)
	if !ok {
		return false
	}
	return pathSys.Dev != parentSys.Dev
}
