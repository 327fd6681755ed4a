// Package ocierrors declares the sentinel errors shared across the
// image, layer, and container stores and the builder.
//
// Each sentinel is created with errors.New so callers can test for it
// with errors.Is even after a caller wraps it with additional path or
// cause context via fmt.Errorf("...: %w", ...).
package ocierrors

import "errors"

// Digest and reference errors.
var (
	ErrInvalidDigest    = errors.New("invalid digest")
	ErrInvalidImageName = errors.New("invalid image name")
)

// Image store errors.
var (
	ErrImageWithSameName  = errors.New("image with same name already exists")
	ErrImageNotFound      = errors.New("image not found")
	ErrImageManifestNotFound = errors.New("image manifest not found")
	ErrImageUsedByContainer  = errors.New("image is in use by one or more containers")
	ErrImageArchiveExists    = errors.New("image archive already exists")
)

// Container store errors.
var (
	ErrContainerWithSameName = errors.New("container with same name already exists")
	ErrContainerNotFound     = errors.New("container not found")
)

// Builder operational errors.
var (
	ErrIoError          = errors.New("i/o error")
	ErrArchiveError     = errors.New("archive error")
	ErrMountUmountError = errors.New("mount/umount error")
	ErrBuilderLockError = errors.New("builder lock error")
	ErrOciDistError     = errors.New("oci distribution error")
	ErrCopyError        = errors.New("copy error")
	ErrAddError         = errors.New("add error")
	ErrSerializationError = errors.New("serialization error")
	ErrTaskSpawnError   = errors.New("task spawn error")
)
