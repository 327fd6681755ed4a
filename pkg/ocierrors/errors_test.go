package ocierrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelsMatchThroughWrapping(t *testing.T) {
	sentinels := []error{
		ErrInvalidDigest,
		ErrInvalidImageName,
		ErrImageWithSameName,
		ErrImageNotFound,
		ErrImageManifestNotFound,
		ErrImageUsedByContainer,
		ErrImageArchiveExists,
		ErrContainerWithSameName,
		ErrContainerNotFound,
		ErrIoError,
		ErrArchiveError,
		ErrMountUmountError,
		ErrBuilderLockError,
		ErrOciDistError,
		ErrCopyError,
		ErrAddError,
		ErrSerializationError,
		ErrTaskSpawnError,
	}

	for _, sentinel := range sentinels {
		wrapped := fmt.Errorf("some-id: %w", sentinel)
		if !errors.Is(wrapped, sentinel) {
			t.Fatalf("wrapped error %q does not match sentinel %q via errors.Is", wrapped, sentinel)
		}
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	if errors.Is(ErrImageNotFound, ErrContainerNotFound) {
		t.Fatalf("ErrImageNotFound should not match ErrContainerNotFound")
	}
}
