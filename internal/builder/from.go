package builder

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocibuilder/ocibuilder/pkg/ocierrors"
)

const scratchImageName = "scratch"

// From creates a new working container from imageName (pulling it
// first if not already stored, "scratch" for an empty base), returning
// the container's name.
func (b *Builder) From(imageName, containerName string, insecure, anonymous bool) (string, error) {
	var result string
	err := b.withLock(func() error {
		name, err := b.from(imageName, containerName, insecure, anonymous)
		result = name
		return err
	})
	return result, err
}

func (b *Builder) from(imageName, containerName string, insecure, anonymous bool) (string, error) {
	if containerName != "" {
		if _, err := b.Containers.ContainerDigest(containerName); err == nil {
			return "", fmt.Errorf("%s: %w", containerName, ocierrors.ErrContainerWithSameName)
		}
	}

	records, err := b.Containers.List()
	if err != nil {
		return "", err
	}
	taken := containerNamesInUse(records)

	if imageName == scratchImageName {
		return b.fromScratch(containerName, taken)
	}
	return b.fromImage(imageName, containerName, taken, insecure, anonymous)
}

func (b *Builder) fromScratch(containerName string, taken map[string]bool) (string, error) {
	name := containerName
	if name == "" {
		name = defaultContainerName(taken, "working-container")
	}

	topLayer := randomLayerDigest()
	if err := b.Layers.CreateLayerOverlayDir(topLayer); err != nil {
		return "", fmt.Errorf("create top layer: %w", err)
	}

	record, err := b.Containers.Create(name, scratchImageName, "", topLayer, nil)
	if err != nil {
		b.Layers.RemoveLayerOverlay(topLayer)
		return "", err
	}

	now := time.Now().UTC()
	cfg := &ocispec.Image{
		Created: &now,
		History: []ocispec.History{{Created: &now, CreatedBy: "from scratch"}},
	}
	if err := b.Containers.WriteBuilderConfig(record.ID, cfg); err != nil {
		return "", err
	}
	return name, nil
}

func (b *Builder) fromImage(imageName, containerName string, taken map[string]bool, insecure, anonymous bool) (string, error) {
	imageID, err := b.Images.ImageDigest(imageName)
	if err != nil {
		imageID, err = b.pull(imageName, insecure, anonymous)
		if err != nil {
			return "", fmt.Errorf("pull %s: %w", imageName, err)
		}
	}

	manifest, err := b.Images.GetManifest(imageID)
	if err != nil {
		return "", err
	}
	cfg, err := b.Images.GetConfig(imageID)
	if err != nil {
		return "", err
	}

	parentLayers := make([]ocispec.Descriptor, len(manifest.Layers))
	copy(parentLayers, manifest.Layers)
	// The manifest lists layers base-first; rootfs_diff is newest-first.
	digests := make([]digest.Digest, len(parentLayers))
	for i, d := range parentLayers {
		digests[len(parentLayers)-1-i] = d.Digest
	}

	topLayer := randomLayerDigest()
	if err := b.Layers.CreateLayerOverlayDir(topLayer); err != nil {
		return "", fmt.Errorf("create top layer: %w", err)
	}

	name := containerName
	if name == "" {
		base := path.Base(imageRepository(imageName)) + "-working-container"
		name = defaultContainerName(taken, base)
	}

	record, err := b.Containers.Create(name, imageName, imageID, topLayer, digests)
	if err != nil {
		b.Layers.RemoveLayerOverlay(topLayer)
		return "", err
	}

	now := time.Now().UTC()
	seeded := *cfg
	seeded.Created = &now
	if err := b.Containers.WriteBuilderConfig(record.ID, &seeded); err != nil {
		return "", err
	}
	return name, nil
}

// imageRepository strips any :tag or @digest suffix, leaving the bare
// repository path whose last segment seeds the default container name.
func imageRepository(ref string) string {
	if idx := strings.LastIndex(ref, "@"); idx != -1 {
		ref = ref[:idx]
	}
	lastColon := strings.LastIndex(ref, ":")
	lastSlash := strings.LastIndex(ref, "/")
	if lastColon > lastSlash {
		ref = ref[:lastColon]
	}
	return ref
}
