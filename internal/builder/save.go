package builder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocibuilder/ocibuilder/internal/layerstore"
	"github.com/ocibuilder/ocibuilder/pkg/fileutil"
)

// Save writes image as an oci-layout tar archive at outputPath. It
// fails if outputPath already exists.
func (b *Builder) Save(image, outputPath string) error {
	return b.withLock(func() error {
		return b.save(image, outputPath)
	})
}

func (b *Builder) save(image, outputPath string) error {
	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("output path %s already exists", outputPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat output path: %w", err)
	}

	imageID, err := b.Images.ImageDigest(image)
	if err != nil {
		return err
	}
	records, err := b.Images.Images()
	if err != nil {
		return err
	}
	var tag string
	for _, r := range records {
		if r.ID == imageID {
			tag = r.Tag
			break
		}
	}

	layoutDir := filepath.Join(b.tmpDir(), imageID)
	if err := os.RemoveAll(layoutDir); err != nil {
		return fmt.Errorf("clear staging directory: %w", err)
	}
	defer os.RemoveAll(layoutDir)

	blobsDir := filepath.Join(layoutDir, "blobs", "sha256")
	if err := os.MkdirAll(blobsDir, 0o755); err != nil {
		return fmt.Errorf("create blobs directory: %w", err)
	}

	layoutMarker, err := json.Marshal(ocispec.ImageLayout{Version: ocispec.ImageLayoutVersion})
	if err != nil {
		return fmt.Errorf("marshal oci-layout marker: %w", err)
	}
	if err := fileutil.AtomicWriteFile(filepath.Join(layoutDir, ocispec.ImageLayoutFile), layoutMarker, 0o644); err != nil {
		return err
	}

	manifestBytes, err := b.Images.GetManifestBytes(imageID)
	if err != nil {
		return err
	}
	manifestDigest := digest.FromBytes(manifestBytes)
	if err := writeBlobCopy(blobsDir, manifestDigest, manifestBytes); err != nil {
		return err
	}

	manifest, err := b.Images.GetManifest(imageID)
	if err != nil {
		return err
	}

	configBytes, err := b.Images.GetConfigBytes(imageID)
	if err != nil {
		return err
	}
	if err := writeBlobCopy(blobsDir, manifest.Config.Digest, configBytes); err != nil {
		return err
	}

	for _, desc := range manifest.Layers {
		blob, err := b.Layers.GetBlob(desc.Digest)
		if err != nil {
			return fmt.Errorf("open layer blob %s: %w", desc.Digest, err)
		}
		err = writeBlobStream(blobsDir, desc.Digest, blob)
		blob.Close()
		if err != nil {
			return err
		}
	}

	var annotations map[string]string
	if tag != "" && tag != "latest" {
		annotations = map[string]string{ocispec.AnnotationRefName: tag}
	}
	index := ocispec.Index{
		Versioned: ocispec.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageIndex,
		Manifests: []ocispec.Descriptor{
			{
				MediaType:   manifest.MediaType,
				Digest:      manifestDigest,
				Size:        int64(len(manifestBytes)),
				Annotations: annotations,
			},
		},
	}
	indexBytes, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index.json: %w", err)
	}
	if err := fileutil.AtomicWriteFile(filepath.Join(layoutDir, "index.json"), indexBytes, 0o644); err != nil {
		return err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output archive: %w", err)
	}
	tarErr := layerstore.TarDiff(layoutDir, out)
	closeErr := out.Close()
	if tarErr != nil {
		os.Remove(outputPath)
		return fmt.Errorf("tar oci-layout: %w", tarErr)
	}
	if closeErr != nil {
		os.Remove(outputPath)
		return fmt.Errorf("close output archive: %w", closeErr)
	}
	return nil
}

func writeBlobCopy(blobsDir string, d digest.Digest, data []byte) error {
	if err := fileutil.AtomicWriteFile(filepath.Join(blobsDir, d.Encoded()), data, 0o644); err != nil {
		return fmt.Errorf("write blob %s: %w", d, err)
	}
	return nil
}

func writeBlobStream(blobsDir string, d digest.Digest, r io.Reader) error {
	target := filepath.Join(blobsDir, d.Encoded())
	tmp := target + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create blob %s: %w", d, err)
	}
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("write blob %s: %w", d, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("write blob %s: %w", d, closeErr)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize blob %s: %w", d, err)
	}
	return nil
}
