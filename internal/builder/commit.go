package builder

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocibuilder/ocibuilder/internal/containerstore"
	"github.com/ocibuilder/ocibuilder/internal/distribution"
	"github.com/ocibuilder/ocibuilder/internal/imagestore"
	"github.com/ocibuilder/ocibuilder/internal/layerstore"
	"github.com/ocibuilder/ocibuilder/pkg/ocierrors"
)

// Commit snapshots container's top-layer diff into a new image, named
// by name if given (a bare digest otherwise), and returns the new
// image's digest.
func (b *Builder) Commit(container, name string) (string, error) {
	var result string
	err := b.withLock(func() error {
		id, err := b.commit(container, name)
		result = id
		return err
	})
	return result, err
}

func (b *Builder) commit(containerName, name string) (string, error) {
	if name != "" {
		repository, tag := imagestore.SplitRepoTag(imageReferenceForCommit(name))
		existing, err := b.Images.Images()
		if err != nil {
			return "", err
		}
		for _, r := range existing {
			if r.Repository == repository && r.Tag == tag {
				return "", fmt.Errorf("%s: %w", name, ocierrors.ErrImageWithSameName)
			}
		}
	}

	cntID, err := b.Containers.ContainerDigest(containerName)
	if err != nil {
		return "", err
	}
	record, err := b.Containers.ContainerByDigest(cntID)
	if err != nil {
		return "", err
	}
	imgConfig, err := b.Containers.GetBuilderConfig(cntID)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	imgConfig.Created = &now

	diffPath := b.Layers.OverlayDiffPath(record.TopLayer)
	isEmptyLayer, err := layerstore.IsEmptyDir(diffPath)
	if err != nil {
		return "", fmt.Errorf("inspect top layer diff: %w", err)
	}

	if record.ImageName != scratchImageName {
		for _, parent := range record.RootfsDiff {
			if !b.Layers.HasBlob(parent) {
				return "", fmt.Errorf("parent layer %s: %w", parent, ocierrors.ErrImageNotFound)
			}
		}
	}

	var newLayerDigest digest.Digest
	if !isEmptyLayer {
		d, size, err := b.commitTopLayer(cntID, record.TopLayer, diffPath)
		if err != nil {
			return "", err
		}
		newLayerDigest = d

		diffID, err := b.diffIDOf(d)
		if err != nil {
			return "", err
		}
		imgConfig.RootFS.DiffIDs = append(imgConfig.RootFS.DiffIDs, diffID)

		if err := b.Layers.AddLayerDesc(ocispec.Descriptor{
			MediaType: ocispec.MediaTypeImageLayerGzip,
			Digest:    d,
			Size:      size,
		}); err != nil {
			return "", err
		}
		if err := b.Containers.AddRootfsDiff(cntID, d); err != nil {
			return "", err
		}
		if err := b.Containers.WriteBuilderConfig(cntID, imgConfig); err != nil {
			return "", err
		}
	}

	configBytes, err := marshalImageConfig(imgConfig)
	if err != nil {
		return "", err
	}
	if err := b.Images.WriteConfig(cntID, configBytes); err != nil {
		return "", err
	}

	newImageID := digest.FromBytes(configBytes).Encoded()
	if err := b.Images.Rename(cntID, newImageID); err != nil {
		return "", fmt.Errorf("publish image: %w", err)
	}

	manifest, err := b.buildManifest(record, newLayerDigest, isEmptyLayer, newImageID, len(configBytes))
	if err != nil {
		return "", err
	}
	if err := b.Images.WriteManifest(newImageID, manifest); err != nil {
		return "", err
	}

	ref := imageReferenceForCommit(name)
	size := int64(len(configBytes))
	for _, desc := range manifest.Layers {
		dirSize, err := layerstore.DirSize(b.Layers.OverlayDirPath(desc.Digest))
		if err != nil {
			return "", fmt.Errorf("measure layer size: %w", err)
		}
		size += dirSize
	}
	if err := b.Images.WriteImages(ref, newImageID, size, now); err != nil {
		return "", err
	}

	if !isEmptyLayer {
		if err := b.Layers.EmptyLayerOverlayDir(record.TopLayer); err != nil {
			return "", fmt.Errorf("reset top layer: %w", err)
		}
	}

	return newImageID, nil
}

// commitTopLayer tars+gzips diffPath, renames the gzip into the blob
// store, and re-extracts it into a fresh overlay directory so the new
// layer is immediately usable as a lowerdir. Every step before the
// final rename writes only into <tmp>, so a failure there leaves the
// store untouched.
func (b *Builder) commitTopLayer(cntID string, topLayer digest.Digest, diffPath string) (digest.Digest, int64, error) {
	shortID := cntID
	if len(shortID) > 12 {
		shortID = shortID[:12]
	}
	tarPath := filepath.Join(b.tmpDir(), shortID+"-top-diff.tar")

	tarFile, err := os.Create(tarPath)
	if err != nil {
		return "", 0, fmt.Errorf("create staging tar: %w", err)
	}
	defer os.Remove(tarPath)
	if err := layerstore.TarDiff(diffPath, tarFile); err != nil {
		tarFile.Close()
		return "", 0, fmt.Errorf("tar top layer diff: %w", err)
	}
	if err := tarFile.Close(); err != nil {
		return "", 0, fmt.Errorf("close staging tar: %w", err)
	}

	gzPath := filepath.Join(b.tmpDir(), topLayer.Encoded()+".gz")
	gzFile, err := os.Create(gzPath)
	if err != nil {
		return "", 0, fmt.Errorf("create staging gzip: %w", err)
	}
	digester := digest.Canonical.Digester()
	countingWriter := &countingWriter{w: io.MultiWriter(gzFile, digester.Hash())}

	tarReader, err := os.Open(tarPath)
	if err != nil {
		gzFile.Close()
		os.Remove(gzPath)
		return "", 0, fmt.Errorf("reopen staging tar: %w", err)
	}
	gzErr := layerstore.Gzip(countingWriter, tarReader)
	tarReader.Close()
	closeErr := gzFile.Close()
	if gzErr != nil {
		os.Remove(gzPath)
		return "", 0, fmt.Errorf("gzip top layer diff: %w", gzErr)
	}
	if closeErr != nil {
		os.Remove(gzPath)
		return "", 0, fmt.Errorf("close staging gzip: %w", closeErr)
	}

	layerDigest := digester.Digest()
	if b.Layers.HasBlob(layerDigest) {
		os.Remove(gzPath)
		return layerDigest, countingWriter.n, nil
	}

	blobPath := b.Layers.BlobPath(layerDigest)
	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		os.Remove(gzPath)
		return "", 0, fmt.Errorf("create blob directory: %w", err)
	}
	if err := os.Rename(gzPath, blobPath); err != nil {
		os.Remove(gzPath)
		return "", 0, fmt.Errorf("finalize new layer blob: %w", err)
	}

	if err := b.Layers.CreateLayerOverlayDir(layerDigest); err != nil {
		return "", 0, fmt.Errorf("create overlay for new layer: %w", err)
	}
	blob, err := b.Layers.GetBlob(layerDigest)
	if err != nil {
		return "", 0, err
	}
	defer blob.Close()
	if err := layerstore.ExtractTarGzInto(blob, b.Layers.OverlayDiffPath(layerDigest)); err != nil {
		return "", 0, fmt.Errorf("extract new layer: %w", err)
	}

	return layerDigest, countingWriter.n, nil
}

// diffIDOf decompresses the stored layer blob and hashes the result,
// recovering the digest of the uncompressed tar that commitTopLayer
// gzipped into it.
func (b *Builder) diffIDOf(layerDigest digest.Digest) (digest.Digest, error) {
	blob, err := b.Layers.GetBlob(layerDigest)
	if err != nil {
		return "", err
	}
	defer blob.Close()
	gz, err := gzip.NewReader(blob)
	if err != nil {
		return "", fmt.Errorf("recompute diff id: %w", err)
	}
	defer gz.Close()
	digester := digest.Canonical.Digester()
	if _, err := io.Copy(digester.Hash(), gz); err != nil {
		return "", fmt.Errorf("recompute diff id: %w", err)
	}
	return digester.Digest(), nil
}

func (b *Builder) buildManifest(record *containerstore.Record, newLayer digest.Digest, isEmptyLayer bool, newImageID string, configSize int) (*ocispec.Manifest, error) {
	known, err := b.Layers.LayerDescs()
	if err != nil {
		return nil, err
	}
	byDigest := make(map[digest.Digest]ocispec.Descriptor, len(known))
	for _, d := range known {
		byDigest[d.Digest] = d
	}

	parents := reverseDigests(record.RootfsDiff)
	layers := make([]ocispec.Descriptor, 0, len(parents)+1)
	for _, d := range parents {
		desc, ok := byDigest[d]
		if !ok {
			return nil, fmt.Errorf("layer descriptor missing for %s: %w", d, ocierrors.ErrImageNotFound)
		}
		desc.MediaType = layerstore.NormalizeMediaType(desc.MediaType)
		layers = append(layers, desc)
	}
	if !isEmptyLayer {
		desc, ok := byDigest[newLayer]
		if !ok {
			return nil, fmt.Errorf("layer descriptor missing for new layer %s", newLayer)
		}
		layers = append(layers, desc)
	}

	return &ocispec.Manifest{
		Versioned: ocispec.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageManifest,
		Config: ocispec.Descriptor{
			MediaType: ocispec.MediaTypeImageConfig,
			Digest:    digest.NewDigestFromEncoded(digest.SHA256, newImageID),
			Size:      int64(configSize),
		},
		Layers: layers,
	}, nil
}

// reverseDigests returns a new slice with ds in reverse order,
// converting the container's newest-first rootfs_diff into the
// base-first order an OCI manifest's layer list requires.
func reverseDigests(ds []digest.Digest) []digest.Digest {
	out := make([]digest.Digest, len(ds))
	for i, d := range ds {
		out[len(ds)-1-i] = d
	}
	return out
}

// imageReferenceForCommit derives the image reference commit writes
// into images.json: an empty reference when name is absent (the record
// then has an empty repository and tag), "localhost/name"
// when name has no registry component, or name as parsed otherwise.
// The ImageRecord only stores repository/tag, so the registry-prefix
// decision happens once here rather than in imagestore.
func imageReferenceForCommit(name string) string {
	if name == "" {
		return ""
	}
	if _, err := distribution.ParseReference(name, false); err == nil {
		repo, _ := imagestore.SplitRepoTag(name)
		if !hasRegistryComponent(repo) {
			return "localhost/" + name
		}
	}
	return name
}

func hasRegistryComponent(repo string) bool {
	firstSlash := strings.IndexByte(repo, '/')
	if firstSlash < 0 {
		return false
	}
	host := repo[:firstSlash]
	return strings.ContainsAny(host, ".:") || host == "localhost"
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func marshalImageConfig(cfg *ocispec.Image) ([]byte, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal image config: %w", err)
	}
	return data, nil
}

