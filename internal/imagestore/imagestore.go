// Package imagestore implements the ImageStore component: image
// manifests, configs, and the repository:tag index, rooted at
// <root>/overlay-images/.
package imagestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocibuilder/ocibuilder/pkg/fileutil"
	"github.com/ocibuilder/ocibuilder/pkg/idutil"
	"github.com/ocibuilder/ocibuilder/pkg/ocierrors"
)

const (
	imagesDirName  = "overlay-images"
	imagesFileName = "images.json"
	configFileName = "config.json"
	manifestFileName = "manifest.json"
)

// Record is an ImageRecord: the triplet (repository, tag, id) that
// identifies an image in listings, plus its total on-disk size and
// creation time. An empty Tag or Repository renders as <none> in display.
type Record struct {
	Repository string    `json:"repository"`
	Tag        string    `json:"tag"`
	ID         string    `json:"id"` // hex-encoded sha256 of <id>/config.json
	Size       int64     `json:"size"`
	Created    time.Time `json:"created"`
}

// Store is the ImageStore.
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates the image store root if absent.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, imagesDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create image store directory: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) imageDir(id string) string {
	return filepath.Join(s.root, imagesDirName, id)
}

func (s *Store) configPath(id string) string {
	return filepath.Join(s.imageDir(id), configFileName)
}

func (s *Store) manifestPath(id string) string {
	return filepath.Join(s.imageDir(id), manifestFileName)
}

func (s *Store) imagesPath() string {
	return filepath.Join(s.root, imagesDirName, imagesFileName)
}

// WriteConfig writes the raw image config bytes for id.
func (s *Store) WriteConfig(id string, data []byte) error {
	if err := os.MkdirAll(s.imageDir(id), 0o755); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}
	if err := fileutil.AtomicWriteFile(s.configPath(id), data, 0o644); err != nil {
		return fmt.Errorf("write config for %s: %w", id, err)
	}
	return nil
}

// GetConfigBytes returns the raw config.json bytes for id.
func (s *Store) GetConfigBytes(id string) ([]byte, error) {
	data, err := os.ReadFile(s.configPath(id))
	if err != nil {
		return nil, fmt.Errorf("read config for %s: %w", id, err)
	}
	return data, nil
}

// GetConfig returns the parsed image config for id.
func (s *Store) GetConfig(id string) (*ocispec.Image, error) {
	data, err := s.GetConfigBytes(id)
	if err != nil {
		return nil, err
	}
	var cfg ocispec.Image
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config for %s: %w", id, err)
	}
	return &cfg, nil
}

// WriteManifest writes manifest for id. Unlike GetManifest, this does
// not require an existing image record — commit writes the manifest
// before appending the ImageRecord that names it.
func (s *Store) WriteManifest(id string, manifest *ocispec.Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(s.imageDir(id), 0o755); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}
	if err := fileutil.AtomicWriteFile(s.manifestPath(id), data, 0o644); err != nil {
		return fmt.Errorf("write manifest for %s: %w", id, err)
	}
	return nil
}

// GetManifest returns the manifest for id. It fails with
// ErrImageManifestNotFound if no image record matches id.
func (s *Store) GetManifest(id string) (*ocispec.Manifest, error) {
	data, err := s.GetManifestBytes(id)
	if err != nil {
		return nil, err
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest for %s: %w", id, err)
	}
	return &manifest, nil
}

// GetManifestBytes returns the raw manifest.json bytes for id, used
// by push to forward the manifest without a parse/re-marshal
// round-trip. It fails with ErrImageManifestNotFound if no image
// record matches id.
func (s *Store) GetManifestBytes(id string) ([]byte, error) {
	records, err := s.Images()
	if err != nil {
		return nil, err
	}
	found := false
	for _, r := range records {
		if r.ID == id {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", id, ocierrors.ErrImageManifestNotFound)
	}

	data, err := os.ReadFile(s.manifestPath(id))
	if err != nil {
		return nil, fmt.Errorf("read manifest for %s: %w", id, err)
	}
	return data, nil
}

// Images returns every ImageRecord. A missing images.json (fresh
// store) returns an empty slice, never an error.
func (s *Store) Images() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadImages()
}

func (s *Store) loadImages() ([]Record, error) {
	data, err := os.ReadFile(s.imagesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("read images.json: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse images.json: %w", err)
	}
	return records, nil
}

func (s *Store) saveImages(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal images.json: %w", err)
	}
	return fileutil.AtomicWriteFile(s.imagesPath(), data, 0o644)
}

// WriteImages appends a new ImageRecord parsed from ref. Duplicates
// are not deduplicated here; the Builder enforces name-collision
// checks before calling this.
func (s *Store) WriteImages(ref string, id string, size int64, created time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repository, tag := SplitRepoTag(ref)
	records, err := s.loadImages()
	if err != nil {
		return err
	}
	records = append(records, Record{
		Repository: repository,
		Tag:        tag,
		ID:         id,
		Size:       size,
		Created:    created,
	})
	return s.saveImages(records)
}

// Rename moves the on-disk directory for oldID to newID, without
// touching images.json. Used by commit to publish a newly built image:
// the config is staged under the container's id, then the directory
// is renamed to the config's own hash once known.
func (s *Store) Rename(oldID, newID string) error {
	if err := os.Rename(s.imageDir(oldID), s.imageDir(newID)); err != nil {
		return fmt.Errorf("rename %s to %s: %w", oldID, newID, err)
	}
	return nil
}

// Remove drops the ImageRecord for id and removes <id>/.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadImages()
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if err := s.saveImages(kept); err != nil {
		return err
	}
	if err := os.RemoveAll(s.imageDir(id)); err != nil {
		return fmt.Errorf("remove image directory %s: %w", id, err)
	}
	return nil
}

// ImageDigest resolves nameOrID to a stored image id: an exact
// repository:tag match is preferred, then the same name under
// "localhost/" (where commit records names without a registry), then
// an id-prefix match; a bare id prefix must be at least 12 characters.
func (s *Store) ImageDigest(nameOrID string) (string, error) {
	records, err := s.Images()
	if err != nil {
		return "", err
	}

	if repository, tag, ok := splitExplicitRepoTag(nameOrID); ok {
		for _, r := range records {
			if r.Repository == repository && r.Tag == tag {
				return r.ID, nil
			}
		}
		for _, r := range records {
			if r.Repository == "localhost/"+repository && r.Tag == tag {
				return r.ID, nil
			}
		}
	}

	candidate := strings.TrimPrefix(nameOrID, digest.SHA256.String()+":")
	if idutil.ValidatePrefix(candidate) == nil {
		for _, r := range records {
			if strings.HasPrefix(r.ID, candidate) {
				return r.ID, nil
			}
		}
	}

	return "", fmt.Errorf("%s: %w", nameOrID, ocierrors.ErrImageNotFound)
}

// ImageReference reconstructs a registry-qualified reference string
// for id, suitable for the registry client's name.ParseReference.
func (s *Store) ImageReference(id string) (string, error) {
	records, err := s.Images()
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if r.ID == id {
			if r.Tag == "" {
				return r.Repository, nil
			}
			return r.Repository + ":" + r.Tag, nil
		}
	}
	return "", fmt.Errorf("%s: %w", id, ocierrors.ErrImageNotFound)
}

// SplitRepoTag splits "repo:tag" or "repo@sha256:..." into repository
// and tag, defaulting tag to "latest" when absent.
func SplitRepoTag(ref string) (repository, tag string) {
	if ref == "" {
		return "", ""
	}
	if idx := strings.LastIndex(ref, "@"); idx != -1 {
		return ref[:idx], ref[idx+1:]
	}
	// Don't split on a ":" that belongs to a registry port, e.g.
	// localhost:5000/name.
	lastColon := strings.LastIndex(ref, ":")
	lastSlash := strings.LastIndex(ref, "/")
	if lastColon > lastSlash {
		return ref[:lastColon], ref[lastColon+1:]
	}
	return ref, "latest"
}

func splitExplicitRepoTag(ref string) (repository, tag string, ok bool) {
	if ref == "" {
		return "", "", false
	}
	repository, tag = SplitRepoTag(ref)
	return repository, tag, true
}
