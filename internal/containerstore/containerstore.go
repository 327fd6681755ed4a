// Package containerstore implements the ContainerStore component:
// working-container records and their mutable builder configs, rooted
// at <root>/overlay-containers/.
package containerstore

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
	containersDirName  = "overlay-containers"
	containersFileName = "containers.json"
	builderConfigFile  = "builder.json"
	runtimeConfigFile  = "config.json"
)

// Record is a ContainerRecord: a working container's identity, its
// writable top layer, and the ordered lowerdir chain beneath it.
type Record struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	ImageName  string          `json:"image_name"`
	ImageID    string          `json:"image_id"`
	TopLayer   digest.Digest   `json:"top_layer"`
	Created    time.Time       `json:"created"`
	RootfsDiff []digest.Digest `json:"rootfs_diff"` // newest (topmost) first; commit prepends
}

// Store is the ContainerStore.
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates the container store root if absent.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, containersDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create container store directory: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) containerDir(id string) string {
	return filepath.Join(s.root, containersDirName, id)
}

func (s *Store) containersPath() string {
	return filepath.Join(s.root, containersDirName, containersFileName)
}

func (s *Store) loadContainers() ([]Record, error) {
	data, err := os.ReadFile(s.containersPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("read containers.json: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse containers.json: %w", err)
	}
	return records, nil
}

func (s *Store) saveContainers(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal containers.json: %w", err)
	}
	return fileutil.AtomicWriteFile(s.containersPath(), data, 0o644)
}

// Create allocates a fresh container id, creates <cnt-id>/, writes the
// ContainerRecord, generates the runtime spec, and returns it. It
// fails if name collides with an existing container.
func (s *Store) Create(name, imageName, imageID string, topLayer digest.Digest, parentLayers []digest.Digest) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadContainers()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Name == name {
			return nil, fmt.Errorf("%s: %w", name, ocierrors.ErrContainerWithSameName)
		}
	}

	id := idutil.GenerateID()
	if err := os.MkdirAll(s.containerDir(id), 0o755); err != nil {
		return nil, fmt.Errorf("create container directory: %w", err)
	}

	rootfsDiff := make([]digest.Digest, len(parentLayers))
	copy(rootfsDiff, parentLayers)

	record := &Record{
		ID:         id,
		Name:       name,
		ImageName:  imageName,
		ImageID:    imageID,
		TopLayer:   topLayer,
		Created:    time.Now().UTC(),
		RootfsDiff: rootfsDiff,
	}

	if err := s.GenerateRuntimeSpec(record); err != nil {
		os.RemoveAll(s.containerDir(id))
		return nil, fmt.Errorf("generate runtime spec: %w", err)
	}

	records = append(records, *record)
	if err := s.saveContainers(records); err != nil {
		os.RemoveAll(s.containerDir(id))
		return nil, err
	}
	return record, nil
}

// ContainerDigest resolves nameOrID: an exact name match is preferred
// over a 12-char id-prefix match.
func (s *Store) ContainerDigest(nameOrID string) (string, error) {
	s.mu.Lock()
	records, err := s.loadContainers()
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	for _, r := range records {
		if r.Name == nameOrID {
			return r.ID, nil
		}
	}

	if idutil.ValidatePrefix(nameOrID) == nil {
		for _, r := range records {
			if strings.HasPrefix(r.ID, nameOrID) {
				return r.ID, nil
			}
		}
	}

	return "", fmt.Errorf("%s: %w", nameOrID, ocierrors.ErrContainerNotFound)
}

// ContainerExist reports whether id (a full container id) exists.
func (s *Store) ContainerExist(id string) bool {
	s.mu.Lock()
	records, err := s.loadContainers()
	s.mu.Unlock()
	if err != nil {
		return false
	}
	for _, r := range records {
		if r.ID == id {
			return true
		}
	}
	return false
}

// ContainerByDigest returns the record for a full container id.
func (s *Store) ContainerByDigest(id string) (*Record, error) {
	s.mu.Lock()
	records, err := s.loadContainers()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, ocierrors.ErrContainerNotFound)
}

// ContainersByImage returns every container whose ImageID matches.
func (s *Store) ContainersByImage(imageID string) ([]Record, error) {
	s.mu.Lock()
	records, err := s.loadContainers()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var matched []Record
	for _, r := range records {
		if r.ImageID == imageID {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// List returns every container record.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadContainers()
}

// AddRootfsDiff prepends layerDigest to the container's rootfs_diff,
// matching commit's "prepend to rootfs_diff" invariant.
func (s *Store) AddRootfsDiff(id string, layerDigest digest.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadContainers()
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == id {
			records[i].RootfsDiff = append([]digest.Digest{layerDigest}, records[i].RootfsDiff...)
			return s.saveContainers(records)
		}
	}
	return fmt.Errorf("%s: %w", id, ocierrors.ErrContainerNotFound)
}

// SetTopLayer replaces a container's top_layer digest.
func (s *Store) SetTopLayer(id string, topLayer digest.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadContainers()
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == id {
			records[i].TopLayer = topLayer
			return s.saveContainers(records)
		}
	}
	return fmt.Errorf("%s: %w", id, ocierrors.ErrContainerNotFound)
}

// WriteBuilderConfig JSON-round-trips the mutable working-image config
// to <cnt-id>/builder.json.
func (s *Store) WriteBuilderConfig(id string, cfg *ocispec.Image) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal builder config: %w", err)
	}
	if err := fileutil.AtomicWriteFile(filepath.Join(s.containerDir(id), builderConfigFile), data, 0o644); err != nil {
		return fmt.Errorf("write builder config: %w", err)
	}
	return nil
}

// GetBuilderConfig reads the mutable working-image config for id.
func (s *Store) GetBuilderConfig(id string) (*ocispec.Image, error) {
	data, err := os.ReadFile(filepath.Join(s.containerDir(id), builderConfigFile))
	if err != nil {
		return nil, fmt.Errorf("read builder config: %w", err)
	}
	var cfg ocispec.Image
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse builder config: %w", err)
	}
	return &cfg, nil
}

// RuntimeConfigPath returns the path of the container's OCI runtime
// spec, the file the runtime executor collaborator is handed.
func (s *Store) RuntimeConfigPath(id string) string {
	return filepath.Join(s.containerDir(id), runtimeConfigFile)
}

// ContainerDir exposes the container's directory, used by the Builder
// to locate builder.json/config.json without re-deriving the path.
func (s *Store) ContainerDir(id string) string {
	return s.containerDir(id)
}

// Remove drops the record and its <cnt-id>/ tree.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadContainers()
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if err := s.saveContainers(kept); err != nil {
		return err
	}
	if err := os.RemoveAll(s.containerDir(id)); err != nil {
		return fmt.Errorf("remove container directory %s: %w", id, err)
	}
	return nil
}
