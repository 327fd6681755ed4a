package containerstore

import (
	"errors"
	"os"
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ocibuilder/ocibuilder/pkg/ocierrors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestCreateAndContainerDigestByName(t *testing.T) {
	s := newTestStore(t)
	top := digest.FromString("top-layer")
	record, err := s.Create("working", "base:latest", "imageid123", top, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.Name != "working" {
		t.Fatalf("record name = %q, want %q", record.Name, "working")
	}

	id, err := s.ContainerDigest("working")
	if err != nil {
		t.Fatalf("container digest by name: %v", err)
	}
	if id != record.ID {
		t.Fatalf("resolved id = %q, want %q", id, record.ID)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("dup", "base", "id1", digest.FromString("a"), nil); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.Create("dup", "base", "id2", digest.FromString("b"), nil)
	if !errors.Is(err, ocierrors.ErrContainerWithSameName) {
		t.Fatalf("error = %v, want ErrContainerWithSameName", err)
	}
}

func TestContainerDigestByIDPrefix(t *testing.T) {
	s := newTestStore(t)
	record, err := s.Create("working", "base", "imageid", digest.FromString("top"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	id, err := s.ContainerDigest(record.ID[:12])
	if err != nil {
		t.Fatalf("container digest by prefix: %v", err)
	}
	if id != record.ID {
		t.Fatalf("resolved id = %q, want %q", id, record.ID)
	}
}

func TestContainerDigestNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ContainerDigest("missing")
	if !errors.Is(err, ocierrors.ErrContainerNotFound) {
		t.Fatalf("error = %v, want ErrContainerNotFound", err)
	}
}

func TestAddRootfsDiffPrepends(t *testing.T) {
	s := newTestStore(t)
	base := digest.FromString("base-layer")
	record, err := s.Create("working", "base", "imageid", digest.FromString("top"), []digest.Digest{base})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newLayer := digest.FromString("new-layer")
	if err := s.AddRootfsDiff(record.ID, newLayer); err != nil {
		t.Fatalf("add rootfs diff: %v", err)
	}

	got, err := s.ContainerByDigest(record.ID)
	if err != nil {
		t.Fatalf("container by digest: %v", err)
	}
	if len(got.RootfsDiff) != 2 || got.RootfsDiff[0] != newLayer || got.RootfsDiff[1] != base {
		t.Fatalf("rootfs_diff = %v, want [%s %s]", got.RootfsDiff, newLayer, base)
	}
}

func TestSetTopLayer(t *testing.T) {
	s := newTestStore(t)
	record, err := s.Create("working", "base", "imageid", digest.FromString("initial"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	replacement := digest.FromString("replacement")
	if err := s.SetTopLayer(record.ID, replacement); err != nil {
		t.Fatalf("set top layer: %v", err)
	}

	got, err := s.ContainerByDigest(record.ID)
	if err != nil {
		t.Fatalf("container by digest: %v", err)
	}
	if got.TopLayer != replacement {
		t.Fatalf("top layer = %s, want %s", got.TopLayer, replacement)
	}
}

func TestContainersByImage(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("c1", "base", "image-a", digest.FromString("t1"), nil); err != nil {
		t.Fatalf("create c1: %v", err)
	}
	if _, err := s.Create("c2", "base", "image-a", digest.FromString("t2"), nil); err != nil {
		t.Fatalf("create c2: %v", err)
	}
	if _, err := s.Create("c3", "base", "image-b", digest.FromString("t3"), nil); err != nil {
		t.Fatalf("create c3: %v", err)
	}

	matched, err := s.ContainersByImage("image-a")
	if err != nil {
		t.Fatalf("containers by image: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("matched %d containers, want 2", len(matched))
	}
}

func TestWriteAndGetBuilderConfig(t *testing.T) {
	s := newTestStore(t)
	record, err := s.Create("working", "base", "imageid", digest.FromString("top"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cfg := &ocispec.Image{Architecture: "amd64", OS: "linux"}
	if err := s.WriteBuilderConfig(record.ID, cfg); err != nil {
		t.Fatalf("write builder config: %v", err)
	}
	got, err := s.GetBuilderConfig(record.ID)
	if err != nil {
		t.Fatalf("get builder config: %v", err)
	}
	if got.Architecture != "amd64" {
		t.Fatalf("architecture = %q, want amd64", got.Architecture)
	}
}

func TestRemoveDropsRecordAndDirectory(t *testing.T) {
	s := newTestStore(t)
	record, err := s.Create("working", "base", "imageid", digest.FromString("top"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Remove(record.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.ContainerExist(record.ID) {
		t.Fatalf("container still exists after remove")
	}
	if _, err := s.GetBuilderConfig(record.ID); err == nil {
		t.Fatalf("builder config still readable after remove")
	}
}

func TestCreateGeneratesRuntimeSpec(t *testing.T) {
	s := newTestStore(t)
	record, err := s.Create("working", "base", "imageid", digest.FromString("top"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	path := s.RuntimeConfigPath(record.ID)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("runtime spec not written at %s: %v", path, err)
	}
}
