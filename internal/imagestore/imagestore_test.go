package imagestore

import (
	"errors"
	"testing"
	"time"

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

func TestSplitRepoTagDefaultsLatest(t *testing.T) {
	repo, tag := SplitRepoTag("myimage")
	if repo != "myimage" || tag != "latest" {
		t.Fatalf("SplitRepoTag(myimage) = (%q, %q), want (myimage, latest)", repo, tag)
	}
}

func TestSplitRepoTagExplicitTag(t *testing.T) {
	repo, tag := SplitRepoTag("myimage:v2")
	if repo != "myimage" || tag != "v2" {
		t.Fatalf("SplitRepoTag(myimage:v2) = (%q, %q), want (myimage, v2)", repo, tag)
	}
}

func TestSplitRepoTagIgnoresRegistryPort(t *testing.T) {
	repo, tag := SplitRepoTag("localhost:5000/myimage")
	if repo != "localhost:5000/myimage" || tag != "latest" {
		t.Fatalf("SplitRepoTag(localhost:5000/myimage) = (%q, %q), want (localhost:5000/myimage, latest)", repo, tag)
	}
}

func TestSplitRepoTagRegistryPortWithTag(t *testing.T) {
	repo, tag := SplitRepoTag("localhost:5000/myimage:v1")
	if repo != "localhost:5000/myimage" || tag != "v1" {
		t.Fatalf("SplitRepoTag(localhost:5000/myimage:v1) = (%q, %q), want (localhost:5000/myimage, v1)", repo, tag)
	}
}

func TestSplitRepoTagEmptyRefStaysEmpty(t *testing.T) {
	repo, tag := SplitRepoTag("")
	if repo != "" || tag != "" {
		t.Fatalf("SplitRepoTag(\"\") = (%q, %q), want (\"\", \"\")", repo, tag)
	}
}

func TestWriteImagesAnonymousCommitRecordsEmptyRepoAndTag(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteImages("", "abc123def456", 10, time.Now().UTC()); err != nil {
		t.Fatalf("write images: %v", err)
	}
	records, err := s.Images()
	if err != nil {
		t.Fatalf("images: %v", err)
	}
	if len(records) != 1 || records[0].Repository != "" || records[0].Tag != "" {
		t.Fatalf("records = %+v, want one record with empty repository and tag", records)
	}
}

func TestWriteAndGetConfig(t *testing.T) {
	s := newTestStore(t)
	cfg := &ocispec.Image{Architecture: "amd64", OS: "linux"}
	data := []byte(`{"architecture":"amd64","os":"linux","rootfs":{"type":"layers","diff_ids":[]},"config":{}}`)

	if err := s.WriteConfig("abc123", data); err != nil {
		t.Fatalf("write config: %v", err)
	}
	got, err := s.GetConfig("abc123")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if got.Architecture != cfg.Architecture || got.OS != cfg.OS {
		t.Fatalf("config = %+v, want architecture/os %s/%s", got, cfg.Architecture, cfg.OS)
	}
}

func TestWriteImagesAndImageDigestByRepoTag(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteImages("myimage:v1", "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef", 100, time.Unix(0, 0)); err != nil {
		t.Fatalf("write images: %v", err)
	}

	id, err := s.ImageDigest("myimage:v1")
	if err != nil {
		t.Fatalf("image digest by repo:tag: %v", err)
	}
	if id != "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef" {
		t.Fatalf("resolved id = %q, want the written id", id)
	}
}

func TestImageDigestByIDPrefix(t *testing.T) {
	s := newTestStore(t)
	fullID := "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	if err := s.WriteImages("myimage:v1", fullID, 100, time.Unix(0, 0)); err != nil {
		t.Fatalf("write images: %v", err)
	}

	id, err := s.ImageDigest(fullID[:12])
	if err != nil {
		t.Fatalf("image digest by prefix: %v", err)
	}
	if id != fullID {
		t.Fatalf("resolved id = %q, want %q", id, fullID)
	}
}

func TestImageDigestRejectsShortPrefix(t *testing.T) {
	s := newTestStore(t)
	fullID := "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	if err := s.WriteImages("myimage:v1", fullID, 100, time.Unix(0, 0)); err != nil {
		t.Fatalf("write images: %v", err)
	}

	if _, err := s.ImageDigest(fullID[:8]); err == nil {
		t.Fatalf("expected error resolving a too-short id prefix")
	}
}

func TestImageDigestNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ImageDigest("nonexistent:latest")
	if !errors.Is(err, ocierrors.ErrImageNotFound) {
		t.Fatalf("error = %v, want ErrImageNotFound", err)
	}
}

func TestRemoveDropsRecordAndDirectory(t *testing.T) {
	s := newTestStore(t)
	fullID := "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	if err := s.WriteImages("myimage:v1", fullID, 100, time.Unix(0, 0)); err != nil {
		t.Fatalf("write images: %v", err)
	}
	if err := s.WriteConfig(fullID, []byte("{}")); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := s.Remove(fullID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.ImageDigest("myimage:v1"); !errors.Is(err, ocierrors.ErrImageNotFound) {
		t.Fatalf("image still resolvable after remove: %v", err)
	}
	if _, err := s.GetConfigBytes(fullID); err == nil {
		t.Fatalf("config still readable after remove")
	}
}

func TestRenameMovesImageDirectory(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteConfig("oldid", []byte("{}")); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := s.Rename("oldid", "newid"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := s.GetConfigBytes("newid"); err != nil {
		t.Fatalf("config missing at new id after rename: %v", err)
	}
	if _, err := s.GetConfigBytes("oldid"); err == nil {
		t.Fatalf("config still present at old id after rename")
	}
}

func TestGetManifestBytesRequiresImageRecord(t *testing.T) {
	s := newTestStore(t)
	manifest := &ocispec.Manifest{Versioned: ocispec.Versioned{SchemaVersion: 2}}
	if err := s.WriteManifest("someid", manifest); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	if _, err := s.GetManifestBytes("someid"); !errors.Is(err, ocierrors.ErrImageManifestNotFound) {
		t.Fatalf("error = %v, want ErrImageManifestNotFound before an image record exists", err)
	}

	if err := s.WriteImages("myimage:v1", "someid", 10, time.Unix(0, 0)); err != nil {
		t.Fatalf("write images: %v", err)
	}
	data, err := s.GetManifestBytes("someid")
	if err != nil {
		t.Fatalf("get manifest bytes after record exists: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty manifest bytes")
	}
}
