//go:build linux
// +build linux

package builder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"

	"github.com/ocibuilder/ocibuilder/pkg/ocierrors"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open builder: %v", err)
	}
	return b
}

func TestFromScratchCreatesWorkingContainer(t *testing.T) {
	b := newTestBuilder(t)

	name, err := b.From("scratch", "", false, false)
	if err != nil {
		t.Fatalf("from scratch: %v", err)
	}
	if name == "" {
		t.Fatalf("expected a generated container name")
	}

	records, err := b.Containers.List()
	if err != nil {
		t.Fatalf("list containers: %v", err)
	}
	if len(records) != 1 || records[0].Name != name {
		t.Fatalf("container records = %+v, want one record named %q", records, name)
	}
}

func TestFromRejectsDuplicateContainerName(t *testing.T) {
	b := newTestBuilder(t)
	if _, err := b.From("scratch", "working", false, false); err != nil {
		t.Fatalf("first from: %v", err)
	}
	_, err := b.From("scratch", "working", false, false)
	if !errors.Is(err, ocierrors.ErrContainerWithSameName) {
		t.Fatalf("error = %v, want ErrContainerWithSameName", err)
	}
}

func TestCommitScratchContainerWithFile(t *testing.T) {
	b := newTestBuilder(t)

	name, err := b.From("scratch", "working", false, false)
	if err != nil {
		t.Fatalf("from scratch: %v", err)
	}

	record, err := b.Containers.ContainerByDigest(mustContainerID(t, b, name))
	if err != nil {
		t.Fatalf("container by digest: %v", err)
	}
	diffPath := b.Layers.OverlayDiffPath(record.TopLayer)
	if err := os.WriteFile(filepath.Join(diffPath, "hello.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("seed diff file: %v", err)
	}

	imageID, err := b.Commit("working", "myimage:v1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if imageID == "" {
		t.Fatalf("expected non-empty image id")
	}

	resolved, err := b.Images.ImageDigest("myimage:v1")
	if err != nil {
		t.Fatalf("resolve committed image: %v", err)
	}
	if resolved != imageID {
		t.Fatalf("resolved id = %q, want %q", resolved, imageID)
	}

	manifest, err := b.Images.GetManifest(imageID)
	if err != nil {
		t.Fatalf("get manifest: %v", err)
	}
	if len(manifest.Layers) != 1 {
		t.Fatalf("manifest has %d layers, want 1", len(manifest.Layers))
	}
}

func TestCommitRejectsDuplicateImageName(t *testing.T) {
	b := newTestBuilder(t)
	if _, err := b.From("scratch", "c1", false, false); err != nil {
		t.Fatalf("from: %v", err)
	}
	if _, err := b.Commit("c1", "myimage:v1"); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	if _, err := b.From("scratch", "c2", false, false); err != nil {
		t.Fatalf("from c2: %v", err)
	}
	_, err := b.Commit("c2", "myimage:v1")
	if !errors.Is(err, ocierrors.ErrImageWithSameName) {
		t.Fatalf("error = %v, want ErrImageWithSameName", err)
	}
}

func TestRmiRefusesImageInUseWithoutForce(t *testing.T) {
	b := newTestBuilder(t)
	if _, err := b.From("scratch", "c1", false, false); err != nil {
		t.Fatalf("from: %v", err)
	}
	imageID, err := b.Commit("c1", "myimage:v1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := b.From("myimage:v1", "c2", false, false); err != nil {
		t.Fatalf("from committed image: %v", err)
	}

	err = b.Rmi([]string{"myimage:v1"}, false)
	if !errors.Is(err, ocierrors.ErrImageUsedByContainer) {
		t.Fatalf("error = %v, want ErrImageUsedByContainer", err)
	}

	if err := b.Rmi([]string{"myimage:v1"}, true); err != nil {
		t.Fatalf("forced rmi: %v", err)
	}
	if _, err := b.Images.ImageDigest(imageID); !errors.Is(err, ocierrors.ErrImageNotFound) {
		t.Fatalf("image still present after forced rmi")
	}
}

func TestConfigUpdatesAuthorAndHistory(t *testing.T) {
	b := newTestBuilder(t)
	if _, err := b.From("scratch", "c1", false, false); err != nil {
		t.Fatalf("from: %v", err)
	}

	author := "jane@example.com"
	if err := b.Config("c1", ConfigOptions{Author: &author, AddHistory: true}); err != nil {
		t.Fatalf("config: %v", err)
	}

	cntID, err := b.Containers.ContainerDigest("c1")
	if err != nil {
		t.Fatalf("container digest: %v", err)
	}
	cfg, err := b.Containers.GetBuilderConfig(cntID)
	if err != nil {
		t.Fatalf("get builder config: %v", err)
	}
	if cfg.Author != author {
		t.Fatalf("author = %q, want %q", cfg.Author, author)
	}
	if len(cfg.History) == 0 || cfg.History[0].Author != author {
		t.Fatalf("expected a prepended history entry recording the author")
	}
}

func TestInspectReturnsContainerConfigThenImageConfig(t *testing.T) {
	b := newTestBuilder(t)
	name, err := b.From("scratch", "working", false, false)
	if err != nil {
		t.Fatalf("from scratch: %v", err)
	}

	data, err := b.Inspect(name)
	if err != nil {
		t.Fatalf("inspect container: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty inspect output for container")
	}

	imageID, err := b.Commit(name, "myimage:v1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	data, err = b.Inspect(imageID)
	if err != nil {
		t.Fatalf("inspect image: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty inspect output for image")
	}
}

func TestResetRemovesStoreDirectories(t *testing.T) {
	b := newTestBuilder(t)
	if _, err := b.From("scratch", "c1", false, false); err != nil {
		t.Fatalf("from: %v", err)
	}

	if err := b.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	for _, dir := range []string{"overlay-images", "overlay-containers", "overlay-layers", "overlay"} {
		if _, err := os.Stat(filepath.Join(b.Root(), dir)); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed by reset", dir)
		}
	}
}

func TestDefaultContainerNameAvoidsCollisions(t *testing.T) {
	taken := map[string]bool{"working-container": true, "working-container-2": true}
	got := defaultContainerName(taken, "working-container")
	if got != "working-container-3" {
		t.Fatalf("defaultContainerName = %q, want %q", got, "working-container-3")
	}
}

func TestReverseDigestsOrder(t *testing.T) {
	a, b2, c := digest.FromString("a"), digest.FromString("b"), digest.FromString("c")
	out := reverseDigests([]digest.Digest{a, b2, c})
	if out[0] != c || out[1] != b2 || out[2] != a {
		t.Fatalf("reversed = %v, want [c b a]", out)
	}
}

func TestPullIsIdempotentForExistingImage(t *testing.T) {
	b := newTestBuilder(t)
	if _, err := b.From("scratch", "working", false, false); err != nil {
		t.Fatalf("from scratch: %v", err)
	}
	imageID, err := b.Commit("working", "myimage:v1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := b.Pull("myimage:v1", false, false)
	if err != nil {
		t.Fatalf("pull of already-present image: %v", err)
	}
	if got != imageID {
		t.Fatalf("pull returned %q, want existing id %q", got, imageID)
	}
}

func TestRmRemovesUnmountedContainer(t *testing.T) {
	b := newTestBuilder(t)
	name, err := b.From("scratch", "working", false, false)
	if err != nil {
		t.Fatalf("from scratch: %v", err)
	}

	if err := b.Rm([]string{name}, false); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if _, err := b.Containers.ContainerDigest(name); err == nil {
		t.Fatalf("container still resolvable after rm")
	}
}

func TestHasRegistryComponent(t *testing.T) {
	cases := map[string]bool{
		"myimage":                  false,
		"library/myimage":          false,
		"localhost/myimage":        true,
		"registry.example.com/img": true,
		"localhost:5000/img":       true,
	}
	for repo, want := range cases {
		if got := hasRegistryComponent(repo); got != want {
			t.Fatalf("hasRegistryComponent(%q) = %v, want %v", repo, got, want)
		}
	}
}

func mustContainerID(t *testing.T, b *Builder, name string) string {
	t.Helper()
	id, err := b.Containers.ContainerDigest(name)
	if err != nil {
		t.Fatalf("container digest for %q: %v", name, err)
	}
	return id
}
