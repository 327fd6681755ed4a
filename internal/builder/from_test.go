//go:build linux
// +build linux

package builder

import (
	"os"
	"path/filepath"
	"testing"
)

func TestImageRepositoryStripsTagAndDigest(t *testing.T) {
	cases := map[string]string{
		"alpine":                         "alpine",
		"alpine:3.19":                    "alpine",
		"registry.example.com/ns/app":    "registry.example.com/ns/app",
		"registry.example.com/ns/app:v1": "registry.example.com/ns/app",
		"localhost:5000/app:v1":          "localhost:5000/app",
		"alpine@sha256:" + testDigestHex: "alpine",
	}
	for ref, want := range cases {
		if got := imageRepository(ref); got != want {
			t.Fatalf("imageRepository(%q) = %q, want %q", ref, got, want)
		}
	}
}

const testDigestHex = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"

func TestFromImageDerivesDefaultContainerNameFromRepository(t *testing.T) {
	b := newTestBuilder(t)
	if _, err := b.From("scratch", "base", false, false); err != nil {
		t.Fatalf("from scratch: %v", err)
	}
	if _, err := b.Commit("base", "registry.example.com/team/myimage:v1"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	name, err := b.From("registry.example.com/team/myimage:v1", "", false, false)
	if err != nil {
		t.Fatalf("from image: %v", err)
	}
	if name != "myimage-working-container" {
		t.Fatalf("default container name = %q, want %q", name, "myimage-working-container")
	}
}

func TestFromImageSeedsConfigAndParentLayers(t *testing.T) {
	b := newTestBuilder(t)
	if _, err := b.From("scratch", "base", false, false); err != nil {
		t.Fatalf("from scratch: %v", err)
	}
	baseRecord, err := b.Containers.ContainerByDigest(mustContainerID(t, b, "base"))
	if err != nil {
		t.Fatalf("container by digest: %v", err)
	}
	seed := filepath.Join(b.Layers.OverlayDiffPath(baseRecord.TopLayer), "hello.txt")
	if err := os.WriteFile(seed, []byte("hi"), 0o644); err != nil {
		t.Fatalf("seed base layer: %v", err)
	}
	imageID, err := b.Commit("base", "myimage:v1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	name, err := b.From("myimage:v1", "child", false, false)
	if err != nil {
		t.Fatalf("from image: %v", err)
	}

	cntID := mustContainerID(t, b, name)
	record, err := b.Containers.ContainerByDigest(cntID)
	if err != nil {
		t.Fatalf("container by digest: %v", err)
	}
	if record.ImageID != imageID {
		t.Fatalf("record.ImageID = %q, want %q", record.ImageID, imageID)
	}
	if len(record.RootfsDiff) != 1 {
		t.Fatalf("record.RootfsDiff = %v, want 1 parent layer", record.RootfsDiff)
	}

	cfg, err := b.Containers.GetBuilderConfig(cntID)
	if err != nil {
		t.Fatalf("get builder config: %v", err)
	}
	if cfg.Created == nil {
		t.Fatalf("expected seeded config to carry a fresh Created timestamp")
	}
}
