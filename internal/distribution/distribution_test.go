package distribution

import (
	"testing"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

func TestParseReferenceAcceptsTagged(t *testing.T) {
	ref, err := ParseReference("docker.io/library/alpine:3.19", false)
	if err != nil {
		t.Fatalf("parse reference: %v", err)
	}
	if ref.Name() == "" {
		t.Fatalf("parsed reference has empty name")
	}
}

func TestParseReferenceRejectsInvalid(t *testing.T) {
	if _, err := ParseReference("  not a valid ref  ", false); err == nil {
		t.Fatalf("expected error for invalid reference")
	}
}

func TestBuildAuthAnonymous(t *testing.T) {
	opts := BuildAuth(false, true)
	if len(opts) != 1 {
		t.Fatalf("anonymous auth produced %d options, want 1", len(opts))
	}
}

func TestBuildAuthInsecureAddsTransport(t *testing.T) {
	opts := BuildAuth(true, true)
	if len(opts) != 2 {
		t.Fatalf("insecure+anonymous auth produced %d options, want 2", len(opts))
	}
}

func TestNormalizeManifestConvertsDockerMediaTypes(t *testing.T) {
	m := &ocispec.Manifest{
		MediaType: "application/vnd.docker.distribution.manifest.v2+json",
		Config:    ocispec.Descriptor{MediaType: "application/vnd.docker.container.image.v1+json"},
		Layers: []ocispec.Descriptor{
			{MediaType: "application/vnd.docker.image.rootfs.diff.tar.gzip"},
		},
	}
	normalizeManifest(m)

	if m.MediaType != ocispec.MediaTypeImageManifest {
		t.Fatalf("manifest media type = %q, want %q", m.MediaType, ocispec.MediaTypeImageManifest)
	}
	if m.Config.MediaType != ocispec.MediaTypeImageConfig {
		t.Fatalf("config media type = %q, want %q", m.Config.MediaType, ocispec.MediaTypeImageConfig)
	}
	if m.Layers[0].MediaType != ocispec.MediaTypeImageLayerGzip {
		t.Fatalf("layer media type = %q, want %q", m.Layers[0].MediaType, ocispec.MediaTypeImageLayerGzip)
	}
}
