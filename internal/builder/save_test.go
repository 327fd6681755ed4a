//go:build linux
// +build linux

package builder

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveProducesNonEmptyArchive(t *testing.T) {
	b := newTestBuilder(t)

	name, err := b.From("scratch", "working", false, false)
	if err != nil {
		t.Fatalf("from scratch: %v", err)
	}
	cntID, err := b.Containers.ContainerDigest(name)
	if err != nil {
		t.Fatalf("container digest: %v", err)
	}
	record, err := b.Containers.ContainerByDigest(cntID)
	if err != nil {
		t.Fatalf("container by digest: %v", err)
	}
	diffPath := b.Layers.OverlayDiffPath(record.TopLayer)
	if err := os.WriteFile(filepath.Join(diffPath, "f.txt"), []byte("data"), 0o644); err != nil {
		t.Fatalf("seed diff file: %v", err)
	}

	imageID, err := b.Commit("working", "myimage:v1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.tar")
	if err := b.Save(imageID, out); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat output archive: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("output archive is empty")
	}
}

func TestSaveRefusesExistingOutputPath(t *testing.T) {
	b := newTestBuilder(t)
	if _, err := b.From("scratch", "working", false, false); err != nil {
		t.Fatalf("from scratch: %v", err)
	}
	imageID, err := b.Commit("working", "myimage:v1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.tar")
	if err := os.WriteFile(out, []byte("existing"), 0o644); err != nil {
		t.Fatalf("seed existing output: %v", err)
	}

	if err := b.Save(imageID, out); err == nil {
		t.Fatalf("expected save to refuse an existing output path")
	}
}
