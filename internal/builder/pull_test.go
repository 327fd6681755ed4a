//go:build linux
// +build linux

package builder

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/v1/static"
	"github.com/google/go-containerregistry/pkg/v1/types"

	"github.com/ocibuilder/ocibuilder/internal/layerstore"
)

func TestPullOneLayerReportsProgress(t *testing.T) {
	b := newTestBuilder(t)
	tarGz := mustBuildTinyTarGz(t)
	layer := static.NewLayer(tarGz, types.OCILayer)

	var buf bytes.Buffer
	b.Output = &buf

	if err := b.pullOneLayer(layer); err != nil {
		t.Fatalf("pull one layer: %v", err)
	}
	if !strings.Contains(buf.String(), "pull complete") {
		t.Fatalf("output = %q, want a pull-complete progress line", buf.String())
	}

	buf.Reset()
	if err := b.pullOneLayer(layer); err != nil {
		t.Fatalf("pull already-present layer: %v", err)
	}
	if !strings.Contains(buf.String(), "already exists") {
		t.Fatalf("output = %q, want an already-exists progress line on second pull", buf.String())
	}
}

func mustBuildTinyTarGz(t *testing.T) []byte {
	t.Helper()
	dir := t.TempDir()
	var tarBuf bytes.Buffer
	if err := layerstore.TarDiff(dir, &tarBuf); err != nil {
		t.Fatalf("tar empty dir: %v", err)
	}
	var gzBuf bytes.Buffer
	if err := layerstore.Gzip(&gzBuf, &tarBuf); err != nil {
		t.Fatalf("gzip tar: %v", err)
	}
	return gzBuf.Bytes()
}
