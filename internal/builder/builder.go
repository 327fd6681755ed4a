// Package builder implements the Builder: the orchestration core that
// composes the LayerStore, ImageStore, and ContainerStore under a
// single process-wide advisory lock and exposes the from/pull/commit/
// run/copy/add/mount/umount/push/save/reset/rm/rmi/inspect operations.
package builder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ocibuilder/ocibuilder/internal/config"
	"github.com/ocibuilder/ocibuilder/internal/containerstore"
	"github.com/ocibuilder/ocibuilder/internal/imagestore"
	"github.com/ocibuilder/ocibuilder/internal/layerstore"
)

const tmpDirName = "tmp"

// Builder owns every on-disk store rooted at a single directory, plus
// the scratch area under tmp/. All state lives here or on disk —
// there is no package-level mutable state.
type Builder struct {
	root       string
	Layers     *layerstore.Store
	Images     *imagestore.Store
	Containers *containerstore.Store
	Executor   RuntimeExecutor

	// Output receives interactive progress lines from pull (one per
	// layer) and push (start and completion): plain text to a writer,
	// not structured logging.
	// Defaults to os.Stdout; set to io.Discard for quiet operation.
	Output   io.Writer
	outputMu sync.Mutex
}

// Open resolves root (per internal/config's fallback chain) and opens
// or initializes every store beneath it.
func Open(rootDir string) (*Builder, error) {
	root := config.ResolveRoot(rootDir)
	if err := os.MkdirAll(filepath.Join(root, tmpDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create tmp directory: %w", err)
	}

	layers, err := layerstore.New(root)
	if err != nil {
		return nil, fmt.Errorf("open layer store: %w", err)
	}
	images, err := imagestore.New(root)
	if err != nil {
		return nil, fmt.Errorf("open image store: %w", err)
	}
	containers, err := containerstore.New(root)
	if err != nil {
		return nil, fmt.Errorf("open container store: %w", err)
	}

	return &Builder{
		root:       root,
		Layers:     layers,
		Images:     images,
		Containers: containers,
		Executor:   DefaultRuntimeExecutor(),
		Output:     os.Stdout,
	}, nil
}

// Root returns the store's root directory.
func (b *Builder) Root() string { return b.root }

// progressf writes a single progress line to Output, defaulting to
// os.Stdout when Output is nil. Safe for concurrent use by the
// parallel per-layer pull tasks.
func (b *Builder) progressf(format string, args ...any) {
	out := b.Output
	if out == nil {
		out = os.Stdout
	}
	b.outputMu.Lock()
	defer b.outputMu.Unlock()
	fmt.Fprintf(out, format+"\n", args...)
}

func (b *Builder) tmpDir() string { return filepath.Join(b.root, tmpDirName) }

// withLock acquires the root builder.lock, runs fn, and releases it on
// every exit path. Every exported top-level operation is implemented
// as a thin wrapper calling withLock around an unexported, unlocked
// variant — internal calls between operations (run calling commit)
// call the unlocked variant directly rather than re-acquiring the
// lock, avoiding a double-lock deadlock.
func (b *Builder) withLock(fn func() error) error {
	l, err := acquireLock(b.root)
	if err != nil {
		return fmt.Errorf("acquire builder lock: %w", err)
	}
	defer l.release()
	return fn()
}
