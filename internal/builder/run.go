package builder

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	runtimespec "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/ocibuilder/ocibuilder/internal/config"
	"github.com/ocibuilder/ocibuilder/internal/layerstore"
)

// Run executes cmd inside container's mounted rootfs via the runtime
// executor collaborator, appends a history entry, and — if the run
// left the diff non-empty — commits it as a new anonymous layer.
func (b *Builder) Run(container string, cmd []string, rundir string, systemdCgroup, addHistory bool) error {
	return b.withLock(func() error {
		return b.run(container, cmd, rundir, systemdCgroup, addHistory)
	})
}

func (b *Builder) run(containerName string, cmd []string, rundir string, systemdCgroup, addHistory bool) error {
	cntID, err := b.Containers.ContainerDigest(containerName)
	if err != nil {
		return err
	}
	record, err := b.Containers.ContainerByDigest(cntID)
	if err != nil {
		return err
	}

	spec, err := b.readRuntimeSpec(cntID)
	if err != nil {
		return err
	}
	spec.Process.Args = cmd
	spec.Root.Readonly = false
	if err := b.writeRuntimeSpec(cntID, spec); err != nil {
		return err
	}

	bundleDir := b.Containers.ContainerDir(cntID)
	mountPoint, err := b.mountTopLayer(record)
	if err != nil {
		return err
	}

	runtimeRoot := rundir
	if runtimeRoot == "" {
		runtimeRoot, err = config.EnsureRuntimeDir(cntID)
		if err != nil {
			layerstore.UnmountOverlay(mountPoint)
			return err
		}
	}
	// Open question (preserved from the source): the runtime root is
	// removed even on a successful run, though the executor may still
	// reference it afterward. Gated on a future keep-runtime-root flag.
	defer os.RemoveAll(runtimeRoot)

	runErr := b.Executor.Run(cntID, bundleDir, runtimeRoot, systemdCgroup)

	if unmountErr := layerstore.UnmountOverlay(mountPoint); unmountErr != nil && runErr == nil {
		runErr = fmt.Errorf("unmount after run: %w", unmountErr)
	}
	if runErr != nil {
		return runErr
	}

	diffPath := b.Layers.OverlayDiffPath(record.TopLayer)
	isEmptyLayer, err := layerstore.IsEmptyDir(diffPath)
	if err != nil {
		return fmt.Errorf("inspect run diff: %w", err)
	}

	if addHistory {
		imgConfig, err := b.Containers.GetBuilderConfig(cntID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		imgConfig.History = append(imgConfig.History, ocispec.History{
			Created:    &now,
			CreatedBy:  runCreatedBy(cmd),
			EmptyLayer: isEmptyLayer,
		})
		if err := b.Containers.WriteBuilderConfig(cntID, imgConfig); err != nil {
			return err
		}
	}

	if !isEmptyLayer {
		if _, err := b.commit(containerName, ""); err != nil {
			return fmt.Errorf("commit after run: %w", err)
		}
	}
	return nil
}

func runCreatedBy(cmd []string) string {
	out := "RUN"
	for _, c := range cmd {
		out += " " + c
	}
	return out
}

func (b *Builder) readRuntimeSpec(cntID string) (*runtimespec.Spec, error) {
	data, err := os.ReadFile(b.Containers.RuntimeConfigPath(cntID))
	if err != nil {
		return nil, fmt.Errorf("read runtime spec: %w", err)
	}
	var spec runtimespec.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse runtime spec: %w", err)
	}
	return &spec, nil
}

func (b *Builder) writeRuntimeSpec(cntID string, spec *runtimespec.Spec) error {
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal runtime spec: %w", err)
	}
	if err := os.WriteFile(b.Containers.RuntimeConfigPath(cntID), data, 0o644); err != nil {
		return fmt.Errorf("write runtime spec: %w", err)
	}
	return nil
}
