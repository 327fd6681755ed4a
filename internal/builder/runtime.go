package builder

import (
	"fmt"
	"os"
	"os/exec"
)

// RuntimeExecutor is the runtime executor contract: given a bundle
// directory (holding config.json and rootfs/) and a runtime root
// directory for state, create and start a container with id,
// propagating its exit status. Builder does not interpret the runtime
// spec beyond setting process.args and root.readonly; everything else
// about how the workload actually runs belongs to this collaborator.
type RuntimeExecutor interface {
	Run(id, bundleDir, runtimeRoot string, systemdCgroup bool) error
}

// execRuntimeExecutor shells out to an external OCI-compliant runtime
// binary (runc by convention; crun and others implement the same CLI
// contract), mirroring how the overlay mount falls back to the
// fuse-overlayfs subprocess for unprivileged callers.
type execRuntimeExecutor struct {
	binary string
}

// DefaultRuntimeExecutor returns the runc-backed executor used unless
// the caller supplies its own (e.g. in tests).
func DefaultRuntimeExecutor() RuntimeExecutor {
	return &execRuntimeExecutor{binary: "runc"}
}

func (e *execRuntimeExecutor) Run(id, bundleDir, runtimeRoot string, systemdCgroup bool) error {
	args := []string{"--root", runtimeRoot}
	if systemdCgroup {
		args = append(args, "--systemd-cgroup")
	}
	args = append(args, "run", "--bundle", bundleDir, id)
	cmd := exec.Command(e.binary, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", e.binary, err)
	}
	return nil
}
