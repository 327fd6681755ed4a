package containerstore

import (
	"fmt"
	"os"
	"strings"

	runtimespec "github.com/opencontainers/runtime-spec/specs-go"
)

// GenerateRuntimeSpec produces an OCI runtime spec for record and
// writes it to <cnt-id>/config.json. Root execution gets the default
// namespace set; a nonzero effective uid gets the rootless rewrite:
// the network namespace is dropped (an unprivileged process cannot
// configure one), a fresh user namespace is added with a single
// euid/egid-to-0 mapping, /sys is remounted read-only without suid or
// exec, and any uid=/gid= mount options are stripped (they require
// privileges the calling user doesn't have).
func (s *Store) GenerateRuntimeSpec(record *Record) error {
	spec := defaultRuntimeSpec(record.ID)

	if euid := os.Geteuid(); euid != 0 {
		rewriteForRootless(spec, euid, os.Getegid())
	}

	data, err := marshalSpec(spec)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.containerDir(record.ID), 0o755); err != nil {
		return fmt.Errorf("create container directory: %w", err)
	}
	if err := writeFile(s.RuntimeConfigPath(record.ID), data); err != nil {
		return fmt.Errorf("write runtime spec: %w", err)
	}
	return nil
}

func defaultRuntimeSpec(id string) *runtimespec.Spec {
	return &runtimespec.Spec{
		Version: runtimespec.Version,
		Process: &runtimespec.Process{
			Terminal: false,
			Cwd:      "/",
			Args:     []string{"/bin/sh"},
			Env:      []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"},
		},
		Root: &runtimespec.Root{
			Path:     "rootfs",
			Readonly: true,
		},
		Hostname: id[:12],
		Mounts:   defaultMounts(),
		Linux: &runtimespec.Linux{
			Namespaces: []runtimespec.LinuxNamespace{
				{Type: runtimespec.PIDNamespace},
				{Type: runtimespec.NetworkNamespace},
				{Type: runtimespec.IPCNamespace},
				{Type: runtimespec.UTSNamespace},
				{Type: runtimespec.MountNamespace},
			},
		},
	}
}

func defaultMounts() []runtimespec.Mount {
	return []runtimespec.Mount{
		{Destination: "/proc", Type: "proc", Source: "proc"},
		{Destination: "/dev", Type: "tmpfs", Source: "tmpfs",
			Options: []string{"nosuid", "strictatime", "mode=755", "size=65536k"}},
		{Destination: "/dev/pts", Type: "devpts", Source: "devpts",
			Options: []string{"nosuid", "noexec", "newinstance", "ptmxmode=0666", "mode=0620"}},
		{Destination: "/dev/shm", Type: "tmpfs", Source: "shm",
			Options: []string{"nosuid", "noexec", "nodev", "mode=1777", "size=65536k"}},
		{Destination: "/sys", Type: "sysfs", Source: "sysfs",
			Options: []string{"nosuid", "noexec", "nodev", "ro"}},
	}
}

func rewriteForRootless(spec *runtimespec.Spec, euid, egid int) {
	kept := spec.Linux.Namespaces[:0]
	for _, ns := range spec.Linux.Namespaces {
		if ns.Type == runtimespec.NetworkNamespace || ns.Type == runtimespec.UserNamespace {
			continue
		}
		kept = append(kept, ns)
	}
	kept = append(kept, runtimespec.LinuxNamespace{Type: runtimespec.UserNamespace})
	spec.Linux.Namespaces = kept

	spec.Linux.UIDMappings = []runtimespec.LinuxIDMapping{
		{HostID: uint32(euid), ContainerID: 0, Size: 1},
	}
	spec.Linux.GIDMappings = []runtimespec.LinuxIDMapping{
		{HostID: uint32(egid), ContainerID: 0, Size: 1},
	}

	for i, m := range spec.Mounts {
		if m.Destination == "/sys" {
			spec.Mounts[i].Options = []string{"rbind", "nosuid", "noexec", "nodev", "ro"}
			spec.Mounts[i].Type = "bind"
			spec.Mounts[i].Source = "/sys"
		}
		spec.Mounts[i].Options = stripIDOptions(spec.Mounts[i].Options)
	}
}

func stripIDOptions(options []string) []string {
	kept := options[:0]
	for _, o := range options {
		if strings.HasPrefix(o, "uid=") || strings.HasPrefix(o, "gid=") {
			continue
		}
		kept = append(kept, o)
	}
	return kept
}
