package builder

import (
	"fmt"
	"strings"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ConfigOptions carries the fields of a config update; a nil pointer
// leaves the corresponding config value untouched.
type ConfigOptions struct {
	Author     *string
	User       *string
	WorkingDir *string
	StopSignal *string
	CreatedBy  *string
	Cmd        *string
	Entrypoint *string
	Env        *string
	Label      *string
	Port       *string
	AddHistory bool
}

// Config applies opts to container's mutable working-image config.
// Each field's setter prepends its own "#(nop)" history line when
// AddHistory is set, mirroring how a Dockerfile instruction stamps
// one history entry per directive.
func (b *Builder) Config(container string, opts ConfigOptions) error {
	return b.withLock(func() error {
		return b.config(container, opts)
	})
}

func (b *Builder) config(containerName string, opts ConfigOptions) error {
	cntID, err := b.Containers.ContainerDigest(containerName)
	if err != nil {
		return err
	}
	cfg, err := b.Containers.GetBuilderConfig(cntID)
	if err != nil {
		return err
	}

	if opts.Author != nil {
		setAuthor(cfg, *opts.Author, opts.AddHistory)
	}
	if opts.User != nil {
		setUser(cfg, *opts.User, opts.AddHistory)
	}
	if opts.WorkingDir != nil {
		setWorkingDir(cfg, *opts.WorkingDir, opts.AddHistory)
	}
	if opts.StopSignal != nil {
		setStopSignal(cfg, *opts.StopSignal, opts.AddHistory)
	}
	if opts.CreatedBy != nil {
		// created_by becomes its own history line unconditionally, not
		// gated on AddHistory: it IS the line, not a side effect of one.
		setCreatedBy(cfg, *opts.CreatedBy)
	}
	if opts.Cmd != nil {
		setCmd(cfg, *opts.Cmd, opts.AddHistory)
	}
	if opts.Entrypoint != nil {
		setEntrypoint(cfg, *opts.Entrypoint, opts.AddHistory)
	}
	if opts.Env != nil {
		setEnv(cfg, *opts.Env, opts.AddHistory)
	}
	if opts.Label != nil {
		setLabel(cfg, *opts.Label, opts.AddHistory)
	}
	if opts.Port != nil {
		setPort(cfg, *opts.Port, opts.AddHistory)
	}

	if err := b.Containers.WriteBuilderConfig(cntID, cfg); err != nil {
		return err
	}
	return nil
}

func prependHistory(cfg *ocispec.Image, author, createdBy string) {
	now := time.Now().UTC()
	h := ocispec.History{
		Created:    &now,
		CreatedBy:  createdBy,
		EmptyLayer: true,
	}
	if author != "" {
		h.Author = author
	}
	cfg.History = append([]ocispec.History{h}, cfg.History...)
}

func setAuthor(cfg *ocispec.Image, author string, addHistory bool) {
	cfg.Author = author
	if addHistory {
		prependHistory(cfg, author, fmt.Sprintf("/bin/sh -c #(nop) MAINTAINER %s", author))
	}
}

func setUser(cfg *ocispec.Image, user string, addHistory bool) {
	cfg.Config.User = user
	if addHistory {
		prependHistory(cfg, "", fmt.Sprintf("/bin/sh -c #(nop) USER %s", user))
	}
}

func setWorkingDir(cfg *ocispec.Image, dir string, addHistory bool) {
	cfg.Config.WorkingDir = dir
	if addHistory {
		prependHistory(cfg, "", fmt.Sprintf("/bin/sh -c #(nop) WORKDIR %s", dir))
	}
}

func setStopSignal(cfg *ocispec.Image, signal string, addHistory bool) {
	cfg.Config.StopSignal = signal
	if addHistory {
		prependHistory(cfg, "", fmt.Sprintf("/bin/sh -c #(nop) STOPSIGNAL %s", signal))
	}
}

func setCreatedBy(cfg *ocispec.Image, createdBy string) {
	prependHistory(cfg, "", createdBy)
}

func setCmd(cfg *ocispec.Image, cmd string, addHistory bool) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return
	}
	cfg.Config.Cmd = fields
	if addHistory {
		prependHistory(cfg, "", fmt.Sprintf("/bin/sh -c #(nop) CMD %v", fields))
	}
}

func setEntrypoint(cfg *ocispec.Image, entrypoint string, addHistory bool) {
	fields := strings.Fields(entrypoint)
	if len(fields) == 0 {
		return
	}
	entry := append([]string{"/bin/sh", "-c"}, fields...)
	cfg.Config.Entrypoint = entry
	if addHistory {
		prependHistory(cfg, "", fmt.Sprintf("/bin/sh -c #(nop) ENTRYPOINT %v", entry))
	}
}

// setEnv merges comma-separated key=value pairs into the config's env
// list, replacing any existing value for the same key (last writer
// wins), and recording only the keys actually supplied in the history
// line.
func setEnv(cfg *ocispec.Image, env string, addHistory bool) {
	existing := envMap(cfg.Config.Env)
	var changed []string
	for _, item := range strings.Split(env, ",") {
		key, value, ok := splitKeyValue(item)
		if !ok {
			continue
		}
		existing[key] = value
		changed = append(changed, key+"="+value)
	}
	if len(existing) == 0 {
		cfg.Config.Env = nil
		return
	}
	cfg.Config.Env = envList(existing)
	if addHistory && len(changed) > 0 {
		prependHistory(cfg, "", fmt.Sprintf("/bin/sh -c #(nop) ENV %s", strings.Join(changed, " ")))
	}
}

func setLabel(cfg *ocispec.Image, label string, addHistory bool) {
	if cfg.Config.Labels == nil {
		cfg.Config.Labels = map[string]string{}
	}
	var changed []string
	for _, item := range strings.Split(label, ",") {
		key, value, ok := splitKeyValue(item)
		if !ok {
			continue
		}
		cfg.Config.Labels[key] = value
		changed = append(changed, key+"="+value)
	}
	if len(cfg.Config.Labels) == 0 {
		cfg.Config.Labels = nil
		return
	}
	if addHistory && len(changed) > 0 {
		prependHistory(cfg, "", fmt.Sprintf("/bin/sh -c #(nop) LABEL %s", strings.Join(changed, " ")))
	}
}

func setPort(cfg *ocispec.Image, port string, addHistory bool) {
	if cfg.Config.ExposedPorts == nil {
		cfg.Config.ExposedPorts = map[string]struct{}{}
	}
	var added []string
	for _, item := range strings.Split(port, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !strings.Contains(item, "/") {
			item += "/tcp"
		}
		if _, ok := cfg.Config.ExposedPorts[item]; !ok {
			cfg.Config.ExposedPorts[item] = struct{}{}
			added = append(added, item)
		}
	}
	if len(cfg.Config.ExposedPorts) == 0 {
		cfg.Config.ExposedPorts = nil
		return
	}
	if addHistory && len(added) > 0 {
		prependHistory(cfg, "", fmt.Sprintf("/bin/sh -c #(nop) EXPOSE %s", strings.Join(added, " ")))
	}
}

func splitKeyValue(item string) (key, value string, ok bool) {
	parts := strings.SplitN(item, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func envMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, item := range env {
		if key, value, ok := splitKeyValue(item); ok {
			m[key] = value
		}
	}
	return m
}

func envList(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}
