package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveRootExplicitWins(t *testing.T) {
	t.Setenv(RootDirEnvVar, "/env/root")
	if got := ResolveRoot("/explicit/root"); got != "/explicit/root" {
		t.Fatalf("ResolveRoot = %q, want %q", got, "/explicit/root")
	}
}

func TestResolveRootFallsBackToEnv(t *testing.T) {
	t.Setenv(RootDirEnvVar, "/env/root")
	if got := ResolveRoot(""); got != "/env/root" {
		t.Fatalf("ResolveRoot = %q, want %q", got, "/env/root")
	}
}

func TestResolveRootFallsBackToHome(t *testing.T) {
	t.Setenv(RootDirEnvVar, "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	want := filepath.Join(home, ".local", "share", "ocibuilder")
	if got := ResolveRoot(""); got != want {
		t.Fatalf("ResolveRoot = %q, want %q", got, want)
	}
}

func TestRuntimeDirNonRootUnderRunUser(t *testing.T) {
	dir := RuntimeDir()
	if filepath.Base(dir) != RuntimeName {
		t.Fatalf("RuntimeDir() = %q, want base name %q", dir, RuntimeName)
	}
	if euid := os.Geteuid(); euid != 0 {
		want := filepath.Join("/run", "user", fmt.Sprint(euid), RuntimeName)
		if dir != want {
			t.Fatalf("RuntimeDir() = %q, want %q for a non-root euid", dir, want)
		}
	}
}
