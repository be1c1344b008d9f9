package packager

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rzbill/agentdeploy/pkg/log"
)

// Installer installs Python dependencies into a target directory.
type Installer interface {
	Install(ctx context.Context, requirements, target string) error
}

// UVInstaller installs wheels for the runtime's platform with uv.
type UVInstaller struct {
	// Binary defaults to "uv".
	Binary string
	// Platform defaults to aarch64-manylinux2014, the runtime's architecture.
	Platform string
	// PythonVersion defaults to 3.11.
	PythonVersion string
	Logger        log.Logger
}

// Args returns the uv command line.
func (u *UVInstaller) Args(requirements, target string) []string {
	platform := u.Platform
	if platform == "" {
		platform = "aarch64-manylinux2014"
	}
	version := u.PythonVersion
	if version == "" {
		version = "3.11"
	}
	return []string{
		"pip", "install",
		"--python-platform", platform,
		"--python-version", version,
		"--target", target,
		"--only-binary=:all:",
		"-r", requirements,
	}
}

// Install runs uv.
func (u *UVInstaller) Install(ctx context.Context, requirements, target string) error {
	bin := resolveBinary(u.Binary)
	args := u.Args(requirements, target)
	if u.Logger != nil {
		u.Logger.Debug("running installer", log.Str("command", bin+" "+strings.Join(args, " ")))
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("dependency installation failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// resolveBinary finds uv on PATH, falling back to ~/.local/bin where the
// uv installer puts it.
func resolveBinary(bin string) string {
	if bin == "" {
		bin = "uv"
	}
	if strings.ContainsRune(bin, os.PathSeparator) {
		return bin
	}
	if _, err := exec.LookPath(bin); err == nil {
		return bin
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".local", "bin", bin)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return bin
}
