// Package packager builds the code bundle uploaded for a runtime version:
// the agent sources, optionally their dependencies, and the system prompt,
// zipped with the permissions the runtime service requires.
package packager

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
	"github.com/rzbill/agentdeploy/pkg/utils"
)

// PromptFileName is the name the system prompt is stored under at the
// bundle root.
const PromptFileName = "system_prompt.txt"

const (
	dirMode  os.FileMode = 0o755
	fileMode os.FileMode = 0o644
)

// Entries are stamped with a fixed time so identical inputs produce
// identical bundles.
var epoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Options describes what goes into a bundle.
type Options struct {
	// SourceDir holds the agent program. Its contents land at the bundle root.
	SourceDir string
	// EntryPoint is the file the runtime executes, relative to SourceDir.
	EntryPoint string
	// PromptFile is copied to the bundle root as system_prompt.txt.
	PromptFile string
	// InstallDeps installs Requirements into the bundle before zipping.
	InstallDeps bool
	// Requirements defaults to SourceDir/requirements.txt.
	Requirements string
	// OutputPath defaults to a file in the system temp directory.
	OutputPath string
	// MaxBytes defaults to types.MaxBundleBytes.
	MaxBytes int64
}

// Bundle is a built code bundle.
type Bundle struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
	Files  int    `json:"files"`
}

// Packager builds bundles.
type Packager struct {
	installer Installer
	logger    log.Logger
}

// New creates a Packager. installer may be nil when dependencies are never
// installed.
func New(installer Installer, logger log.Logger) *Packager {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Packager{installer: installer, logger: logger.WithComponent("packager")}
}

// Build validates opts, stages dependencies and writes the zip.
func (p *Packager) Build(ctx context.Context, opts Options) (*Bundle, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.OutputPath == "" {
		opts.OutputPath = filepath.Join(os.TempDir(), "agentdeploy_package.zip")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = types.MaxBundleBytes
	}

	staging, err := os.MkdirTemp("", "agentdeploy-deps-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if opts.InstallDeps {
		if p.installer == nil {
			return nil, fmt.Errorf("dependency installation requested but no installer configured")
		}
		req := opts.Requirements
		if req == "" {
			req = filepath.Join(opts.SourceDir, "requirements.txt")
		}
		if !utils.FileExists(req) {
			return nil, &types.PreconditionError{What: "requirements file", Detail: req + " does not exist"}
		}
		p.logger.Info("installing dependencies", log.Str("requirements", req))
		if err := p.installer.Install(ctx, req, staging); err != nil {
			return nil, err
		}
	}

	files, err := p.write(opts, staging)
	if err != nil {
		os.Remove(opts.OutputPath)
		return nil, err
	}

	digest, size, err := utils.FileDigest(opts.OutputPath)
	if err != nil {
		return nil, err
	}
	if size > opts.MaxBytes {
		os.Remove(opts.OutputPath)
		return nil, &types.PreconditionError{
			What:   "bundle size",
			Detail: fmt.Sprintf("%s exceeds the %s limit", utils.HumanBytes(size), utils.HumanBytes(opts.MaxBytes)),
		}
	}

	p.logger.Info("bundle created",
		log.Str("path", opts.OutputPath),
		log.Str("size", utils.HumanBytes(size)),
		log.Int("files", files))
	return &Bundle{Path: opts.OutputPath, Size: size, Digest: digest, Files: files}, nil
}

func (o Options) validate() error {
	if o.SourceDir == "" || !utils.IsDirectory(o.SourceDir) {
		return &types.PreconditionError{What: "source directory", Detail: fmt.Sprintf("%q is not a directory", o.SourceDir)}
	}
	if o.EntryPoint == "" {
		return types.NewValidationError("entry point is required")
	}
	if !utils.FileExists(filepath.Join(o.SourceDir, o.EntryPoint)) {
		return &types.PreconditionError{What: "entry point", Detail: fmt.Sprintf("%s not found in %s", o.EntryPoint, o.SourceDir)}
	}
	if o.PromptFile != "" && !utils.FileExists(o.PromptFile) {
		return &types.PreconditionError{What: "prompt file", Detail: fmt.Sprintf("%s does not exist", o.PromptFile)}
	}
	return nil
}

// write creates the zip. Later sources override earlier ones: installed
// dependencies, then the agent sources, then the prompt.
func (p *Packager) write(opts Options, staging string) (int, error) {
	entries := make(map[string]string)
	if err := collect(staging, entries); err != nil {
		return 0, err
	}
	if err := collect(opts.SourceDir, entries); err != nil {
		return 0, err
	}
	if opts.PromptFile != "" {
		entries[PromptFileName] = opts.PromptFile
	}

	out, err := os.Create(opts.OutputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", opts.OutputPath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	dirs := make(map[string]bool)
	for _, name := range names {
		if err := writeDirs(zw, name, dirs); err != nil {
			return 0, err
		}
		if err := writeFile(zw, name, entries[name]); err != nil {
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize zip: %w", err)
	}
	return len(names), out.Close()
}

// collect maps archive names to source paths for every file under root.
func collect(root string, entries map[string]string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if Excluded(info.Name(), info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries[filepath.ToSlash(rel)] = path
		return nil
	})
}

// Excluded reports whether a file or directory is left out of bundles.
func Excluded(name string, isDir bool) bool {
	if isDir {
		return name == "__pycache__" || name == ".git" || name == ".venv"
	}
	return strings.HasSuffix(name, ".pyc") || name == ".DS_Store"
}

func writeDirs(zw *zip.Writer, name string, seen map[string]bool) error {
	parts := strings.Split(name, "/")
	for i := 1; i < len(parts); i++ {
		dir := strings.Join(parts[:i], "/") + "/"
		if seen[dir] {
			continue
		}
		seen[dir] = true
		hdr := &zip.FileHeader{Name: dir, Method: zip.Store, Modified: epoch}
		hdr.SetMode(os.ModeDir | dirMode)
		if _, err := zw.CreateHeader(hdr); err != nil {
			return fmt.Errorf("failed to add %s: %w", dir, err)
		}
	}
	return nil
}

func writeFile(zw *zip.Writer, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: epoch}
	hdr.SetMode(fileMode)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
