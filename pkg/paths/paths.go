// Package paths provides centralized path handling for dotapply.
// The engine never reads the process environment for its home or dotfiles
// root; both are threaded in explicitly through a Paths value. Environment
// lookups happen only in FromEnvironment, at the CLI edge.
package paths

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/dotapply/pkg/errors"
)

// Environment variable names
const (
	// EnvDotfilesRoot is the primary environment variable for dotfiles location
	EnvDotfilesRoot = "DOTFILES_ROOT"

	// EnvHome overrides the home directory links are created under
	EnvHome = "DOTAPPLY_HOME"

	// EnvConfigDir overrides the XDG config directory for dotapply
	EnvConfigDir = "DOTAPPLY_CONFIG_DIR"

	// EnvStateDir overrides the XDG state directory for dotapply
	EnvStateDir = "DOTAPPLY_STATE_DIR"
)

// Fixed layout inside the dotfiles root and the XDG directories
const (
	AppDirName     = "dotapply"
	ConfigFileName = "dotapply.toml"
	FilesDir       = "files"
	SecretsDir     = "secrets"
	KeysDir        = "keys"
	BootstrapDir   = "bootstrap"
	SecretExt      = ".age"
)

// Paths resolves every location the engine touches
type Paths struct {
	home         string
	dotfilesRoot string
	configDir    string
	stateDir     string
}

// New creates a Paths rooted at the given home and dotfiles root. Both must
// be absolute. XDG config and state directories default to the xdg package
// values and can be replaced with WithConfigDir and WithStateDir.
func New(home, dotfilesRoot string) (*Paths, error) {
	if home == "" || !filepath.IsAbs(home) {
		return nil, errors.Newf(errors.ErrInvalidInput, "home directory must be absolute, got %q", home)
	}
	if dotfilesRoot == "" || !filepath.IsAbs(dotfilesRoot) {
		return nil, errors.Newf(errors.ErrInvalidInput, "dotfiles root must be absolute, got %q", dotfilesRoot)
	}

	return &Paths{
		home:         filepath.Clean(home),
		dotfilesRoot: filepath.Clean(dotfilesRoot),
		configDir:    filepath.Join(xdg.ConfigHome, AppDirName),
		stateDir:     filepath.Join(xdg.StateHome, AppDirName),
	}, nil
}

// WithConfigDir returns a copy using dir for key material
func (p *Paths) WithConfigDir(dir string) *Paths {
	cp := *p
	cp.configDir = filepath.Clean(dir)
	return &cp
}

// WithStateDir returns a copy using dir for generated state
func (p *Paths) WithStateDir(dir string) *Paths {
	cp := *p
	cp.stateDir = filepath.Clean(dir)
	return &cp
}

// FromEnvironment builds Paths from flags and the process environment.
// rootFlag wins over DOTFILES_ROOT, which wins over the enclosing git
// repository, which wins over the working directory.
func FromEnvironment(rootFlag string) (*Paths, error) {
	home := os.Getenv(EnvHome)
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrFileAccess, "failed to get home directory")
		}
		home = h
	}

	root, err := findDotfilesRoot(rootFlag, home)
	if err != nil {
		return nil, err
	}

	p, err := New(home, root)
	if err != nil {
		return nil, err
	}
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		p = p.WithConfigDir(p.ExpandHome(dir))
	}
	if dir := os.Getenv(EnvStateDir); dir != "" {
		p = p.WithStateDir(p.ExpandHome(dir))
	}
	return p, nil
}

func findDotfilesRoot(rootFlag, home string) (string, error) {
	root := rootFlag
	if root == "" {
		root = os.Getenv(EnvDotfilesRoot)
	}
	if root == "" {
		if gitRoot, err := findGitRoot(); err == nil {
			root = gitRoot
		}
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, errors.ErrFileAccess, "failed to get current directory")
		}
		root = cwd
	}

	root = expandHome(root, home)
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrFileAccess, "failed to get absolute path for dotfiles root")
	}
	return abs, nil
}

// findGitRoot attempts to find the root of the current git repository
func findGitRoot() (string, error) {
	output, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", err
	}
	gitRoot := strings.TrimSpace(string(output))
	if gitRoot == "" {
		return "", errors.New(errors.ErrNotFound, "git root is empty")
	}
	return gitRoot, nil
}

// expandHome expands a leading ~ against home. "~user" forms are left alone.
func expandHome(path, home string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) == 1 {
		return home
	}
	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Home returns the home directory links are created under
func (p *Paths) Home() string {
	return p.home
}

// DotfilesRoot returns the repository storage root
func (p *Paths) DotfilesRoot() string {
	return p.dotfilesRoot
}

// ConfigDir returns the dotapply config directory
func (p *Paths) ConfigDir() string {
	return p.configDir
}

// StateDir returns the dotapply state directory
func (p *Paths) StateDir() string {
	return p.stateDir
}

// ConfigFile returns the path of the root configuration file
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.dotfilesRoot, ConfigFileName)
}

// ProfileDir returns the storage directory of a profile
func (p *Paths) ProfileDir(profile string) string {
	return filepath.Join(p.dotfilesRoot, profile)
}

// StoragePath makes a root-relative storage path absolute
func (p *Paths) StoragePath(rel string) string {
	return filepath.Join(p.dotfilesRoot, rel)
}

// KeyPath returns the age identity file of a profile
func (p *Paths) KeyPath(profile string) string {
	return filepath.Join(p.configDir, KeysDir, profile+".txt")
}

// KeyMetadataPath returns the key-creation metadata file of a profile
func (p *Paths) KeyMetadataPath(profile string) string {
	return filepath.Join(p.configDir, KeysDir, profile+".toml")
}

// BootstrapScriptPath returns where the generated setup script is written
func (p *Paths) BootstrapScriptPath(profile string) string {
	return filepath.Join(p.stateDir, BootstrapDir, profile+".sh")
}

// ExpandHome expands ~ against this Paths' home
func (p *Paths) ExpandHome(path string) string {
	return expandHome(path, p.home)
}

// ContractHome rewrites an absolute path under home into "~/..." form
func (p *Paths) ContractHome(path string) string {
	clean := filepath.Clean(path)
	if clean == p.home {
		return "~"
	}
	if rel, ok := strings.CutPrefix(clean, p.home+string(filepath.Separator)); ok {
		return "~/" + filepath.ToSlash(rel)
	}
	return clean
}

// Target returns the absolute location of an original path. Relative
// paths are taken relative to home.
func (p *Paths) Target(original string) (string, error) {
	if strings.TrimSpace(original) == "" {
		return "", errors.New(errors.ErrInvalidInput, "empty path")
	}
	expanded := p.ExpandHome(original)
	if !filepath.IsAbs(expanded) {
		if strings.HasPrefix(expanded, "~") {
			return "", errors.Newf(errors.ErrInvalidInput, "cannot expand %q", original)
		}
		expanded = filepath.Join(p.home, expanded)
	}
	return filepath.Clean(expanded), nil
}

// Canonical returns the form an original path is hashed under: absolute,
// cleaned, and contracted to "~/..." when it lives under home, so the same
// tracked file maps identically on machines with different home paths.
func (p *Paths) Canonical(original string) (string, error) {
	target, err := p.Target(original)
	if err != nil {
		return "", err
	}
	return p.ContractHome(target), nil
}

// InDotfilesRoot reports whether path lies inside repository storage
func (p *Paths) InDotfilesRoot(path string) bool {
	clean := filepath.Clean(path)
	return clean == p.dotfilesRoot || strings.HasPrefix(clean, p.dotfilesRoot+string(filepath.Separator))
}
