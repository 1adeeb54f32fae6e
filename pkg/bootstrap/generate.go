package bootstrap

import (
	"bytes"
	"embed"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/logging"
	"github.com/arthur-debert/dotapply/pkg/packages"
	"github.com/arthur-debert/dotapply/pkg/paths"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/rs/zerolog"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var scriptTemplate = template.Must(template.ParseFS(templatesFS, "templates/bootstrap.sh.tmpl"))

// ScriptMode leaves the generated script non-executable so running it is
// always a deliberate step
const ScriptMode os.FileMode = 0644

type scriptData struct {
	Profile   string
	Generated string
	Formulae  []string
	Casks     []string
	Source    string
	Body      string
}

// Generator renders and classifies a profile's setup script
type Generator struct {
	fs     types.FS
	paths  *paths.Paths
	now    func() time.Time
	logger zerolog.Logger
}

// NewGenerator creates a Generator
func NewGenerator(fs types.FS, p *paths.Paths) *Generator {
	return &Generator{
		fs:     fs,
		paths:  p,
		now:    time.Now,
		logger: logging.GetLogger("apply.bootstrap"),
	}
}

// WithClock sets the time source stamped into the script header
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Render builds the script content for profile: package installs followed
// by the profile's own bootstrap script, if it has one.
func (g *Generator) Render(profile types.Profile) ([]byte, error) {
	data := scriptData{
		Profile:   profile.Name,
		Generated: g.now().UTC().Format(time.RFC3339),
	}
	for _, spec := range profile.HomebrewPackages {
		pkg := packages.Parse(spec)
		switch {
		case pkg.Name == "":
		case pkg.Kind == types.PackageCask:
			data.Casks = append(data.Casks, pkg.Name)
		default:
			data.Formulae = append(data.Formulae, pkg.Name)
		}
	}

	if profile.BootstrapScript != "" {
		source := profile.BootstrapScript
		if !filepath.IsAbs(source) {
			source = filepath.Join(g.paths.ProfileDir(profile.Name), source)
		}
		body, err := g.fs.ReadFile(source)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrNotFound, "cannot read bootstrap script %s", source)
		}
		data.Source = g.paths.ContractHome(source)
		data.Body = stripShebang(string(body))
	}

	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, data); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to render bootstrap script")
	}
	return buf.Bytes(), nil
}

func stripShebang(body string) string {
	if strings.HasPrefix(body, "#!") {
		if _, rest, found := strings.Cut(body, "\n"); found {
			body = rest
		} else {
			body = ""
		}
	}
	return strings.TrimRight(body, " \t\r\n")
}

// Generate renders, classifies and, unless dryRun, writes the script to
// the state directory. The written file is left in place for review.
func (g *Generator) Generate(profile types.Profile, dryRun bool) (types.BootstrapScript, error) {
	path := g.paths.BootstrapScriptPath(profile.Name)
	content, err := g.Render(profile)
	if err != nil {
		return types.BootstrapScript{Path: path}, err
	}

	script := Classify(path, content)
	logger := g.logger.With().Str("profile", profile.Name).Str("path", path).Logger()
	for _, m := range script.Matches {
		logger.Debug().Int("line", m.Line).Str("rule", m.Rule).Str("level", m.Level.String()).Msg("Script pattern matched")
	}

	if dryRun {
		return script, nil
	}

	if existing, err := g.fs.ReadFile(path); err == nil && sameScript(existing, content) {
		script.Written = true
		logger.Debug().Msg("Bootstrap script unchanged")
		return script, nil
	}

	if err := g.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return script, errors.Wrapf(err, errors.ErrDirCreate, "cannot create %s", filepath.Dir(path))
	}
	if err := g.fs.WriteFile(path, content, ScriptMode); err != nil {
		return script, errors.Wrapf(err, errors.ErrFileWrite, "cannot write bootstrap script %s", path)
	}
	script.Written = true
	logger.Info().Str("level", script.Level.String()).Msg("Generated bootstrap script")
	return script, nil
}

// sameScript compares two rendered scripts ignoring the generation stamp
// on the header line
func sameScript(a, b []byte) bool {
	al := bytes.SplitN(a, []byte("\n"), 3)
	bl := bytes.SplitN(b, []byte("\n"), 3)
	if len(al) != len(bl) {
		return false
	}
	for i := range al {
		if i == 1 {
			continue
		}
		if !bytes.Equal(al[i], bl[i]) {
			return false
		}
	}
	return true
}

// ClassificationError returns the error matching a script's level, or
// nil for Safe and Warning scripts
func ClassificationError(script types.BootstrapScript) error {
	switch script.Level {
	case types.SafetyBlocked:
		return errors.Newf(errors.ErrScriptBlocked, "%s contains a blocked pattern", script.Path).
			WithDetail("path", script.Path)
	case types.SafetyDangerous:
		return errors.Newf(errors.ErrScriptDangerous, "%s escalates privileges", script.Path).
			WithDetail("path", script.Path)
	}
	return nil
}
