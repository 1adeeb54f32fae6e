// pkg/bootstrap/bootstrap_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: MemoryFS
// PURPOSE: Test script rendering and static risk classification

package bootstrap_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arthur-debert/dotapply/pkg/bootstrap"
	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/testutil"
	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLevels(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   types.SafetyLevel
		rule   string
	}{
		{"empty", "", types.SafetySafe, ""},
		{"plain installs", "brew install git\nmkdir -p ~/.cache", types.SafetySafe, ""},
		{"root delete", "rm -rf /", types.SafetyBlocked, bootstrap.RuleRootDelete},
		{"root glob", "rm -fr /*", types.SafetyBlocked, bootstrap.RuleRootDelete},
		{"top level dir", "rm -r -f /usr", types.SafetyBlocked, bootstrap.RuleRootDelete},
		{"long flags", "rm --recursive --force /etc/", types.SafetyBlocked, bootstrap.RuleRootDelete},
		{"home", "rm -rf ~", types.SafetyBlocked, bootstrap.RuleRootDelete},
		{"no preserve root", "rm -rf --no-preserve-root \"$DIR\"", types.SafetyBlocked, bootstrap.RuleRootDelete},
		{"after separator", "cd /tmp && rm -Rf /", types.SafetyBlocked, bootstrap.RuleRootDelete},
		{"sudo and root delete", "sudo rm -rf /", types.SafetyBlocked, bootstrap.RuleRootDelete},
		{"sudo", "sudo softwareupdate -i -a", types.SafetyDangerous, bootstrap.RulePrivilege},
		{"doas", "doas pkg_add git", types.SafetyDangerous, bootstrap.RulePrivilege},
		{"su -c", "su -c 'make install'", types.SafetyDangerous, bootstrap.RulePrivilege},
		{"nested path delete", "rm -rf /tmp/build", types.SafetyWarning, bootstrap.RuleRecursiveDelete},
		{"qualified variable", "rm -rf \"${BUILD_DIR:?}/\"", types.SafetyWarning, bootstrap.RuleRecursiveDelete},
		{"variable glob", "rm -rf $STEAMROOT/*", types.SafetyWarning, bootstrap.RuleRecursiveDelete},
		{"long flags relative", "rm --recursive --force ./build", types.SafetyWarning, bootstrap.RuleRecursiveDelete},
		{"chmod 777", "chmod -R 777 ~/shared", types.SafetyWarning, bootstrap.RulePermissiveMode},
		{"curl to shell", "curl -fsSL https://example.com/install.sh | bash", types.SafetyWarning, bootstrap.RulePipeToShell},
		{"rm without force", "rm -r ~/.cache/old", types.SafetySafe, ""},
		{"commented out", "# rm -rf /\n# sudo reboot", types.SafetySafe, ""},
		{"pseudo is not sudo", "echo pseudo terminal", types.SafetySafe, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bootstrap.Classify("/s.sh", []byte(tt.script))
			assert.Equal(t, tt.want, got.Level)
			assert.Equal(t, "/s.sh", got.Path)
			if tt.rule == "" {
				assert.Empty(t, got.Matches)
				return
			}
			rules := make([]string, len(got.Matches))
			for i, m := range got.Matches {
				rules[i] = m.Rule
			}
			assert.Contains(t, rules, tt.rule)
		})
	}
}

func TestClassifyReportsLinesAndExcerpts(t *testing.T) {
	got := bootstrap.Classify("/s.sh", []byte("#!/bin/sh\necho hi\n  sudo make install  \n"))

	require.Len(t, got.Matches, 1)
	assert.Equal(t, 3, got.Matches[0].Line)
	assert.Equal(t, "sudo make install", got.Matches[0].Excerpt)
	assert.Equal(t, types.SafetyDangerous, got.Matches[0].Level)
}

func TestClassificationError(t *testing.T) {
	assert.NoError(t, bootstrap.ClassificationError(types.BootstrapScript{Level: types.SafetySafe}))
	assert.NoError(t, bootstrap.ClassificationError(types.BootstrapScript{Level: types.SafetyWarning}))
	assert.True(t, errors.IsErrorCode(bootstrap.ClassificationError(types.BootstrapScript{Level: types.SafetyDangerous}), errors.ErrScriptDangerous))
	assert.True(t, errors.IsErrorCode(bootstrap.ClassificationError(types.BootstrapScript{Level: types.SafetyBlocked}), errors.ErrScriptBlocked))
}

func newGenerator(t *testing.T) (*bootstrap.Generator, *testutil.TestEnvironment) {
	t.Helper()
	env := testutil.NewTestEnvironment(t, testutil.EnvMemoryOnly)
	g := bootstrap.NewGenerator(env.FS, env.Paths).
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	return g, env
}

func TestRenderIncludesPackagesAndProfileScript(t *testing.T) {
	g, env := newGenerator(t)
	env.WriteFile(filepath.Join(env.DotfilesRoot, "work", "setup.sh"), "#!/bin/bash\ndefaults write com.apple.dock autohide -bool true\n\n")

	content, err := g.Render(types.Profile{
		Name:             "work",
		HomebrewPackages: []string{"git", "cask:firefox", "jq"},
		BootstrapScript:  "setup.sh",
	})
	require.NoError(t, err)

	script := string(content)
	assert.True(t, strings.HasPrefix(script, "#!/usr/bin/env bash\n"))
	assert.Contains(t, script, `profile "work", generated by dotapply on 2024-05-01T12:00:00Z`)
	assert.Contains(t, script, "\nbrew install git jq\n")
	assert.Contains(t, script, "\nbrew install --cask firefox\n")
	assert.Contains(t, script, "defaults write com.apple.dock autohide -bool true\n")
	assert.NotContains(t, script, "#!/bin/bash")
}

func TestGenerateWritesScriptWithoutExecuteBit(t *testing.T) {
	g, env := newGenerator(t)
	env.WriteFile(filepath.Join(env.DotfilesRoot, "work", "setup.sh"), "sudo scutil --set HostName work\n")

	script, err := g.Generate(types.Profile{Name: "work", BootstrapScript: "setup.sh"}, false)
	require.NoError(t, err)
	assert.True(t, script.Written)
	assert.Equal(t, env.Paths.BootstrapScriptPath("work"), script.Path)
	assert.Equal(t, types.SafetyDangerous, script.Level)

	info, err := env.FS.Stat(script.Path)
	require.NoError(t, err)
	assert.Equal(t, bootstrap.ScriptMode, info.Mode().Perm())
	assert.Contains(t, env.ReadFile(script.Path), "sudo scutil")
}

func TestGenerateLeavesIdenticalScriptAlone(t *testing.T) {
	g, env := newGenerator(t)
	profile := types.Profile{Name: "work", HomebrewPackages: []string{"git"}}

	_, err := g.Generate(profile, false)
	require.NoError(t, err)
	before := env.Memory.Mutations()

	script, err := g.Generate(profile, false)
	require.NoError(t, err)
	assert.True(t, script.Written)
	assert.Equal(t, before, env.Memory.Mutations())
}

func TestGenerateIgnoresNewTimestamp(t *testing.T) {
	g, env := newGenerator(t)
	profile := types.Profile{Name: "work", HomebrewPackages: []string{"git"}}

	_, err := g.Generate(profile, false)
	require.NoError(t, err)
	first := env.ReadFile(env.Paths.BootstrapScriptPath("work"))
	before := env.Memory.Mutations()

	g.WithClock(func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) })
	_, err = g.Generate(profile, false)
	require.NoError(t, err)
	assert.Equal(t, before, env.Memory.Mutations())
	assert.Equal(t, first, env.ReadFile(env.Paths.BootstrapScriptPath("work")))

	profile.HomebrewPackages = append(profile.HomebrewPackages, "jq")
	_, err = g.Generate(profile, false)
	require.NoError(t, err)
	assert.Contains(t, env.ReadFile(env.Paths.BootstrapScriptPath("work")), "brew install git jq")
}

func TestGenerateDryRunWritesNothing(t *testing.T) {
	g, env := newGenerator(t)

	script, err := g.Generate(types.Profile{Name: "work", HomebrewPackages: []string{"git"}}, true)
	require.NoError(t, err)
	assert.False(t, script.Written)
	assert.Equal(t, types.SafetySafe, script.Level)
	assert.False(t, env.Exists(script.Path))
}

func TestGenerateMissingProfileScript(t *testing.T) {
	g, _ := newGenerator(t)

	_, err := g.Generate(types.Profile{Name: "work", BootstrapScript: "missing.sh"}, false)
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}
