// Package bootstrap generates a profile's setup script and classifies how
// dangerous it is. The script is written for a human to review and run;
// nothing in this package, or anywhere in the engine, executes it.
package bootstrap

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/arthur-debert/dotapply/pkg/types"
)

// Rule names reported on matches
const (
	RuleRootDelete      = "recursive-forced-delete-of-root-path"
	RulePrivilege       = "privilege-escalation"
	RuleRecursiveDelete = "recursive-forced-delete"
	RulePermissiveMode  = "permissive-mode-change"
	RulePipeToShell     = "download-piped-to-shell"
)

var (
	privilegeRe = regexp.MustCompile(`(^|[\s;&|(` + "`" + `])(sudo|doas|pkexec)(\s|$)|(^|[\s;&|(])su\s+(-\s+)?(root\s+)?-c\b`)
	chmodRe     = regexp.MustCompile(`(^|[\s;&|(])chmod\s+(-[A-Za-z]+\s+)*(0?777|a\+rwx|ugo\+rwx|o\+w)\b`)
	pipeShellRe = regexp.MustCompile(`(curl|wget)\b[^|]*\|\s*(sudo\s+)?(ba|z)?sh\b`)
	rootArgRe   = regexp.MustCompile(`^["']?(/|/\*|/[^/\s*"']+/?\*?|~/?\*?|\$HOME/?\*?|\$\{HOME\}/?\*?)["']?$`)
)

// separators split a line into simple commands
var separators = regexp.MustCompile(`;|&&|\|\||\||\$\(|` + "`")

// Classify scores script content. Rules are evaluated most severe first
// and the script takes the level of its most severe match. Comment lines
// are ignored.
func Classify(path string, content []byte) types.BootstrapScript {
	script := types.BootstrapScript{Path: path, Level: types.SafetySafe}

	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, m := range classifyLine(line) {
			m.Line = lineNo
			script.Matches = append(script.Matches, m)
			if m.Level > script.Level {
				script.Level = m.Level
			}
		}
	}
	return script
}

func classifyLine(line string) []types.PatternMatch {
	var matches []types.PatternMatch
	hit := func(rule string, level types.SafetyLevel) {
		matches = append(matches, types.PatternMatch{Excerpt: line, Rule: rule, Level: level})
	}

	for _, cmd := range separators.Split(line, -1) {
		if isRm, root := forcedRecursiveRm(cmd); isRm {
			if root {
				hit(RuleRootDelete, types.SafetyBlocked)
			} else {
				hit(RuleRecursiveDelete, types.SafetyWarning)
			}
		}
	}
	if privilegeRe.MatchString(line) {
		hit(RulePrivilege, types.SafetyDangerous)
	}
	if chmodRe.MatchString(line) {
		hit(RulePermissiveMode, types.SafetyWarning)
	}
	if pipeShellRe.MatchString(line) {
		hit(RulePipeToShell, types.SafetyWarning)
	}
	return matches
}

// forcedRecursiveRm reports whether cmd is an rm with both recursive and
// force flags, and whether any operand is a root-level path. Operands
// guarded by ${VAR:?} expansion are qualified and never count as root.
func forcedRecursiveRm(cmd string) (isRm, root bool) {
	fields := strings.Fields(cmd)
	for len(fields) > 0 && (fields[0] == "sudo" || fields[0] == "command" || fields[0] == "exec" || strings.Contains(fields[0], "=")) {
		fields = fields[1:]
	}
	if len(fields) == 0 || (fields[0] != "rm" && !strings.HasSuffix(fields[0], "/rm")) {
		return false, false
	}

	var recursive, force, endOfFlags bool
	var operands []string
	for _, f := range fields[1:] {
		switch {
		case endOfFlags || !strings.HasPrefix(f, "-") || f == "-":
			operands = append(operands, f)
		case f == "--":
			endOfFlags = true
		case f == "--recursive":
			recursive = true
		case f == "--force":
			force = true
		case f == "--no-preserve-root":
			root = true
		case strings.HasPrefix(f, "--"):
		default:
			flags := f[1:]
			recursive = recursive || strings.ContainsAny(flags, "rR")
			force = force || strings.Contains(flags, "f")
		}
	}
	if !recursive || !force {
		return false, false
	}

	for _, op := range operands {
		if strings.Contains(op, ":?") {
			continue
		}
		if rootArgRe.MatchString(op) {
			root = true
		}
	}
	return true, root
}
