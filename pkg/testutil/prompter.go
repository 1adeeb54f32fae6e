package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/arthur-debert/dotapply/pkg/errors"
	"github.com/arthur-debert/dotapply/pkg/types"
)

// ScriptedPrompter answers prompts from preloaded queues. A prompt with no
// scripted answer left fails with NON_INTERACTIVE, which is how the engine
// sees a headless run.
type ScriptedPrompter struct {
	mu sync.Mutex

	Profiles   []string
	KeySetups  []types.KeySetupChoice
	Materials  []string
	Mismatches []types.MismatchChoice
	Conflicts  []types.ConflictChoice

	// Calls records each prompt as "<kind>:<subject>"
	Calls []string
}

// NewScriptedPrompter creates a prompter with empty queues
func NewScriptedPrompter() *ScriptedPrompter {
	return &ScriptedPrompter{}
}

func (p *ScriptedPrompter) record(kind, subject string) {
	p.Calls = append(p.Calls, kind+":"+subject)
}

func noAnswer(kind string) error {
	return errors.Newf(errors.ErrNonInteractive, "no scripted answer for %s prompt", kind)
}

func pop[T any](q *[]T) (T, bool) {
	var zero T
	if len(*q) == 0 {
		return zero, false
	}
	v := (*q)[0]
	*q = (*q)[1:]
	return v, true
}

// SelectProfile returns the next scripted profile name
func (p *ScriptedPrompter) SelectProfile(ctx context.Context, names []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("profile", fmt.Sprint(names))
	if v, ok := pop(&p.Profiles); ok {
		return v, nil
	}
	return "", noAnswer("profile")
}

// KeySetup returns the next scripted key setup choice
func (p *ScriptedPrompter) KeySetup(ctx context.Context, profile string) (types.KeySetupChoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("key-setup", profile)
	if v, ok := pop(&p.KeySetups); ok {
		return v, nil
	}
	return "", noAnswer("key setup")
}

// KeyMaterial returns the next scripted key material
func (p *ScriptedPrompter) KeyMaterial(ctx context.Context, profile string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("key-material", profile)
	if v, ok := pop(&p.Materials); ok {
		return v, nil
	}
	return "", noAnswer("key material")
}

// KeyMismatch returns the next scripted mismatch choice
func (p *ScriptedPrompter) KeyMismatch(ctx context.Context, profile, file string) (types.MismatchChoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("mismatch", file)
	if v, ok := pop(&p.Mismatches); ok {
		return v, nil
	}
	return "", noAnswer("key mismatch")
}

// Conflict returns the next scripted conflict choice
func (p *ScriptedPrompter) Conflict(ctx context.Context, target string) (types.ConflictChoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("conflict", target)
	if v, ok := pop(&p.Conflicts); ok {
		return v, nil
	}
	return "", noAnswer("conflict")
}

// CallsOf returns the recorded subjects of one prompt kind
func (p *ScriptedPrompter) CallsOf(kind string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.Calls {
		if subject, ok := strings.CutPrefix(c, kind+":"); ok {
			out = append(out, subject)
		}
	}
	return out
}
