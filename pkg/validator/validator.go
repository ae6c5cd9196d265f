// Package validator statically vets script text before it runs inside a
// sandbox directory. It is a lexical filter, not a parser: lines are matched
// against fixed patterns for dynamic expansions, blocked commands and quoted
// paths that resolve outside the sandbox root. Nothing here touches the
// filesystem.
package validator

import (
	"path/filepath"
	"strings"
)

// Validator holds configuration fixed at construction. It is safe for
// concurrent use.
type Validator struct {
	commands    []commandPattern
	paths       pathNormalizer
	containment Containment
}

// Option configures a Validator.
type Option func(*Validator)

// WithDenylist appends command names to DefaultDenylist. Duplicates and
// blank names are ignored.
func WithDenylist(names ...string) Option {
	return func(v *Validator) {
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" || v.blocks(name) {
				continue
			}
			v.commands = append(v.commands, compileCommand(name))
		}
	}
}

// WithSeparator sets the canonical path separator used for normalization.
// Only '/' and '\\' are accepted; the default is the host separator.
func WithSeparator(sep byte) Option {
	return func(v *Validator) {
		if sep == '/' || sep == '\\' {
			v.paths.sep = sep
		}
	}
}

// WithContainment selects the sandbox containment test.
func WithContainment(c Containment) Option {
	return func(v *Validator) {
		if c == ContainmentSegment || c == ContainmentPrefix {
			v.containment = c
		}
	}
}

// New returns a validator with the default denylist.
func New(opts ...Option) *Validator {
	v := &Validator{
		commands:    make([]commandPattern, 0, len(DefaultDenylist)),
		paths:       pathNormalizer{sep: filepath.Separator},
		containment: ContainmentSegment,
	}
	for _, name := range DefaultDenylist {
		v.commands = append(v.commands, compileCommand(name))
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var defaultValidator = New()

// Validate checks a script with a validator built from the defaults.
func Validate(script, sandboxRoot string, dialect Dialect) Result {
	return defaultValidator.Validate(script, sandboxRoot, dialect)
}

// Validate analyzes script line by line and reports every violation found.
// The sandbox root is treated as opaque text.
func (v *Validator) Validate(script, sandboxRoot string, dialect Dialect) Result {
	violations := []Violation{}
	root := v.paths.canonicalRoot(sandboxRoot)

	for i, raw := range splitLines(script) {
		line := stripComment(raw, dialect)
		if strings.TrimSpace(line) == "" {
			continue
		}
		lineNumber := i + 1
		violations = checkDynamic(violations, line, lineNumber)
		violations = v.checkCommands(violations, line, lineNumber)
		violations = v.checkPaths(violations, line, lineNumber, root)
	}

	return Result{Valid: len(violations) == 0, Violations: violations}
}

// NormalizePath returns the canonical absolute form of a path literal
// resolved against sandboxRoot. escaped is true when ".." climbs above the
// filesystem root; the returned path is then clamped.
func (v *Validator) NormalizePath(literal, sandboxRoot string) (normalized string, escaped bool) {
	return v.paths.normalize(literal, v.paths.canonicalRoot(sandboxRoot))
}

// Inside reports whether literal stays inside sandboxRoot once normalized.
func (v *Validator) Inside(literal, sandboxRoot string) bool {
	root := v.paths.canonicalRoot(sandboxRoot)
	normalized, escaped := v.paths.normalize(literal, root)
	return !escaped && v.containment.contains(normalized, root, v.paths.sep)
}

// Denylist returns the blocked command names in match order.
func (v *Validator) Denylist() []string {
	out := make([]string, len(v.commands))
	for i, cmd := range v.commands {
		out[i] = cmd.name
	}
	return out
}

func (v *Validator) blocks(name string) bool {
	for _, cmd := range v.commands {
		if cmd.name == name {
			return true
		}
	}
	return false
}
