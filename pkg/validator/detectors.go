package validator

import "regexp"

// DefaultDenylist is the fixed, ordered set of blocked command names.
var DefaultDenylist = []string{
	"shutdown", "reboot", "halt", "init", "poweroff",
	"rm", "mv", "del", "rmdir", "mkdir",
	"copy", "cp", "echo", "chmod", "chown",
	"system", "exec", "eval", "subprocess", "bash", "cmd",
}

// dynamicPatterns are reported at most once each per line.
var dynamicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\{?[A-Za-z0-9_]+\}?`),
	regexp.MustCompile("`.*?`"),
	regexp.MustCompile(`\$\(.+?\)`),
}

type commandPattern struct {
	name string
	re   *regexp.Regexp
}

func compileCommand(name string) commandPattern {
	return commandPattern{
		name: name,
		re:   regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`),
	}
}

func checkDynamic(out []Violation, line string, lineNumber int) []Violation {
	for _, re := range dynamicPatterns {
		if match := re.FindString(line); match != "" {
			out = append(out, Violation{
				Type:   DynamicPath,
				Value:  match,
				Line:   lineNumber,
				Reason: reasonDynamicPath,
			})
		}
	}
	return out
}

func (v *Validator) checkCommands(out []Violation, line string, lineNumber int) []Violation {
	for _, cmd := range v.commands {
		if cmd.re.MatchString(line) {
			out = append(out, Violation{
				Type:   DangerousCommand,
				Value:  cmd.name,
				Line:   lineNumber,
				Reason: reasonDangerousCommand,
			})
		}
	}
	return out
}

func (v *Validator) checkPaths(out []Violation, line string, lineNumber int, root string) []Violation {
	for _, literal := range extractPaths(line) {
		normalized, escaped := v.paths.normalize(literal, root)
		if escaped || !v.containment.contains(normalized, root, v.paths.sep) {
			out = append(out, Violation{
				Type:   PathEscape,
				Value:  literal,
				Line:   lineNumber,
				Reason: reasonPathEscape,
			})
		}
	}
	return out
}
