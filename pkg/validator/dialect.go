package validator

import (
	"fmt"
	"strings"
)

// Dialect selects the comment syntax stripped before matching. It has no
// other effect on detection. The empty dialect is treated as bash.
type Dialect string

const (
	DialectBash   Dialect = "bash"
	DialectPython Dialect = "python"
	DialectBat    Dialect = "bat"
	// DialectNone is an unrecognized dialect: lines are matched as written.
	DialectNone Dialect = "none"
)

// ParseDialect maps a name to a dialect. Unknown names are kept as-is and
// behave like DialectNone.
func ParseDialect(name string) Dialect {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DialectBash
	}
	return Dialect(name)
}

func (d Dialect) normalized() Dialect {
	return ParseDialect(string(d))
}

// Known reports whether the dialect selects a comment rule.
func (d Dialect) Known() bool {
	switch d.normalized() {
	case DialectBash, DialectPython, DialectBat:
		return true
	}
	return false
}

func (d Dialect) String() string {
	return string(d)
}

// Set implements pflag.Value.
func (d *Dialect) Set(value string) error {
	parsed := ParseDialect(value)
	if !parsed.Known() && parsed != DialectNone {
		return fmt.Errorf("unknown dialect %q (want bash, python, bat or none)", value)
	}
	*d = parsed
	return nil
}

// Type implements pflag.Value.
func (d *Dialect) Type() string {
	return "dialect"
}
