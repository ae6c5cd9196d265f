package validator

import "strings"

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// splitLines keeps empty lines so that indexes map to 1-based line numbers.
func splitLines(script string) []string {
	return strings.Split(lineBreaks.Replace(script), "\n")
}

func stripComment(line string, dialect Dialect) string {
	switch dialect.normalized() {
	case DialectBash, DialectPython:
		return stripHashComment(line)
	case DialectBat:
		if isBatchRemark(line) {
			return ""
		}
		return line
	default:
		return line
	}
}

// stripHashComment cuts at the first '#' not preceded by a backslash. Quotes
// are not tracked.
func stripHashComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] == '#' && (i == 0 || line[i-1] != '\\') {
			return line[:i]
		}
	}
	return line
}

// isBatchRemark matches lines that begin with REM or "::", ignoring case
// and leading whitespace. It is a prefix test, so REMARK counts too.
func isBatchRemark(line string) bool {
	trimmed := strings.TrimLeft(line, " \t\f\v")
	if strings.HasPrefix(trimmed, "::") {
		return true
	}
	return len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "rem")
}
