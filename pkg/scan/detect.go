package scan

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/sameehj/scriptguard/pkg/validator"
	"mvdan.cc/sh/v3/fileutil"
)

var extensionDialects = map[string]validator.Dialect{
	".sh":   validator.DialectBash,
	".bash": validator.DialectBash,
	".zsh":  validator.DialectBash,
	".ksh":  validator.DialectBash,
	".mksh": validator.DialectBash,
	".bats": validator.DialectBash,
	".py":   validator.DialectPython,
	".pyw":  validator.DialectPython,
	".bat":  validator.DialectBat,
	".cmd":  validator.DialectBat,
}

// DetectDialect guesses the dialect from the file extension, then the
// shebang line. fallback is returned when neither is conclusive.
func DetectDialect(name string, content []byte, fallback validator.Dialect) validator.Dialect {
	if d, ok := extensionDialects[strings.ToLower(filepath.Ext(name))]; ok {
		return d
	}
	if fileutil.Shebang(content) != "" {
		return validator.DialectBash
	}
	if line, ok := shebangLine(content); ok {
		if strings.Contains(line, "python") {
			return validator.DialectPython
		}
		return validator.DialectNone
	}
	return validator.ParseDialect(string(fallback))
}

func shebangLine(content []byte) (string, bool) {
	if !bytes.HasPrefix(content, []byte("#!")) {
		return "", false
	}
	line := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	return string(line), true
}
