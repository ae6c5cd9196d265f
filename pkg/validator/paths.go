package validator

import (
	"fmt"
	"regexp"
	"strings"
)

// quotedPath finds quoted path literals left to right. At each quote the
// shapes are tried in order: unix absolute, windows absolute, relative. RE2
// has no backreferences, so every shape is spelled once per quote style.
var quotedPath = regexp.MustCompile(
	`"(/[^\s"']+)"|'(/[^\s"']+)'` +
		`|"([A-Za-z]:\\[^\\\s"']+(?:\\[^\\\s"']+)*\\?)"|'([A-Za-z]:\\[^\\\s"']+(?:\\[^\\\s"']+)*\\?)'` +
		`|"(\.\.?[/\\][^"']*)"|'(\.\.?[/\\][^"']*)'`,
)

func extractPaths(line string) []string {
	var out []string
	for _, match := range quotedPath.FindAllStringSubmatch(line, -1) {
		for _, group := range match[1:] {
			if group != "" {
				out = append(out, group)
				break
			}
		}
	}
	return out
}

// pathNormalizer rewrites literals against a sandbox root using a fixed
// separator, independent of the host the validator runs on.
type pathNormalizer struct {
	sep byte
}

func (n pathNormalizer) separator() string {
	return string(n.sep)
}

func (n pathNormalizer) toSeparator(p string) string {
	b := []byte(p)
	for i, c := range b {
		if c == '/' || c == '\\' {
			b[i] = n.sep
		}
	}
	return string(b)
}

func (n pathNormalizer) isAbs(p string) bool {
	return strings.HasPrefix(p, n.separator()) || hasDrivePrefix(p)
}

// canonicalRoot applies the same rules as normalize to the sandbox root.
// A root that climbs above the filesystem root is clamped.
func (n pathNormalizer) canonicalRoot(root string) string {
	clean, _ := n.clean(n.toSeparator(root))
	return clean
}

// normalize resolves a literal against an already canonical root. escaped is
// true when a ".." segment pops past the filesystem root.
func (n pathNormalizer) normalize(literal, root string) (string, bool) {
	p := n.toSeparator(literal)
	if !n.isAbs(p) {
		p = strings.TrimRight(root, n.separator()) + n.separator() + p
	}
	return n.clean(p)
}

func (n pathNormalizer) clean(p string) (string, bool) {
	sep := n.separator()
	var volume string
	escaped := false
	parts := make([]string, 0, strings.Count(p, sep)+1)
	for _, segment := range strings.Split(p, sep) {
		switch segment {
		case "", ".":
		case "..":
			if len(parts) == 0 {
				escaped = true
				continue
			}
			parts = parts[:len(parts)-1]
		default:
			if n.sep == '\\' && volume == "" && len(parts) == 0 && isDrive(segment) {
				volume = segment
				continue
			}
			parts = append(parts, segment)
		}
	}
	joined := strings.Join(parts, sep)
	if volume != "" {
		if joined == "" {
			return volume, escaped
		}
		return volume + sep + joined, escaped
	}
	return sep + joined, escaped
}

func hasDrivePrefix(p string) bool {
	return len(p) >= 2 && isLetter(p[0]) && p[1] == ':'
}

func isDrive(segment string) bool {
	return len(segment) == 2 && hasDrivePrefix(segment)
}

func isLetter(b byte) bool {
	return ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// Containment selects how a normalized path is compared with the root.
type Containment string

const (
	// ContainmentSegment requires the root to end at a separator boundary.
	ContainmentSegment Containment = "segment"
	// ContainmentPrefix is a plain string prefix test: root /a/b also
	// contains /a/bc.
	ContainmentPrefix Containment = "prefix"
)

// ParseContainment maps a name to a containment mode, defaulting to segment.
func ParseContainment(name string) (Containment, error) {
	switch c := Containment(strings.ToLower(strings.TrimSpace(name))); c {
	case "":
		return ContainmentSegment, nil
	case ContainmentSegment, ContainmentPrefix:
		return c, nil
	default:
		return "", fmt.Errorf("unknown containment mode %q (want segment or prefix)", name)
	}
}

func (c Containment) contains(path, root string, sep byte) bool {
	r := strings.TrimRight(root, string(sep))
	if c == ContainmentPrefix {
		return strings.HasPrefix(path, r)
	}
	if r == "" {
		return strings.HasPrefix(path, string(sep))
	}
	return path == r || strings.HasPrefix(path, r+string(sep))
}

func (c Containment) String() string {
	if c == "" {
		return string(ContainmentSegment)
	}
	return string(c)
}

// Set implements pflag.Value.
func (c *Containment) Set(value string) error {
	parsed, err := ParseContainment(value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Type implements pflag.Value.
func (c *Containment) Type() string {
	return "containment"
}
