package validator

// ViolationType classifies a single finding.
type ViolationType string

const (
	DynamicPath      ViolationType = "dynamic_path"
	DangerousCommand ViolationType = "dangerous_command"
	PathEscape       ViolationType = "path_escape"
)

const (
	reasonDynamicPath      = "Dynamic path cannot be validated"
	reasonDangerousCommand = "System-level or dangerous command is blocked"
	reasonPathEscape       = "Outside sandbox directory"
)

// Violation is one flagged concern tied to a source line.
type Violation struct {
	Type   ViolationType `json:"type" yaml:"type"`
	Value  string        `json:"value" yaml:"value"`
	Line   int           `json:"line" yaml:"line"`
	Reason string        `json:"reason" yaml:"reason"`
}

// Result is the verdict for one script. Violations are ordered by line, and
// within a line by detector: dynamic paths, dangerous commands, path escapes.
type Result struct {
	Valid      bool        `json:"valid" yaml:"valid"`
	Violations []Violation `json:"violations" yaml:"violations"`
}

// Count returns how many violations of the given type the result holds.
func (r Result) Count(t ViolationType) int {
	n := 0
	for _, v := range r.Violations {
		if v.Type == t {
			n++
		}
	}
	return n
}
