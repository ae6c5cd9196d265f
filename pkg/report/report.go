package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sameehj/scriptguard/pkg/validator"
	"gopkg.in/yaml.v3"
)

// Report is the validation outcome for one script source.
type Report struct {
	ID        string            `json:"id" yaml:"id"`
	Source    string            `json:"source" yaml:"source"`
	Sandbox   string            `json:"sandbox" yaml:"sandbox"`
	Dialect   validator.Dialect `json:"dialect" yaml:"dialect"`
	CheckedAt time.Time         `json:"checkedAt" yaml:"checkedAt"`

	validator.Result `yaml:",inline"`
}

// New wraps a validation result with a fresh report ID.
func New(source, sandbox string, dialect validator.Dialect, result validator.Result) *Report {
	return &Report{
		ID:        uuid.NewString(),
		Source:    source,
		Sandbox:   sandbox,
		Dialect:   validator.ParseDialect(string(dialect)),
		CheckedAt: time.Now().UTC(),
		Result:    result,
	}
}

// Format selects how reports are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an output format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", name)
	}
}

// Write renders reports to w.
func Write(w io.Writer, format Format, reports []*Report) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		return enc.Close()
	case FormatText, "":
		for _, r := range reports {
			if err := writeText(w, r); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, r *Report) error {
	verdict := "ok"
	if !r.Valid {
		verdict = fmt.Sprintf("%d violation(s)", len(r.Violations))
	}
	if _, err := fmt.Fprintf(w, "%s: %s\n", r.Source, verdict); err != nil {
		return err
	}
	for _, v := range r.Violations {
		if _, err := fmt.Fprintf(w, "  [%s] line %d: %s (%s)\n", v.Type, v.Line, v.Value, v.Reason); err != nil {
			return err
		}
	}
	return nil
}

// AllValid reports whether every report passed.
func AllValid(reports []*Report) bool {
	for _, r := range reports {
		if !r.Valid {
			return false
		}
	}
	return true
}
