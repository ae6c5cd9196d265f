package validator

import "testing"

func TestParseDialect(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in    string
		want  Dialect
		known bool
	}{
		{"", DialectBash, true},
		{" Bash ", DialectBash, true},
		{"PYTHON", DialectPython, true},
		{"bat", DialectBat, true},
		{"powershell", Dialect("powershell"), false},
	}
	for _, tc := range cases {
		got := ParseDialect(tc.in)
		if got != tc.want || got.Known() != tc.known {
			t.Errorf("ParseDialect(%q) = %q (known %v), want %q (known %v)", tc.in, got, got.Known(), tc.want, tc.known)
		}
	}
}

func TestDialectFlagValue(t *testing.T) {
	t.Parallel()

	var d Dialect
	if d.String() != "" || d.normalized() != DialectBash {
		t.Fatalf("zero dialect should print empty and behave as bash, got %q", d.String())
	}
	if err := d.Set("Python"); err != nil || d != DialectPython {
		t.Fatalf("Set(Python) = %v, dialect %q", err, d)
	}
	if err := d.Set("none"); err != nil || d != DialectNone {
		t.Fatalf("Set(none) = %v, dialect %q", err, d)
	}
	if err := d.Set("fish"); err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
	if d.Type() != "dialect" {
		t.Fatalf("unexpected flag type %q", d.Type())
	}
}

func TestParseContainment(t *testing.T) {
	t.Parallel()

	if c, err := ParseContainment(""); err != nil || c != ContainmentSegment {
		t.Fatalf("default containment = %q, %v", c, err)
	}
	if c, err := ParseContainment("PREFIX"); err != nil || c != ContainmentPrefix {
		t.Fatalf("prefix containment = %q, %v", c, err)
	}
	if _, err := ParseContainment("exact"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestSplitLinesKeepsEmptyLines(t *testing.T) {
	t.Parallel()

	got := splitLines("a\r\n\rb\n\nc")
	want := []string{"a", "", "b", "", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitLines = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitLines = %q, want %q", got, want)
		}
	}
}
