package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sameehj/scriptguard/pkg/validator"
)

func TestObserveCountsVerdictsAndTypes(t *testing.T) {
	invalidBefore := testutil.ToFloat64(ValidationsTotal.WithLabelValues("invalid"))
	validBefore := testutil.ToFloat64(ValidationsTotal.WithLabelValues("valid"))
	escapesBefore := testutil.ToFloat64(ViolationsTotal.WithLabelValues(string(validator.PathEscape)))

	v := validator.New(validator.WithSeparator('/'))
	Observe(v.Validate(`cat "/etc/a" "/etc/b"`, "/sb", validator.DialectBash), time.Millisecond)
	Observe(v.Validate("ls", "/sb", validator.DialectBash), time.Millisecond)

	if got := testutil.ToFloat64(ValidationsTotal.WithLabelValues("invalid")) - invalidBefore; got != 1 {
		t.Fatalf("invalid delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ValidationsTotal.WithLabelValues("valid")) - validBefore; got != 1 {
		t.Fatalf("valid delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ViolationsTotal.WithLabelValues(string(validator.PathEscape))) - escapesBefore; got != 2 {
		t.Fatalf("path_escape delta = %v, want 2", got)
	}
}
