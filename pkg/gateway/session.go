package gateway

import (
	"time"

	"github.com/sameehj/scriptguard/pkg/report"
)

// Session tracks a single event-stream subscriber.
type Session struct {
	ID         string
	RemoteAddr string
	StartedAt  time.Time

	send chan *report.Report
}
