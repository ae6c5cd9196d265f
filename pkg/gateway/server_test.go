package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sameehj/scriptguard/pkg/report"
)

type authorizerFunc func(ctx context.Context, remoteAddr string) error

func (f authorizerFunc) Allow(ctx context.Context, remoteAddr string) error {
	return f(ctx, remoteAddr)
}

func TestHealthReportsUptimeAndSessions(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0", nil, nil)
	s.started = time.Now().Add(-2 * time.Second)
	if !s.tryRegister(&Session{ID: "watcher", send: make(chan *report.Report, 1)}) {
		t.Fatalf("register rejected without a cap")
	}

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		Status   string  `json:"status"`
		Uptime   float64 `json:"uptime"`
		Sessions int     `json:"sessions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Status != "ok" || payload.Sessions != 1 || payload.Uptime < 2 {
		t.Fatalf("unexpected health payload %+v", payload)
	}
}

func TestAuthorizeMapsErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"allowed", nil, http.StatusOK},
		{"forbidden", fmt.Errorf("%w: 10.0.0.1", ErrForbidden), http.StatusForbidden},
		{"backend failure", errors.New("allowlist store offline"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		s := NewServer("127.0.0.1:0", nil, authorizerFunc(func(context.Context, string) error { return tc.err }))
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rr.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, rr.Code)
		}
	}
}

func TestTryRegisterHonorsCapUnderContention(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0", nil, nil)
	s.SetMaxSessions(3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var admitted []string
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			if s.tryRegister(&Session{ID: id, send: make(chan *report.Report, 1)}) {
				mu.Lock()
				admitted = append(admitted, id)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(admitted) != 3 || s.sessionCount() != 3 {
		t.Fatalf("expected exactly 3 sessions, admitted %d, registered %d", len(admitted), s.sessionCount())
	}
	s.unregister(admitted[0])
	if !s.tryRegister(&Session{ID: "late", send: make(chan *report.Report, 1)}) {
		t.Fatalf("expected a free slot after unregistering")
	}
}
