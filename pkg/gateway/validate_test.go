package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sameehj/scriptguard/pkg/report"
	"github.com/sameehj/scriptguard/pkg/validator"
)

func newTestServer(t *testing.T, authorizer Authorizer, configure ...func(*Server)) *httptest.Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", validator.New(validator.WithSeparator('/')), authorizer)
	s.SetDefaults("/home/user/sandbox", validator.DialectBash)
	for _, fn := range configure {
		fn(s)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postValidate(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url+"/v1/validate", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	resp := postValidate(t, ts.URL, map[string]string{
		"source": "deploy.sh",
		"script": "echo $HOME/file\nrm \"/etc/passwd\"",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var rep report.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Valid || len(rep.Violations) != 4 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if rep.Sandbox != "/home/user/sandbox" || rep.Source != "deploy.sh" {
		t.Fatalf("defaults not applied: %+v", rep)
	}
	if resp.Header.Get("X-Request-ID") != rep.ID {
		t.Fatalf("request id header %q does not match report %q", resp.Header.Get("X-Request-ID"), rep.ID)
	}
	if rep.Violations[3].Type != validator.PathEscape || rep.Violations[3].Line != 2 {
		t.Fatalf("unexpected last violation %+v", rep.Violations[3])
	}
}

func TestValidateEndpointDialect(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	resp := postValidate(t, ts.URL, map[string]string{"script": "REM del x", "dialect": "bat", "sandbox": "C:\\sb"})
	var rep report.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rep.Valid || rep.Dialect != validator.DialectBat {
		t.Fatalf("expected bat remark to be ignored, got %+v", rep)
	}
}

func TestValidateEndpointErrors(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/v1/validate")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/v1/validate", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", resp.StatusCode)
	}

	bare := newTestServer(t, nil, func(s *Server) { s.SetDefaults("", "") })
	if resp := postValidate(t, bare.URL, map[string]string{"script": "ls"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without sandbox, got %d", resp.StatusCode)
	}

	small := newTestServer(t, nil, func(s *Server) { s.SetMaxBodyBytes(64) })
	if resp := postValidate(t, small.URL, map[string]string{"script": strings.Repeat("ls\n", 100), "sandbox": "/sb"}); resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}
}

func TestAuthorizerRejectsUnknownClients(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, AllowlistAuthorizer{Allowed: []string{"10.1.2.3"}})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestAllowlistAuthorizer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := AllowlistAuthorizer{Allowed: []string{"127.0.0.1"}}
	if err := a.Allow(ctx, "127.0.0.1:5555"); err != nil {
		t.Fatalf("expected host match: %v", err)
	}
	if err := a.Allow(ctx, "192.168.0.9:5555"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := (AllowlistAuthorizer{}).Allow(ctx, "anything"); err != nil {
		t.Fatalf("empty allowlist should allow all: %v", err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil)
	postValidate(t, ts.URL, map[string]string{"script": "reboot"})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "scriptguard_validations_total") {
		t.Fatalf("expected scriptguard metrics in exposition")
	}
}

func TestEventsStreamPublishedReports(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, nil, func(s *Server) { s.SetMaxSessions(1) })
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected second subscriber to be refused with 503, got %v", err)
	}

	postValidate(t, ts.URL, map[string]string{"source": "job.sh", "script": "cat `id`"})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var rep report.Report
	if err := conn.ReadJSON(&rep); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if rep.Source != "job.sh" || rep.Count(validator.DynamicPath) != 1 {
		t.Fatalf("unexpected streamed report %+v", rep)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatalf("server did not stop")
	}
}
