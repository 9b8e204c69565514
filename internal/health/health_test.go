package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serve(t *testing.T, h *Handler, path string) (int, result, *httptest.ResponseRecorder) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, body, rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(WithChecker(Checker{Name: "bus", Check: func(context.Context) error { return errors.New("down") }}))
	code, body, rec := serve(t, h, "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %+v, want 200 ok even with failing checks", code, body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	ok := func(context.Context) error { return nil }
	tests := []struct {
		name       string
		opts       []Option
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			opts: []Option{
				WithChecker(Checker{Name: "bus", Check: ok}),
				WithChecker(Checker{Name: "capture", Check: ok}),
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"bus": "ok", "capture": "ok"},
		},
		{
			name: "one fails",
			opts: []Option{
				WithChecker(BusChecker(func() bool { return false })),
				WithChecker(Checker{Name: "capture", Check: ok}),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"bus": "fail: not connected to broker", "capture": "ok"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body, _ := serve(t, New(tt.opts...), "/readyz")
			if code != tt.wantCode || body.Status != tt.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, body.Status, tt.wantCode, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_Details(t *testing.T) {
	t.Parallel()
	h := New(WithDetail("routing", func() any { return map[string]string{"sink": "udp"} }))
	_, body, _ := serve(t, h, "/readyz")
	routing, ok := body.Details["routing"].(map[string]any)
	if !ok || routing["sink"] != "udp" {
		t.Errorf("details = %#v", body.Details)
	}
}

func TestReadyz_CheckGetsDeadline(t *testing.T) {
	t.Parallel()
	h := New(WithChecker(Checker{Name: "slow", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}}))
	if code, body, _ := serve(t, h, "/readyz"); code != http.StatusOK {
		t.Errorf("readyz = %d %+v", code, body)
	}
}

func TestCaptureChecker(t *testing.T) {
	t.Parallel()
	boom := errors.New("capture: arecord: recorder stream ended")
	tests := []struct {
		name    string
		running bool
		failure error
		want    string
	}{
		{name: "running", running: true},
		{name: "failed", failure: boom, want: boom.Error()},
		{name: "not started", want: ErrCaptureStopped.Error()},
	}
	for _, tt := range tests {
		c := CaptureChecker(func() bool { return tt.running }, func() error { return tt.failure })
		err := c.Check(context.Background())
		if tt.want == "" {
			if err != nil {
				t.Errorf("%s: err = %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: err = %v, want %q", tt.name, err, tt.want)
		}
	}
}
