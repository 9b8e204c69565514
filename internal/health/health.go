// Package health serves the liveness and readiness endpoints.
//
//   - /healthz answers 200 while the process can serve HTTP.
//   - /readyz answers 200 only when every [Checker] passes. The body also
//     carries the registered details, such as the current routing state.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// checkTimeout bounds one readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Detail adds a named, always-present value to the readiness body.
type Detail struct {
	Name  string
	Value func() any
}

type result struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

// Handler serves the health endpoints. The checker and detail lists are
// fixed at construction.
type Handler struct {
	checkers []Checker
	details  []Detail
}

// Option configures a [Handler].
type Option func(*Handler)

// WithChecker adds a readiness check. Checks run in registration order.
func WithChecker(c Checker) Option {
	return func(h *Handler) { h.checkers = append(h.checkers, c) }
}

// WithDetail adds a value reported by /readyz.
func WithDetail(name string, value func() any) Option {
	return func(h *Handler) { h.details = append(h.details, Detail{Name: name, Value: value}) }
}

// New returns a Handler.
func New(opts ...Option) *Handler {
	h := &Handler{}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz answers 200 when every checker passes and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}

	if len(h.details) > 0 {
		res.Details = make(map[string]any, len(h.details))
		for _, d := range h.details {
			res.Details[d.Name] = d.Value()
		}
	}
	writeJSON(w, status, res)
}

// Register adds the routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// ErrBusDisconnected is reported by [BusChecker] while the broker session
// is down.
var ErrBusDisconnected = errors.New("not connected to broker")

// BusChecker fails while connected reports false.
func BusChecker(connected func() bool) Checker {
	return Checker{Name: "bus", Check: func(context.Context) error {
		if !connected() {
			return ErrBusDisconnected
		}
		return nil
	}}
}

// ErrCaptureStopped is reported by [CaptureChecker] when the recorder is
// not running and no failure was recorded.
var ErrCaptureStopped = errors.New("recorder not running")

// CaptureChecker fails once the recorder stopped. failure returns the error
// that stopped it, if any.
func CaptureChecker(running func() bool, failure func() error) Checker {
	return Checker{Name: "capture", Check: func(context.Context) error {
		if err := failure(); err != nil {
			return err
		}
		if !running() {
			return ErrCaptureStopped
		}
		return nil
	}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
