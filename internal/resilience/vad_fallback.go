package resilience

import (
	"fmt"

	"github.com/MrWong99/hermesmic/pkg/provider/vad"
)

// VADFallback is a [vad.Engine] that opens sessions on the first member of
// a [FallbackGroup] able to create one. A WebRTC engine built without cgo
// fails every NewSession, so its breaker opens and the energy engine serves
// from then on.
type VADFallback struct {
	group *FallbackGroup[vad.Engine]
}

// NewVADFallback wraps primary. Add further engines with
// [VADFallback.AddFallback].
func NewVADFallback(primary vad.Engine, name string, cfg FallbackConfig) *VADFallback {
	return &VADFallback{group: NewFallbackGroup(primary, name, cfg)}
}

// AddFallback appends an engine tried after the ones already registered.
func (f *VADFallback) AddFallback(name string, e vad.Engine) {
	f.group.AddFallback(name, e)
}

// Engines returns the member names in trial order.
func (f *VADFallback) Engines() []string { return f.group.Names() }

// NewSession implements [vad.Engine].
func (f *VADFallback) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	s, err := ExecuteWithResult(f.group, func(e vad.Engine) (vad.SessionHandle, error) {
		return e.NewSession(cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("resilience: vad session: %w", err)
	}
	return s, nil
}

var _ vad.Engine = (*VADFallback)(nil)
