//go:build !cgo

package webrtc

import "github.com/MrWong99/hermesmic/pkg/provider/vad"

// Engine is unavailable without cgo.
type Engine struct{}

// New returns a stub engine whose sessions cannot be created.
func New() *Engine {
	return &Engine{}
}

// Available reports whether the WebRTC detector is compiled in.
func Available() bool { return false }

// NewSession always fails with [vad.ErrUnavailable].
func (e *Engine) NewSession(vad.Config) (vad.SessionHandle, error) {
	return nil, vad.ErrUnavailable
}

var _ vad.Engine = (*Engine)(nil)
