package dispatch

import (
	"errors"
	"sync"
)

// ErrCaptureArmed is returned by [TestCapture.Arm] while a capture is
// already in progress.
var ErrCaptureArmed = errors.New("dispatch: test capture already armed")

// TestCapture is a side buffer that collects raw chunks independently of the
// sink decision, for one-shot "record and play back" checks.
type TestCapture struct {
	mu    sync.Mutex
	armed bool
	limit int
	buf   []byte
}

// Arm starts collecting. At most limit bytes are kept; limit <= 0 means no
// bound.
func (c *TestCapture) Arm(limit int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.armed {
		return ErrCaptureArmed
	}
	c.armed = true
	c.limit = limit
	c.buf = nil
	return nil
}

// Armed reports whether chunks are being collected.
func (c *TestCapture) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Append adds chunk to the buffer if armed.
func (c *TestCapture) Append(chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return
	}
	if c.limit > 0 {
		room := c.limit - len(c.buf)
		if room <= 0 {
			return
		}
		if len(chunk) > room {
			chunk = chunk[:room]
		}
	}
	c.buf = append(c.buf, chunk...)
}

// Disarm stops collecting and returns what was captured.
func (c *TestCapture) Disarm() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.buf
	c.armed = false
	c.buf = nil
	return out
}
