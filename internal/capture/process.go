package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Stream is the raw PCM output of a running recorder.
type Stream interface {
	io.Reader

	// Close stops the recorder and unblocks a pending Read. Calling Close
	// more than once is safe.
	Close() error
}

// Opener starts a recorder.
type Opener interface {
	Open(ctx context.Context) (Stream, error)

	// Describe names the recorder in diagnostics, e.g. the command line.
	Describe() string
}

// OpenerFunc adapts a function to [Opener].
type OpenerFunc func(ctx context.Context) (Stream, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context) (Stream, error) { return f(ctx) }

// Describe returns a fixed label.
func (f OpenerFunc) Describe() string { return "recorder" }

// killGrace is how long a killed recorder may take to release its pipe.
const killGrace = 2 * time.Second

// CommandOpener runs an external program and reads its standard output.
type CommandOpener struct {
	// Argv is the program and its arguments.
	Argv []string
}

// Describe returns the command line.
func (o CommandOpener) Describe() string { return strings.Join(o.Argv, " ") }

// Open starts the program. The process is killed when ctx is done or the
// returned stream is closed.
func (o CommandOpener) Open(ctx context.Context) (Stream, error) {
	if len(o.Argv) == 0 {
		return nil, errors.New("capture: empty record command")
	}
	cmd := exec.CommandContext(ctx, o.Argv[0], o.Argv[1:]...)
	cmd.WaitDelay = killGrace
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdout pipe: %w", err)
	}

	slog.Debug("starting recorder", "command", o.Argv)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("capture: start %q: %w", o.Argv[0], err)
	}
	return &procStream{cmd: cmd, stdout: stdout}, nil
}

type procStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	closeOnce sync.Once
	closeErr  error
}

func (p *procStream) Read(b []byte) (int, error) { return p.stdout.Read(b) }

func (p *procStream) Close() error {
	p.closeOnce.Do(func() {
		if p.cmd.ProcessState == nil {
			_ = p.cmd.Process.Kill()
		}
		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.closeErr = err
		}
	})
	return p.closeErr
}
