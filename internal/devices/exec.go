package devices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

// Output implements [Runner].
func (ExecRunner) Output(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("devices: empty command")
	}
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).Output()
	if err != nil {
		return nil, fmt.Errorf("devices: run %q: %w", argv[0], err)
	}
	return out, nil
}

// Record implements [Runner]. A process that exits before producing n bytes
// yields what it wrote.
func (ExecRunner) Record(ctx context.Context, argv []string, n int) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("devices: empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = time.Second
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("devices: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("devices: start %q: %w", argv[0], err)
	}

	buf := make([]byte, n)
	got, readErr := io.ReadFull(stdout, buf)

	_ = cmd.Process.Kill()
	_ = cmd.Wait()

	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		return nil, fmt.Errorf("devices: read %q: %w", argv[0], readErr)
	}
	if got == 0 {
		return nil, fmt.Errorf("devices: %q produced no audio", argv[0])
	}
	return buf[:got], nil
}

var _ Runner = ExecRunner{}
