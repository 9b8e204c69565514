// Package devices enumerates capture devices with an external list command
// and optionally checks each one by recording a short sample.
//
// The list output is expected in the style of "arecord -L": a device name on
// an unindented line followed by indented description lines.
package devices

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/MrWong99/hermesmic/pkg/audio"
)

// DevicePlaceholder in a test command is replaced by the device name.
const DevicePlaceholder = "{}"

// TestSampleBytes is how much audio a device test records: 1024 16-bit
// samples.
const TestSampleBytes = 2 * 1024

// DefaultTestTimeout bounds the recording of one device test.
const DefaultTestTimeout = 5 * time.Second

// ErrNoListCommand is returned by [Lister.List] when no list command is
// configured.
var ErrNoListCommand = errors.New("devices: no list command configured")

// Device is one capture device.
type Device struct {
	Name        string
	Description string

	// Working is nil when the device was not tested.
	Working *bool
}

// ParseList parses "arecord -L" style output. The description of the first
// device is suffixed with "*" to mark the system default.
func ParseList(output string) []Device {
	var (
		devs    []Device
		cur     *Device
		marked  bool
		descBuf []string
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Description = strings.Join(descBuf, " ")
		if !marked && cur.Description != "" {
			cur.Description += "*"
			marked = true
		}
		devs = append(devs, *cur)
		cur, descBuf = nil, nil
	}

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimRightFunc(sc.Text(), unicode.IsSpace)
		if line == "" {
			continue
		}
		if unicode.IsSpace(rune(line[0])) {
			if cur != nil {
				descBuf = append(descBuf, strings.TrimSpace(line))
			}
			continue
		}
		flush()
		cur = &Device{Name: line}
	}
	flush()
	return devs
}

// Runner executes the list and test commands.
type Runner interface {
	// Output runs argv to completion and returns its standard output.
	Output(ctx context.Context, argv []string) ([]byte, error)

	// Record runs argv, reads n bytes of its standard output and stops it.
	Record(ctx context.Context, argv []string, n int) ([]byte, error)
}

// Lister lists and tests devices.
type Lister struct {
	listCommand []string
	testCommand []string
	runner      Runner
	testTimeout time.Duration
}

// Option configures a [Lister].
type Option func(*Lister)

// WithRunner replaces the process runner. Default: [ExecRunner].
func WithRunner(r Runner) Option {
	return func(l *Lister) { l.runner = r }
}

// WithTestTimeout bounds one device test. Default: [DefaultTestTimeout].
func WithTestTimeout(d time.Duration) Option {
	return func(l *Lister) { l.testTimeout = d }
}

// NewLister returns a Lister. Either command may be empty.
func NewLister(listCommand, testCommand []string, opts ...Option) *Lister {
	l := &Lister{
		listCommand: listCommand,
		testCommand: testCommand,
		runner:      ExecRunner{},
		testTimeout: DefaultTestTimeout,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// CanTest reports whether a test command is configured.
func (l *Lister) CanTest() bool { return len(l.testCommand) > 0 }

// List runs the list command and parses its output. When test is true and a
// test command is configured, every device is checked with
// [Lister.Working]; a failed check marks the device as not working.
func (l *Lister) List(ctx context.Context, test bool) ([]Device, error) {
	if len(l.listCommand) == 0 {
		return nil, ErrNoListCommand
	}
	out, err := l.runner.Output(ctx, l.listCommand)
	if err != nil {
		return nil, fmt.Errorf("devices: list: %w", err)
	}
	devs := ParseList(string(out))
	if !test {
		return devs, nil
	}
	if !l.CanTest() {
		slog.Warn("device test requested but no test command configured")
		return devs, nil
	}
	for i := range devs {
		ok, err := l.Working(ctx, devs[i].Name)
		if err != nil {
			slog.Warn("device test failed", "device", devs[i].Name, "err", err)
		}
		devs[i].Working = &ok
	}
	return devs, nil
}

// Working records a short sample from device and reports whether its
// debiased energy is above [audio.WorkingMicrophoneThreshold].
func (l *Lister) Working(ctx context.Context, device string) (bool, error) {
	if !l.CanTest() {
		return false, errors.New("devices: no test command configured")
	}
	argv := make([]string, len(l.testCommand))
	for i, a := range l.testCommand {
		argv[i] = strings.ReplaceAll(a, DevicePlaceholder, device)
	}

	tctx, cancel := context.WithTimeout(ctx, l.testTimeout)
	defer cancel()
	buf, err := l.runner.Record(tctx, argv, TestSampleBytes)
	if err != nil {
		return false, fmt.Errorf("devices: test %s: %w", device, err)
	}
	energy := audio.DebiasedEnergy(buf, 2)
	slog.Debug("device tested", "device", device, "debiased_energy", energy)
	return energy > audio.WorkingMicrophoneThreshold, nil
}
