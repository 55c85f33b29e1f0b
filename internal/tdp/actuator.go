// Package tdp applies a profile's power limits to the processor by
// invoking the ryzenadj primitive. The invoking user is expected to hold
// a sudoers rule scoped to exactly this command; no self-escalation is
// attempted.
package tdp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/mutker/tdpctl/internal/errors"
	"codeberg.org/mutker/tdpctl/internal/logger"
	"codeberg.org/mutker/tdpctl/internal/profile"
)

const defaultApplyTimeout = 10 * time.Second

// Actuator applies TDP profiles to hardware.
type Actuator interface {
	// Apply sets the three power limits from the profile. It blocks
	// until the primitive finishes or the timeout elapses, and is
	// idempotent: applying the same profile twice leaves the hardware
	// in the same state.
	Apply(ctx context.Context, p profile.Profile) error
}

// Runner executes the actuation command. Split out so tests can
// substitute the privileged primitive.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	// sudo interposes a child, and the kill on deadline reaches only
	// sudo itself. Without WaitDelay, Wait would block on the stderr
	// pipe still held by the orphaned grandchild.
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}

		return err
	}

	return nil
}

type actuator struct {
	command string
	useSudo bool
	timeout time.Duration
	runner  Runner
}

// Option configures an actuator.
type Option func(*actuator)

// WithRunner substitutes the command runner.
func WithRunner(r Runner) Option {
	return func(a *actuator) {
		a.runner = r
	}
}

// WithTimeout bounds a single Apply invocation.
func WithTimeout(d time.Duration) Option {
	return func(a *actuator) {
		a.timeout = d
	}
}

// WithSudo overrides the euid-based sudo detection.
func WithSudo(enabled bool) Option {
	return func(a *actuator) {
		a.useSudo = enabled
	}
}

// NewActuator returns an Actuator invoking the given ryzenadj binary.
func NewActuator(command string, opts ...Option) Actuator {
	a := &actuator{
		command: command,
		useSudo: os.Geteuid() != 0,
		timeout: defaultApplyTimeout,
		runner:  execRunner{},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *actuator) Apply(ctx context.Context, p profile.Profile) error {
	errFactory := errors.New()

	args := []string{
		fmt.Sprintf("--stapm-limit=%d", p.StapmLimit),
		fmt.Sprintf("--fast-limit=%d", p.FastLimit),
		fmt.Sprintf("--slow-limit=%d", p.SlowLimit),
	}

	name := a.command
	if a.useSudo {
		args = append([]string{"-n", a.command}, args...)
		name = "sudo"
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	logger.Debug().
		Str("profile", p.Name).
		Int("stapm_limit", p.StapmLimit).
		Int("fast_limit", p.FastLimit).
		Int("slow_limit", p.SlowLimit).
		Msg("Applying TDP limits")

	if err := a.runner.Run(ctx, name, args...); err != nil {
		return classify(ctx, errFactory, err)
	}

	return nil
}

func classify(ctx context.Context, errFactory errors.Factory, err error) error {
	switch {
	// The real runner reports a deadline kill as "signal: killed", so
	// the deadline has to be read off the context, not the error chain.
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return errFactory.Wrap(ErrApplyTimeout, err)
	case errors.Is(err, exec.ErrNotFound):
		return errFactory.Wrap(ErrCommandNotFound, err)
	case isPermission(err):
		return errFactory.Wrap(ErrPermissionDenied, err)
	default:
		return errFactory.Wrap(ErrApplyFailed, err)
	}
}

// isPermission recognizes privilege failures from both sudo -n (refused
// without a password) and ryzenadj itself (SMU access needs root).
func isPermission(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"password is required", "permission denied", "not allowed", "run with root"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
