// Package controller implements the auto-switch state machine. Each
// poll tick it samples the power source, debounces flapping, and applies
// the preferred profile for the stable source. Manual mode, observed
// from the state store, always takes precedence: the controller then
// records observations for diagnostics only.
package controller

import (
	"context"
	"time"

	"codeberg.org/mutker/tdpctl/internal/errors"
	"codeberg.org/mutker/tdpctl/internal/logger"
	"codeberg.org/mutker/tdpctl/internal/power"
	"codeberg.org/mutker/tdpctl/internal/profile"
	"codeberg.org/mutker/tdpctl/internal/state"
	"codeberg.org/mutker/tdpctl/internal/tdp"
)

const maxRetryDelayTicks = 8

// Preferences maps a power source to the profile it selects.
type Preferences map[power.Source]string

// DefaultPreferences returns the built-in source to profile mapping.
func DefaultPreferences() Preferences {
	return Preferences{
		power.SourceAC:      "performance",
		power.SourceBattery: "balanced",
	}
}

// Phase names the controller's position in the state machine, reported
// through observations.
type Phase string

const (
	PhaseDisabled Phase = "disabled"
	PhaseIdle     Phase = "idle"
	PhasePending  Phase = "pending"
)

// Observation is a per-tick report, consumed by the telemetry recorder.
type Observation struct {
	Time      time.Time
	Observed  power.Source
	Mode      state.Mode
	Phase     Phase
	Candidate power.Source
	Count     int
	Applied   string
	Err       error
}

// Controller drives profile switching from power source changes.
type Controller struct {
	catalog  *profile.Catalog
	sensor   power.Sensor
	actuator tdp.Actuator
	store    state.Store
	prefs    Preferences
	debounce int

	now      func() time.Time
	observer func(Observation)

	// In-memory debounce window; never persisted.
	lastSource power.Source
	candidate  power.Source
	count      int
	armed      bool

	// Capped backoff after failed applies.
	skipTicks  int
	retryDelay int
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock substitutes the wall clock for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithObserver registers a callback invoked after every tick.
func WithObserver(fn func(Observation)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// New returns a Controller. debounce is the number of consecutive
// observations of a new source required before switching.
func New(
	catalog *profile.Catalog,
	sensor power.Sensor,
	actuator tdp.Actuator,
	store state.Store,
	prefs Preferences,
	debounce int,
	opts ...Option,
) (*Controller, error) {
	if debounce < 1 {
		return nil, errors.New().WithData(ErrInvalidDebounce, debounce)
	}

	c := &Controller{
		catalog:    catalog,
		sensor:     sensor,
		actuator:   actuator,
		store:      store,
		prefs:      prefs,
		debounce:   debounce,
		now:        time.Now,
		lastSource: power.SourceUnknown,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Run ticks the state machine at the given interval until the context
// is cancelled. There is no terminal state; cancellation is the only
// exit, and the store's atomic writes keep the record intact across
// interruption.
func (c *Controller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New().WithData(ErrInvalidInterval, interval.String())
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick runs one state machine transition. Exported so tests can drive
// every transition without wall-clock delay.
func (c *Controller) Tick(ctx context.Context) {
	obs := Observation{
		Time:     c.now(),
		Observed: c.sensor.Sample(),
		Mode:     state.ModeAuto,
	}

	st, err := c.store.Read()
	if err != nil {
		// An unreadable store is not fatal to the loop, but acting on
		// an unknown mode could override a manual set.
		logger.Warn().Err(err).Msg("State store unreadable, skipping tick")
		obs.Err = err
		c.report(obs)
		return
	}

	if st != nil {
		obs.Mode = st.Mode
	}

	if obs.Mode == state.ModeManual {
		c.disarm()
		obs.Phase = PhaseDisabled
		logger.Debug().
			Str("source", string(obs.Observed)).
			Msg("Manual mode, observation recorded only")
		c.report(obs)
		return
	}

	if !c.armed {
		c.arm(st)
	}

	c.step(ctx, st, &obs)
	c.report(obs)
}

// arm initializes the debounce baseline when auto mode (re)starts. The
// stored source is trusted only when its preferred profile is already
// applied; anything else starts from Unknown so the loop converges to
// the preference after debounce, without a redundant hardware write on
// a plain auto toggle.
func (c *Controller) arm(st *state.AppliedState) {
	c.lastSource = power.SourceUnknown
	if st != nil && c.prefs[st.Source] == st.Profile {
		c.lastSource = st.Source
	}

	c.candidate = ""
	c.count = 0
	c.skipTicks = 0
	c.retryDelay = 0
	c.armed = true

	logger.Debug().
		Str("baseline", string(c.lastSource)).
		Msg("Auto-switch armed")
}

func (c *Controller) disarm() {
	c.armed = false
	c.candidate = ""
	c.count = 0
	c.skipTicks = 0
	c.retryDelay = 0
}

func (c *Controller) step(ctx context.Context, st *state.AppliedState, obs *Observation) {
	observed := obs.Observed

	// Nothing to act on without a readable source indicator.
	if observed == power.SourceUnknown {
		c.candidate = ""
		c.count = 0
		obs.Phase = PhaseIdle
		return
	}

	if observed == c.lastSource {
		c.candidate = ""
		c.count = 0
		c.retryDelay = 0
		obs.Phase = PhaseIdle
		return
	}

	if c.candidate != observed {
		c.candidate = observed
		c.count = 1
		c.skipTicks = 0
		c.retryDelay = 0
	} else {
		c.count++
	}

	obs.Phase = PhasePending
	obs.Candidate = c.candidate
	obs.Count = c.count

	if c.count < c.debounce {
		return
	}

	// Backoff after a failed apply. The pending intent is kept; only
	// the retry is delayed.
	if c.skipTicks > 0 {
		c.skipTicks--
		return
	}

	if err := c.switchTo(ctx, observed, st); err != nil {
		obs.Err = err
		c.backoff()
		logger.Warn().
			Err(err).
			Str("source", string(observed)).
			Int("retry_in_ticks", c.skipTicks).
			Msg("Profile switch failed, will retry")
		return
	}

	obs.Applied = c.prefs[observed]
	c.lastSource = observed
	c.candidate = ""
	c.count = 0
	c.skipTicks = 0
	c.retryDelay = 0
	obs.Phase = PhaseIdle
}

func (c *Controller) switchTo(ctx context.Context, source power.Source, prev *state.AppliedState) error {
	errFactory := errors.New()

	name, ok := c.prefs[source]
	if !ok {
		return errFactory.WithData(ErrNoPreference, string(source))
	}

	p, err := c.catalog.Get(name)
	if err != nil {
		return err
	}

	// Skip the hardware write when the preferred profile is already
	// the last applied one; Apply is idempotent either way.
	if prev == nil || prev.Profile != p.Name {
		if err := c.actuator.Apply(ctx, p); err != nil {
			return err
		}
	}

	if err := c.store.Write(state.AppliedState{
		Profile:   p.Name,
		AppliedAt: c.now(),
		Source:    source,
		Mode:      state.ModeAuto,
	}); err != nil {
		// The apply is not considered complete without a durable
		// record.
		return err
	}

	logger.Info().
		Str("profile", p.Name).
		Str("source", string(source)).
		Msg("Profile switched")

	return nil
}

func (c *Controller) backoff() {
	c.skipTicks = c.retryDelay
	c.retryDelay *= 2
	if c.retryDelay < 1 {
		c.retryDelay = 1
	}
	if c.retryDelay > maxRetryDelayTicks {
		c.retryDelay = maxRetryDelayTicks
	}
}

func (c *Controller) report(obs Observation) {
	if c.observer != nil {
		c.observer(obs)
	}
}
