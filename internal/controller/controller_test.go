package controller_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/tdpctl/internal/controller"
	"codeberg.org/mutker/tdpctl/internal/logger"
	"codeberg.org/mutker/tdpctl/internal/power"
	"codeberg.org/mutker/tdpctl/internal/profile"
	"codeberg.org/mutker/tdpctl/internal/state"
)

func init() {
	logger.Init("error", true)
}

// fakeSensor replays a fixed sequence of observations, repeating the
// last one once exhausted.
type fakeSensor struct {
	seq []power.Source
	i   int
}

func (s *fakeSensor) Sample() power.Source {
	if s.i >= len(s.seq) {
		return s.seq[len(s.seq)-1]
	}

	src := s.seq[s.i]
	s.i++

	return src
}

type fakeActuator struct {
	applied  []string
	failures int
}

func (a *fakeActuator) Apply(_ context.Context, p profile.Profile) error {
	if a.failures > 0 {
		a.failures--
		return fmt.Errorf("smu mailbox busy")
	}

	a.applied = append(a.applied, p.Name)

	return nil
}

type memStore struct {
	st        *state.AppliedState
	writes    int
	failWrite bool
}

func (m *memStore) Read() (*state.AppliedState, error) {
	if m.st == nil {
		return nil, nil
	}

	cp := *m.st

	return &cp, nil
}

func (m *memStore) Write(st state.AppliedState) error {
	if m.failWrite {
		return fmt.Errorf("disk full")
	}

	m.writes++
	m.st = &st

	return nil
}

func testCatalog(t *testing.T) *profile.Catalog {
	t.Helper()

	catalog, err := profile.Load(nil)
	require.NoError(t, err)

	return catalog
}

func newController(t *testing.T, sensor power.Sensor, actuator *fakeActuator, store state.Store, prefs controller.Preferences, debounce int) *controller.Controller {
	t.Helper()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	c, err := controller.New(testCatalog(t), sensor, actuator, store, prefs, debounce,
		controller.WithClock(func() time.Time { return base }))
	require.NoError(t, err)

	return c
}

func TestColdStartConvergesExactlyOnce(t *testing.T) {
	sensor := &fakeSensor{seq: []power.Source{power.SourceAC}}
	actuator := &fakeActuator{}
	store := &memStore{}
	prefs := controller.Preferences{
		power.SourceAC:      "turbo",
		power.SourceBattery: "balanced",
	}

	c := newController(t, sensor, actuator, store, prefs, 2)

	ctx := context.Background()
	c.Tick(ctx)
	assert.Empty(t, actuator.applied, "first observation must not switch yet")

	c.Tick(ctx)
	require.Equal(t, []string{"turbo"}, actuator.applied)
	require.NotNil(t, store.st)
	assert.Equal(t, "turbo", store.st.Profile)
	assert.Equal(t, power.SourceAC, store.st.Source)
	assert.Equal(t, state.ModeAuto, store.st.Mode)

	// Further stable ticks must not re-apply.
	c.Tick(ctx)
	c.Tick(ctx)
	assert.Len(t, actuator.applied, 1)
	assert.Equal(t, 1, store.writes)
}

func TestFlickerShorterThanDebounceIsIgnored(t *testing.T) {
	sensor := &fakeSensor{seq: []power.Source{
		power.SourceAC, power.SourceBattery, power.SourceAC, power.SourceAC,
	}}
	actuator := &fakeActuator{}
	store := &memStore{st: &state.AppliedState{
		Profile: "performance",
		Source:  power.SourceAC,
		Mode:    state.ModeAuto,
	}}
	prefs := controller.Preferences{
		power.SourceAC:      "performance",
		power.SourceBattery: "balanced",
	}

	c := newController(t, sensor, actuator, store, prefs, 3)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		c.Tick(ctx)
	}

	assert.Empty(t, actuator.applied, "a sub-threshold flicker must never switch")
	assert.Equal(t, 0, store.writes)
	assert.Equal(t, "performance", store.st.Profile)
}

func TestManualModeSuspendsSwitching(t *testing.T) {
	sensor := &fakeSensor{seq: []power.Source{
		power.SourceBattery, power.SourceBattery, power.SourceBattery, power.SourceAC,
	}}
	actuator := &fakeActuator{}
	store := &memStore{st: &state.AppliedState{
		Profile: "turbo",
		Source:  power.SourceAC,
		Mode:    state.ModeManual,
	}}
	prefs := controller.DefaultPreferences()

	c := newController(t, sensor, actuator, store, prefs, 2)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		c.Tick(ctx)
	}

	assert.Empty(t, actuator.applied, "manual mode must never be overridden by the poll loop")
	assert.Equal(t, 0, store.writes)
	assert.Equal(t, "turbo", store.st.Profile)
}

func TestAutoReenableConvergesToPreference(t *testing.T) {
	// A manual "set turbo" happened on battery, then auto was turned
	// back on. The stored profile does not match the battery
	// preference, so the loop converges after debounce.
	sensor := &fakeSensor{seq: []power.Source{power.SourceBattery}}
	actuator := &fakeActuator{}
	store := &memStore{st: &state.AppliedState{
		Profile: "turbo",
		Source:  power.SourceBattery,
		Mode:    state.ModeAuto,
	}}
	prefs := controller.DefaultPreferences()

	c := newController(t, sensor, actuator, store, prefs, 3)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c.Tick(ctx)
	}

	require.Equal(t, []string{"balanced"}, actuator.applied)
	assert.Equal(t, "balanced", store.st.Profile)
	assert.Equal(t, state.ModeAuto, store.st.Mode)
}

func TestAutoReenableWithoutChangeIsSilent(t *testing.T) {
	// The stored profile already matches the preference for the stored
	// source: re-enabling auto must not touch the hardware.
	sensor := &fakeSensor{seq: []power.Source{power.SourceAC}}
	actuator := &fakeActuator{}
	store := &memStore{st: &state.AppliedState{
		Profile: "performance",
		Source:  power.SourceAC,
		Mode:    state.ModeAuto,
	}}
	prefs := controller.DefaultPreferences()

	c := newController(t, sensor, actuator, store, prefs, 2)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		c.Tick(ctx)
	}

	assert.Empty(t, actuator.applied)
	assert.Equal(t, 0, store.writes)
}

func TestFailedApplyIsRetriedAndStateUntouched(t *testing.T) {
	sensor := &fakeSensor{seq: []power.Source{power.SourceBattery}}
	actuator := &fakeActuator{failures: 1}
	store := &memStore{st: &state.AppliedState{
		Profile: "performance",
		Source:  power.SourceAC,
		Mode:    state.ModeAuto,
	}}
	prefs := controller.DefaultPreferences()

	c := newController(t, sensor, actuator, store, prefs, 2)

	ctx := context.Background()
	c.Tick(ctx)
	c.Tick(ctx)
	assert.Empty(t, actuator.applied)
	assert.Equal(t, "performance", store.st.Profile, "failed apply must not mutate state")

	// First retry happens on the very next tick.
	c.Tick(ctx)
	require.Equal(t, []string{"balanced"}, actuator.applied)
	assert.Equal(t, "balanced", store.st.Profile)
}

func TestRepeatedFailuresBackOff(t *testing.T) {
	sensor := &fakeSensor{seq: []power.Source{power.SourceBattery}}
	actuator := &fakeActuator{failures: 3}
	store := &memStore{st: &state.AppliedState{
		Profile: "performance",
		Source:  power.SourceAC,
		Mode:    state.ModeAuto,
	}}
	prefs := controller.DefaultPreferences()

	c := newController(t, sensor, actuator, store, prefs, 1)

	ctx := context.Background()
	// tick 1: fail (retry next tick). tick 2: fail (skip 1). tick 3:
	// skipped. tick 4: fail (skip 2). ticks 5-6: skipped. tick 7:
	// succeeds.
	attempts := func() int { return 3 - actuator.failures + len(actuator.applied) }

	c.Tick(ctx)
	assert.Equal(t, 1, attempts())
	c.Tick(ctx)
	assert.Equal(t, 2, attempts())
	c.Tick(ctx)
	assert.Equal(t, 2, attempts(), "backoff tick must not retry")
	c.Tick(ctx)
	assert.Equal(t, 3, attempts())
	c.Tick(ctx)
	c.Tick(ctx)
	assert.Equal(t, 3, attempts(), "backoff widens after each failure")
	c.Tick(ctx)
	require.Equal(t, []string{"balanced"}, actuator.applied)
	assert.Equal(t, "balanced", store.st.Profile)
}

func TestStateWriteFailureKeepsIntentPending(t *testing.T) {
	sensor := &fakeSensor{seq: []power.Source{power.SourceAC}}
	actuator := &fakeActuator{}
	store := &memStore{failWrite: true}
	prefs := controller.DefaultPreferences()

	c := newController(t, sensor, actuator, store, prefs, 1)

	ctx := context.Background()
	c.Tick(ctx)
	assert.Nil(t, store.st, "apply without a durable record is not complete")

	store.failWrite = false
	c.Tick(ctx)
	require.NotNil(t, store.st)
	assert.Equal(t, "performance", store.st.Profile)
}

func TestUnknownSourceTakesNoAction(t *testing.T) {
	sensor := &fakeSensor{seq: []power.Source{power.SourceUnknown}}
	actuator := &fakeActuator{}
	store := &memStore{}
	prefs := controller.DefaultPreferences()

	c := newController(t, sensor, actuator, store, prefs, 1)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c.Tick(ctx)
	}

	assert.Empty(t, actuator.applied)
	assert.Equal(t, 0, store.writes)
}

func TestObserverSeesSwitch(t *testing.T) {
	sensor := &fakeSensor{seq: []power.Source{power.SourceAC}}
	actuator := &fakeActuator{}
	store := &memStore{}
	prefs := controller.DefaultPreferences()

	var observations []controller.Observation
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	c, err := controller.New(testCatalog(t), sensor, actuator, store, prefs, 2,
		controller.WithClock(func() time.Time { return base }),
		controller.WithObserver(func(obs controller.Observation) {
			observations = append(observations, obs)
		}))
	require.NoError(t, err)

	ctx := context.Background()
	c.Tick(ctx)
	c.Tick(ctx)

	require.Len(t, observations, 2)
	assert.Equal(t, controller.PhasePending, observations[0].Phase)
	assert.Equal(t, 1, observations[0].Count)
	assert.Equal(t, "performance", observations[1].Applied)
	assert.Equal(t, controller.PhaseIdle, observations[1].Phase)
}

func TestInvalidDebounceRejected(t *testing.T) {
	_, err := controller.New(testCatalog(t), &fakeSensor{seq: []power.Source{power.SourceAC}},
		&fakeActuator{}, &memStore{}, controller.DefaultPreferences(), 0)
	require.Error(t, err)
}
