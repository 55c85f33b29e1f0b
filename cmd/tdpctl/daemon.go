package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codeberg.org/mutker/tdpctl/internal/controller"
	"codeberg.org/mutker/tdpctl/internal/logger"
	"codeberg.org/mutker/tdpctl/internal/pid"
	"codeberg.org/mutker/tdpctl/internal/power"
	"codeberg.org/mutker/tdpctl/internal/state"
	"codeberg.org/mutker/tdpctl/internal/tdp"
	"codeberg.org/mutker/tdpctl/internal/telemetry"
)

func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the auto-switch polling loop",
		Long: `Run the auto-switch polling loop.

The daemon samples the power source every interval, debounces transient plug/unplug flicker, and applies the preferred profile for the stable source. A manual "tdpctl set" from another terminal suspends switching by the next tick.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context())
		},
	}

	cmd.Flags().Int("interval", 0, "Seconds between power source polls")
	cmd.Flags().Int("debounce", 0, "Consecutive observations required before switching")

	return cmd
}

func runDaemon(parent context.Context) error {
	if err := pid.Write(); err != nil {
		return err
	}
	defer pid.Remove()

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	prefs := controller.Preferences{
		power.SourceAC:      cfg.Preferences.AC,
		power.SourceBattery: cfg.Preferences.Battery,
	}

	// Misconfigured preferences should refuse to start, not fail on the
	// first switch.
	for source, name := range prefs {
		if _, err := catalog.Get(name); err != nil {
			logger.Error().
				Str("source", string(source)).
				Str("profile", name).
				Msg("Preference names an unknown profile")
			return err
		}
	}

	sensor := power.NewSensor()
	actuator := tdp.NewActuator(cfg.Ryzenadj,
		tdp.WithTimeout(time.Duration(cfg.ApplyTimeout)*time.Second))
	store := state.NewStore(cfg.StatePath)

	opts := []controller.Option{}

	var collector telemetry.Collector
	if cfg.Telemetry {
		collector, err = telemetry.NewService(telemetry.Config{DBPath: cfg.Database})
		if err != nil {
			return err
		}
		defer func() {
			if err := collector.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close telemetry")
			}
		}()

		opts = append(opts, controller.WithObserver(recordObservation(collector, sensor)))
	}

	ctrl, err := controller.New(catalog, sensor, actuator, store,
		prefs, cfg.Debounce, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go handleSignals(cancel)

	logger.Info().
		Int("interval", cfg.Interval).
		Int("debounce", cfg.Debounce).
		Str("ac_profile", cfg.Preferences.AC).
		Str("battery_profile", cfg.Preferences.Battery).
		Msg("Auto-switch daemon started")

	return ctrl.Run(ctx, time.Duration(cfg.Interval)*time.Second)
}

func recordObservation(collector telemetry.Collector, capacity power.CapacityReader) func(controller.Observation) {
	return func(obs controller.Observation) {
		snapshot := &telemetry.Snapshot{
			Timestamp:    obs.Time,
			Source:       string(obs.Observed),
			Mode:         string(obs.Mode),
			Phase:        string(obs.Phase),
			Candidate:    string(obs.Candidate),
			PendingCount: obs.Count,
			Profile:      obs.Applied,
			Switched:     obs.Applied != "",
		}

		if pct, err := capacity.Capacity(); err == nil {
			snapshot.Capacity = pct
		}

		if obs.Err != nil {
			snapshot.Error = obs.Err.Error()
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := collector.Record(ctx, snapshot); err != nil {
			logger.Debug().Err(err).Msg("Failed to record observation")
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
