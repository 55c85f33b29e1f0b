package main

import (
	"time"

	"github.com/spf13/cobra"

	"codeberg.org/mutker/tdpctl/internal/errors"
	"codeberg.org/mutker/tdpctl/internal/logger"
	"codeberg.org/mutker/tdpctl/internal/power"
	"codeberg.org/mutker/tdpctl/internal/state"
	"codeberg.org/mutker/tdpctl/internal/tdp"
)

func NewSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <profile>",
		Short: "Apply a TDP profile and switch to manual mode",
		Long: `Apply a TDP profile by name.

Applying a profile manually suspends automatic switching until "tdpctl auto on" is run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog()
			if err != nil {
				return err
			}

			p, err := catalog.Get(args[0])
			if err != nil {
				return err
			}

			actuator := tdp.NewActuator(cfg.Ryzenadj,
				tdp.WithTimeout(time.Duration(cfg.ApplyTimeout)*time.Second))
			if err := actuator.Apply(cmd.Context(), p); err != nil {
				return err
			}

			store := state.NewStore(cfg.StatePath)
			if err := store.Write(state.AppliedState{
				Profile:   p.Name,
				AppliedAt: time.Now(),
				Source:    power.NewSensor().Sample(),
				Mode:      state.ModeManual,
			}); err != nil {
				return err
			}

			logger.Info().Str("profile", p.Name).Msg("Profile applied, auto switching suspended")
			cmd.Printf("Applied profile %q (auto switching off)\n", p.Name)

			return nil
		},
	}
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied profile and current power source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sensor := power.NewSensor()

			st, err := state.NewStore(cfg.StatePath).Read()
			if err != nil {
				// A corrupt or unreadable record degrades the display
				// instead of failing the command.
				logger.Warn().Err(err).Msg("State store unreadable")
				cmd.Println("Profile:  unknown")
			} else if st == nil {
				cmd.Println("Profile:  none (never applied)")
			} else {
				cmd.Printf("Profile:  %s\n", st.Profile)
				cmd.Printf("Applied:  %s (on %s)\n", st.AppliedAt.Format(time.RFC3339), st.Source)
				cmd.Printf("Mode:     %s\n", st.Mode)
			}

			cmd.Printf("Source:   %s\n", sensor.Sample())
			if capacity, err := sensor.Capacity(); err == nil {
				cmd.Printf("Battery:  %d%%\n", capacity)
			}

			return nil
		},
	}
}

func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available TDP profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := loadCatalog()
			if err != nil {
				return err
			}

			var active string
			if st, err := state.NewStore(cfg.StatePath).Read(); err == nil && st != nil {
				active = st.Profile
			}

			for _, p := range catalog.List() {
				marker := " "
				if p.Name == active {
					marker = "*"
				}
				cmd.Printf("%s %-12s stapm=%5dmW fast=%5dmW slow=%5dmW", marker, p.Name,
					p.StapmLimit, p.FastLimit, p.SlowLimit)
				if p.RefreshHz > 0 {
					cmd.Printf(" refresh=%dHz", p.RefreshHz)
				}
				if p.Description != "" {
					cmd.Printf("  %s", p.Description)
				}
				cmd.Println()
			}

			return nil
		},
	}
}

func NewAutoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "auto on|off",
		Short: "Enable or disable automatic profile switching",
		Long: `Enable or disable automatic profile switching.

Enabling re-arms the daemon's switch loop from the current power source without re-applying the profile; a change then takes effect after the debounce window.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			errFactory := errors.New()

			var mode state.Mode
			switch args[0] {
			case "on":
				mode = state.ModeAuto
			case "off":
				mode = state.ModeManual
			default:
				return errFactory.WithData(errors.ErrInvalidArgument, args[0])
			}

			store := state.NewStore(cfg.StatePath)
			st, err := store.Read()
			if err != nil {
				return err
			}

			if st == nil {
				if mode == state.ModeAuto {
					// The daemon's loop already defaults to auto before
					// any profile has been applied.
					cmd.Println("Auto switching is on (no profile applied yet)")
					return nil
				}

				return errFactory.WithData(errors.ErrInvalidArgument,
					"no profile applied yet; use \"tdpctl set\" to pick one first")
			}

			if st.Mode == mode {
				cmd.Printf("Auto switching already %s\n", args[0])
				return nil
			}

			// Only the mode field changes; the applied profile record
			// stays untouched so no hardware write happens here.
			st.Mode = mode
			if err := store.Write(*st); err != nil {
				return err
			}

			cmd.Printf("Auto switching %s\n", args[0])

			return nil
		},
	}
}
