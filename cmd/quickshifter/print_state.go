package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/quickshifter/internal/config"
	"github.com/sweeney/quickshifter/internal/gpio"
)

func newPrintStateCommand(opts *rootOptions) *cobra.Command {
	var (
		pinShift int
		pinRPM   int
		window   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "print-state",
		Short: "Print the shift sensor level and engine speed, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}

			input, err := gpio.NewRealInput(pinShift)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer input.Close()

			pressed, err := input.Level()
			if err != nil {
				return fmt.Errorf("read gpio: %w", err)
			}

			meter := gpio.NewMeter(time.Now, window)
			meter.SetPPR(cfg.PPR)
			meter.SetScale(cfg.RPMScale)
			if pinRPM < 0 {
				pinRPM = rpmPin(cfg.RPMSource, gpio.PinRPMCoil, gpio.PinRPMInj)
			}
			pulses, err := gpio.NewRealPulseInput(pinRPM, meter, time.Now)
			if err != nil {
				return fmt.Errorf("init rpm input: %w", err)
			}
			defer pulses.Close()
			time.Sleep(window)

			fmt.Fprintf(cmd.OutOrStdout(), "shift: %s, rpm: %d\n", levelString(pressed), meter.RPM())
			return nil
		},
	}

	cmd.Flags().IntVar(&pinShift, "pin-shift", gpio.PinShift, "BCM pin number for the shift sensor")
	cmd.Flags().IntVar(&pinRPM, "pin-rpm", -1, "BCM pin number for the tach input (default from rpm_source)")
	cmd.Flags().DurationVar(&window, "window", 500*time.Millisecond, "how long to sample the tach input")
	return cmd
}

func levelString(pressed bool) string {
	if pressed {
		return "PRESSED"
	}
	return "RELEASED"
}

func rpmPin(src config.RPMSource, coil, inj int) int {
	if src == config.RPMFromInjector {
		return inj
	}
	return coil
}
