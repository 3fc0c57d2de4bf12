package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/r3d91ll/chime/pkg/api"
	"github.com/r3d91ll/chime/pkg/config"
	"github.com/r3d91ll/chime/pkg/link"
	"github.com/r3d91ll/chime/pkg/shell"
	"github.com/r3d91ll/chime/pkg/spinner"
	"github.com/r3d91ll/chime/pkg/store"
	"github.com/r3d91ll/chime/pkg/sweep"
)

// -----------------------------------------------------------------------------
// send
// -----------------------------------------------------------------------------

func (a *app) sendCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Transmit text once and report what the receiver decoded",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.applyOverrides(cmd); err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			sender, receiver, err := a.agents()
			if err != nil {
				return err
			}
			sess := a.newSession("send")
			l := link.New(sender, receiver, a.linkOptions(sess))

			text := strings.Join(args, " ")
			out, err := l.Transmit(cmd.Context(), text)
			sess.AddTransmission(l.Mode(), out)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
			} else {
				printOutcome(a, l, out)
			}
			return a.finishSession(cmd, sess, st)
		},
	}
	a.addSimulationFlags(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full outcome as JSON")
	return cmd
}

func printOutcome(a *app, l *link.Link, out link.Outcome) {
	status := "ok"
	if !out.Success {
		status = "FAILED"
	}
	fmt.Fprintf(a.out, "sent:     %q\n", out.Text)
	fmt.Fprintf(a.out, "decoded:  %q\n", out.Decoded)
	fmt.Fprintf(a.out, "status:   %s (%s, %d cycles, threshold %.3f)\n",
		status, l.Mode(), l.Config().Cycles, l.Threshold())
	fmt.Fprintf(a.out, "frames:   %d sent, %d skipped, %s payload of %d bits\n",
		out.Report.Sent, out.Report.Skipped, out.Report.PayloadType, out.Report.PayloadBits)
	fmt.Fprintf(a.out, "errors:   %d/%d bits (BER %.4f)\n", out.BitErrors, out.FrameBits, out.BitErrorRate())
	if out.Error != "" {
		fmt.Fprintf(a.out, "problem:  %s\n", out.Error)
	}
}

// -----------------------------------------------------------------------------
// sweep
// -----------------------------------------------------------------------------

func (a *app) sweepCmd() *cobra.Command {
	var (
		epsilons    []float64
		cycles      []int
		trials      int
		concurrency int
		message     string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Measure bit error rate over a grid of epsilon and cycle counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.applyOverrides(cmd); err != nil {
				return err
			}
			mode, _ := a.cfg.Mode()

			grid := sweep.Grid{Epsilons: epsilons, Cycles: cycles}
			spin := spinner.NewWithConfig(spinner.Config{
				Message:     fmt.Sprintf("sweeping %d points x %d trials", grid.Size(), trials),
				Writer:      cmd.ErrOrStderr(),
				ShowElapsed: true,
			})
			spin.Start()
			points, err := sweep.Run(cmd.Context(), grid, sweep.Options{
				Base:             a.cfg.Simulation.Config,
				Mode:             mode,
				Primes:           a.cfg.Primes,
				Seeds:            a.cfg.Seeds,
				Message:          message,
				Trials:           trials,
				Concurrency:      concurrency,
				EntangleStrength: a.cfg.Transmission.EntangleStrength,
				AllowCompression: a.cfg.Transmission.AllowCompression,
				RandSeed:         a.cfg.Transmission.RandSeed,
				Logger:           a.logger,
				Progress:         spin.Progress,
			})
			if err != nil {
				spin.Fail("sweep failed")
				return err
			}
			spin.Success("sweep complete")

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(points)
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EPSILON\tCYCLES\tTRIALS\tSUCCESS\tBER")
			for _, p := range points {
				fmt.Fprintf(tw, "%.3f\t%d\t%d\t%.0f%%\t%.4f\n",
					p.Epsilon, p.Cycles, p.Trials, p.SuccessRate()*100, p.BitErrorRate())
			}
			return tw.Flush()
		},
	}
	a.addSimulationFlags(cmd)
	cmd.Flags().Float64SliceVar(&epsilons, "epsilons", []float64{0.1, 0.2, 0.3, 0.5}, "Phase epsilons to test")
	cmd.Flags().IntSliceVar(&cycles, "cycle-counts", []int{0, 10, 50}, "Cycle counts to test")
	cmd.Flags().IntVar(&trials, "trials", 3, "Trials per grid point")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel trials (default: GOMAXPROCS)")
	cmd.Flags().StringVar(&message, "message", "chime", "Text transmitted in every trial")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print points as JSON")
	return cmd
}

// -----------------------------------------------------------------------------
// shell
// -----------------------------------------------------------------------------

func (a *app) shellCmd() *cobra.Command {
	var (
		history string
		serve   bool
	)
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive experiment console",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.applyOverrides(cmd); err != nil {
				return err
			}
			ctx := cmd.Context()

			var st *store.Store
			if a.cfg.Store.Path != "" {
				var err error
				if st, err = store.Open(a.cfg.Store.Path); err != nil {
					return err
				}
				defer st.Close()
			}

			var obs link.Observer
			if serve {
				hub, stop, err := a.startTelemetry()
				if err != nil {
					return err
				}
				defer stop()
				obs = api.NewHubObserver(hub)
			}

			sender, receiver, err := a.agents()
			if err != nil {
				return err
			}
			sess := a.newSession("shell")
			sh, err := shell.New(shell.Config{HistoryFile: history}, shell.Env{
				Sender:   sender,
				Receiver: receiver,
				Link:     a.linkOptions(obs),
				Session:  sess,
				Store:    st,
				Out:      a.out,
			})
			if err != nil {
				return err
			}
			if err := sh.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			var save *store.Store
			if a.save {
				save = st
			}
			return a.finishSession(cmd, sess, save)
		},
	}
	a.addSimulationFlags(cmd)
	cmd.Flags().StringVar(&history, "history", "", "Readline history file")
	cmd.Flags().BoolVar(&serve, "serve", false, "Also serve live telemetry over WebSocket")
	return cmd
}

// -----------------------------------------------------------------------------
// serve
// -----------------------------------------------------------------------------

func (a *app) serveCmd() *cobra.Command {
	var (
		host     string
		port     int
		message  string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live telemetry, optionally transmitting a message on a timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.applyOverrides(cmd); err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			hub, stop, err := a.startTelemetry()
			if err != nil {
				return err
			}
			defer stop()

			ctx := cmd.Context()
			if message == "" {
				<-ctx.Done()
				return nil
			}

			sender, receiver, err := a.agents()
			if err != nil {
				return err
			}
			sess := a.newSession("serve")
			l := link.New(sender, receiver, a.linkOptions(link.Observers{sess, api.NewHubObserver(hub)}))

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				out, err := l.Transmit(ctx, message)
				sess.AddTransmission(l.Mode(), out)
				if err != nil && ctx.Err() == nil {
					a.logger.Warn("transmission failed", zap.Error(err))
				} else if err == nil {
					a.logger.Info("transmission",
						zap.Bool("success", out.Success),
						zap.Int("bit_errors", out.BitErrors),
						zap.Float64("ber", out.BitErrorRate()))
				}
				l.Reset()

				select {
				case <-ctx.Done():
					return a.finishSession(cmd, sess, st)
				case <-ticker.C:
				}
			}
		},
	}
	a.addSimulationFlags(cmd)
	cmd.Flags().StringVar(&host, "host", "", "Interface to bind (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVar(&message, "message", "", "Text to transmit repeatedly")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Delay between transmissions")
	return cmd
}

// startTelemetry runs a hub and server until the returned stop is called.
func (a *app) startTelemetry() (*api.Hub, func(), error) {
	hub := api.NewHub(a.logger)
	go hub.Run()

	srv := api.NewServer(&a.cfg.Server, hub, a.logger)
	if err := srv.Start(); err != nil {
		hub.Stop()
		return nil, nil, err
	}
	fmt.Fprintf(a.out, "Telemetry on ws://%s/ws\n", srv.ListenAddr())

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("server shutdown", zap.Error(err))
		}
		hub.Stop()
	}
	return hub, stop, nil
}

// -----------------------------------------------------------------------------
// init / version
// -----------------------------------------------------------------------------

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			wrote, err := config.InitConfig(path)
			if err != nil {
				return err
			}
			if !wrote {
				fmt.Fprintf(a.out, "Config already exists at: %s\n", path)
				return nil
			}
			fmt.Fprintf(a.out, "Config initialized at: %s\n", path)
			fmt.Fprintln(a.out, "Edit this file to change primes and simulation parameters.")
			return nil
		},
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "chime %s\n", version)
		},
	}
}
