// chime - message transfer between coupled phase-oscillator agents.
//
// A sender agent embeds framed text in the phases of prime-indexed oscillator
// groups; the state is evolved or coupled to a receiver agent, which recovers
// the bits by phase voting and reassembles the frames.
package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/r3d91ll/chime/pkg/agent"
	"github.com/r3d91ll/chime/pkg/config"
	"github.com/r3d91ll/chime/pkg/coupling"
	"github.com/r3d91ll/chime/pkg/errors"
	"github.com/r3d91ll/chime/pkg/link"
	"github.com/r3d91ll/chime/pkg/logging"
	"github.com/r3d91ll/chime/pkg/session"
	"github.com/r3d91ll/chime/pkg/store"
)

const version = "0.3.0"

// app carries state shared by every subcommand.
type app struct {
	configPath string
	verbose    bool

	// per-command simulation overrides
	mode        string
	cycles      int
	epsilon     float64
	noCompress  bool
	sessionName string
	save        bool

	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "chime",
		Short: "Transmit text through coupled phase-oscillator agents",
		Long: `chime encodes text into the phases of prime-indexed oscillator groups,
evolves or couples the sender's state to a receiver, and decodes the
receiver's phases back into framed text.

Run 'chime init' to write a config file with every simulation parameter.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" || cmd.Name() == "version" {
				return nil
			}
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file path (default: ./chime.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.sendCmd(),
		a.sweepCmd(),
		a.shellCmd(),
		a.serveCmd(),
		a.initCmd(),
		a.versionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		errors.DefaultFormatter().Print(err)
		os.Exit(1)
	}
}

// setup loads and validates the config and builds the logger.
func (a *app) setup() error {
	path := a.configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Logging, a.verbose)
	if err != nil {
		return err
	}
	a.logger = logger
	a.logger.Debug("config loaded", zap.String("path", path), zap.Int("primes", len(cfg.Primes)))
	return nil
}

// addSimulationFlags registers the overrides shared by commands that transmit.
func (a *app) addSimulationFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&a.mode, "mode", "m", "", "Coupling mode: direct, entangled, resonance")
	cmd.Flags().IntVar(&a.cycles, "cycles", 0, "Coupling cycles per frame")
	cmd.Flags().Float64Var(&a.epsilon, "epsilon", 0, "Phase offset encoding a 1 bit")
	cmd.Flags().BoolVar(&a.noCompress, "no-compress", false, "Never brotli-compress text payloads")
	cmd.Flags().StringVar(&a.sessionName, "session", "chime", "Session name")
	cmd.Flags().BoolVar(&a.save, "save", false, "Save the session to the configured store")
}

// applyOverrides copies changed simulation flags into the config.
func (a *app) applyOverrides(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		m, err := link.ParseMode(a.mode)
		if err != nil {
			return err
		}
		a.cfg.Simulation.CouplingMode = string(m)
	}
	if flags.Changed("cycles") {
		a.cfg.Simulation.Cycles = a.cycles
	}
	if flags.Changed("epsilon") {
		a.cfg.Simulation.Epsilon = a.epsilon
	}
	if a.noCompress {
		a.cfg.Transmission.AllowCompression = false
	}
	return a.cfg.Validate()
}

// agents builds the sender and receiver over the configured primes.
func (a *app) agents() (*agent.Agent, *agent.Agent, error) {
	sim := a.cfg.Simulation.Config

	ss := agent.DefaultSender(a.cfg.Primes)
	ss.Seeds = a.cfg.Seeds
	sender, err := agent.NewFromSpec(ss, sim, a.logger)
	if err != nil {
		return nil, nil, err
	}

	rs := agent.DefaultReceiver(a.cfg.Primes)
	rs.Seeds = a.cfg.Seeds
	receiver, err := agent.NewFromSpec(rs, sim, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return sender, receiver, nil
}

func (a *app) linkOptions(obs link.Observer) link.Options {
	mode, _ := a.cfg.Mode()
	return link.Options{
		Config:           a.cfg.Simulation.Config,
		Mode:             mode,
		EntangleStrength: a.cfg.Transmission.EntangleStrength,
		AllowCompression: a.cfg.Transmission.AllowCompression,
		Rand:             a.randSource(),
		Observer:         obs,
		Logger:           a.logger,
	}
}

// randSource returns a seeded source when rand_seed is set, otherwise nil for the
// global source.
func (a *app) randSource() coupling.Rand {
	seed := a.cfg.Transmission.RandSeed
	if seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(seed, seed))
}

func (a *app) newSession(description string) *session.Session {
	s := session.New(a.sessionName, description)
	s.Config = a.cfg.Session
	s.Metadata = map[string]any{
		"mode":   a.cfg.Simulation.CouplingMode,
		"cycles": a.cfg.Simulation.Cycles,
		"primes": len(a.cfg.Primes),
	}
	return s
}

// openStore opens the configured store when --save is set, otherwise it
// returns nil.
func (a *app) openStore() (*store.Store, error) {
	if !a.save {
		return nil, nil
	}
	if a.cfg.Store.Path == "" {
		return nil, errors.ConfigError(errors.ErrConfigInvalid, "--save needs a store path").
			WithContext("field", "store.path")
	}
	return store.Open(a.cfg.Store.Path)
}

// finishSession ends sess, exports it when auto-export is on, and saves it
// to st when st is not nil.
func (a *app) finishSession(cmd *cobra.Command, sess *session.Session, st *store.Store) error {
	sess.End()
	if sess.Config.AutoExport {
		dir, err := sess.Export()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Session exported to %s\n", dir)
	}
	if st != nil {
		if err := st.SaveSession(cmd.Context(), sess); err != nil {
			return err
		}
		a.logger.Debug("session saved", zap.String("store", st.Path()), zap.String("session", sess.ID))
	}
	return nil
}
