// Package shell provides the interactive experiment console: both agents
// live in-process and every line typed is a transmission or a command.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/r3d91ll/chime/pkg/agent"
	"github.com/r3d91ll/chime/pkg/coupling"
	"github.com/r3d91ll/chime/pkg/link"
	"github.com/r3d91ll/chime/pkg/metrics"
	"github.com/r3d91ll/chime/pkg/session"
	"github.com/r3d91ll/chime/pkg/spinner"
	"github.com/r3d91ll/chime/pkg/store"
)

// Shell is the interactive command-line interface.
type Shell struct {
	sender   *agent.Agent
	receiver *agent.Agent
	opts     link.Options
	link     *link.Link
	session  *session.Session
	store    *store.Store
	rl       *readline.Instance
	out      io.Writer
	log      *zap.Logger
}

// Config holds shell configuration.
type Config struct {
	HistoryFile string
	Prompt      string
}

// Env is what the shell operates on. Store may be nil.
type Env struct {
	Sender   *agent.Agent
	Receiver *agent.Agent
	Link     link.Options
	Session  *session.Session
	Store    *store.Store
	Out      io.Writer
}

// New creates a new interactive shell.
func New(cfg Config, env Env) (*Shell, error) {
	s := newShell(env)
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = "chime> "
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    NewCompleter(),
		Stdout:          s.out,
	})
	if err != nil {
		return nil, err
	}
	s.rl = rl
	return s, nil
}

func newShell(env Env) *Shell {
	out := env.Out
	if out == nil {
		out = os.Stdout
	}
	log := env.Link.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Shell{
		sender:   env.Sender,
		receiver: env.Receiver,
		opts:     env.Link,
		session:  env.Session,
		store:    env.Store,
		out:      out,
		log:      log,
	}
	if s.session != nil {
		s.opts.Observer = link.Observers{s.session, env.Link.Observer}
	}
	s.rebuild()
	return s
}

// rebuild creates a fresh link after a mode or cycle change.
func (s *Shell) rebuild() {
	s.link = link.New(s.sender, s.receiver, s.opts)
}

// Run starts the interactive loop.
func (s *Shell) Run(ctx context.Context) error {
	defer s.rl.Close()

	fmt.Fprintf(s.out, "%s -> %s over %d oscillators (%s, %d cycles)\n",
		s.sender.Name(), s.receiver.Name(), s.sender.OscillatorCount(), s.opts.Mode, s.opts.Config.Cycles)
	fmt.Fprintln(s.out, "Type text to transmit it. /help lists commands.")
	fmt.Fprintln(s.out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		if err := s.Execute(ctx, line); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

var errQuit = fmt.Errorf("quit")

// Execute runs one input line. Lines not starting with "/" are transmitted.
func (s *Shell) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return s.send(ctx, line)
	}

	parts := strings.Fields(line)
	args := parts[1:]
	switch parts[0] {
	case "/quit", "/exit", "/q":
		return errQuit
	case "/help", "/h":
		s.printHelp()
	case "/send":
		text := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
		if text == "" {
			return fmt.Errorf("usage: /send <text>")
		}
		return s.send(ctx, text)
	case "/measure":
		s.printMeasure()
	case "/entangle":
		return s.entangle(args)
	case "/reset":
		s.link.Reset()
		fmt.Fprintln(s.out, "Both agents reset to their reference state.")
	case "/cycles":
		return s.setCycles(args)
	case "/mode":
		return s.setMode(args)
	case "/session":
		return s.handleSession(ctx, args)
	default:
		return fmt.Errorf("unknown command: %s", parts[0])
	}
	return nil
}

func (s *Shell) send(ctx context.Context, text string) error {
	spin := spinner.NewWithConfig(spinner.Config{
		Message:     fmt.Sprintf("[%s] transmitting", s.sender.Name()),
		Writer:      s.out,
		ShowElapsed: true,
		HideCursor:  true,
	})
	if s.opts.Config.Cycles > 0 {
		spin.Start()
	}
	out, err := s.link.Transmit(ctx, text)
	spin.Stop()
	if s.session != nil {
		s.session.AddTransmission(s.opts.Mode, out)
	}
	if err != nil {
		return err
	}

	status := "ok"
	if !out.Success {
		status = "FAILED"
	}
	fmt.Fprintf(s.out, "[%s] %s\n", s.receiver.Name(), out.Decoded)
	fmt.Fprintf(s.out, "  %s: %d chunk(s), %s payload, %d/%d bit errors (BER %.4f)\n",
		status, out.Report.Chunks, out.Report.PayloadType, out.BitErrors, out.FrameBits, out.BitErrorRate())
	if out.Error != "" {
		fmt.Fprintf(s.out, "  error: %s\n", out.Error)
	}
	return nil
}

func (s *Shell) printMeasure() {
	row := func(name string, m metrics.Snapshot) {
		fmt.Fprintf(s.out, "  %-10s resonance %.4f  entropy %.4f  coherence %.4f  (%s)\n",
			name, m.Resonance, m.Entropy, m.Coherence, session.ComputeResonanceStatus(m.Resonance))
	}
	row(s.sender.Name(), s.sender.Measure())
	row(s.receiver.Name(), s.receiver.Measure())
}

func (s *Shell) entangle(args []string) error {
	strength := 0.5
	if len(args) > 0 {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil || v < 0 || v > 1 {
			return fmt.Errorf("strength must be a number in [0, 1]: %q", args[0])
		}
		strength = v
	}
	coupling.Entangle(s.sender.State(), s.receiver.State(), strength)
	fmt.Fprintf(s.out, "Entangled at strength %.2f; coupling resonance %.4f\n",
		strength, metrics.ResonanceStrength(s.sender.State(), s.receiver.State()))
	return nil
}

func (s *Shell) setCycles(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "Cycles: %d\n", s.opts.Config.Cycles)
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return fmt.Errorf("cycles must be a non-negative integer: %q", args[0])
	}
	s.opts.Config.Cycles = n
	s.rebuild()
	fmt.Fprintf(s.out, "Cycles set to %d\n", n)
	return nil
}

func (s *Shell) setMode(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "Mode: %s\n", s.opts.Mode)
		return nil
	}
	m, err := link.ParseMode(args[0])
	if err != nil {
		return err
	}
	s.opts.Mode = m
	s.rebuild()
	fmt.Fprintf(s.out, "Mode set to %s\n", m)
	return nil
}

func (s *Shell) handleSession(ctx context.Context, args []string) error {
	if s.session == nil {
		return fmt.Errorf("no session is recording")
	}
	if len(args) == 0 {
		st := s.session.Stats()
		fmt.Fprintf(s.out, "Session %s (%s)\n", s.session.Name, s.session.ID)
		fmt.Fprintf(s.out, "  transmissions: %d (%d ok, %.0f%%)\n", st.TransmissionCount, st.SuccessCount, st.SuccessRate*100)
		fmt.Fprintf(s.out, "  bit error rate: %.4f\n", st.BitErrorRate)
		fmt.Fprintf(s.out, "  measurements: %d (%d corrected)\n", st.MeasurementCount, st.CorrectedCount)
		if st.MeasurementCount > 0 {
			fmt.Fprintf(s.out, "  avg receiver resonance %.4f  entropy %.4f  coherence %.4f\n",
				st.AvgResonance, st.AvgEntropy, st.AvgCoherence)
		}
		return nil
	}

	switch args[0] {
	case "export":
		dir, err := s.session.Export()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Exported to %s\n", dir)
	case "save":
		if s.store == nil {
			return fmt.Errorf("no store configured")
		}
		if err := s.store.SaveSession(ctx, s.session); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Saved to %s\n", s.store.Path())
	default:
		return fmt.Errorf("usage: /session [export|save]")
	}
	return nil
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, "Commands:")
	fmt.Fprintln(s.out, "  <text>              - Transmit text from sender to receiver")
	fmt.Fprintln(s.out, "  /send <text>        - Same as typing text")
	fmt.Fprintln(s.out, "  /measure            - Show resonance, entropy and coherence of both agents")
	fmt.Fprintln(s.out, "  /entangle [s]       - Blend the two states at strength s (default 0.5)")
	fmt.Fprintln(s.out, "  /reset              - Reset both agents to their reference state")
	fmt.Fprintln(s.out, "  /cycles [n]         - Show or set coupling cycles per frame")
	fmt.Fprintln(s.out, "  /mode [m]           - Show or set mode: direct, entangled, resonance")
	fmt.Fprintln(s.out, "  /session [export|save] - Show session stats, export files or save to the store")
	fmt.Fprintln(s.out, "  /quit               - Exit")
}
