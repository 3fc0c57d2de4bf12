// Package spinner shows progress for long-running transmissions and sweeps.
// On a terminal it animates in place; elsewhere it prints plain lines.
package spinner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	hideCursor     = "\033[?25l"
	showCursor     = "\033[?25h"
	carriageReturn = "\r"

	symbolSuccess = "✓"
	symbolFailure = "✗"
)

// CharSet is the sequence of animation frames.
type CharSet []string

var (
	// Braille is the default animation.
	Braille = CharSet{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	// Line works on terminals without Unicode.
	Line = CharSet{"|", "/", "-", "\\"}
)

// Config holds configuration options for a spinner.
type Config struct {
	CharSet     CharSet
	Message     string
	RefreshRate time.Duration // default 80ms
	ShowElapsed bool
	Writer      io.Writer // default os.Stderr
	HideCursor  bool

	// IsTTY overrides terminal detection on Writer.
	IsTTY *bool
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CharSet:     Braille,
		Message:     "Working",
		RefreshRate: 80 * time.Millisecond,
		ShowElapsed: true,
		Writer:      os.Stderr,
		HideCursor:  true,
	}
}

// Spinner displays an animated status line.
type Spinner struct {
	mu sync.Mutex

	config    Config
	isTTY     bool
	active    bool
	startTime time.Time
	frame     int
	stopCh    chan struct{}
	doneCh    chan struct{}

	done, total int

	// lastOutput is the width of the last rendered line, for clearing.
	lastOutput int
}

// New creates a spinner with the default configuration and message.
func New(message string) *Spinner {
	cfg := DefaultConfig()
	cfg.Message = message
	return NewWithConfig(cfg)
}

// NewWithConfig creates a spinner. Zero fields take defaults.
func NewWithConfig(config Config) *Spinner {
	if len(config.CharSet) == 0 {
		config.CharSet = Braille
	}
	if config.RefreshRate == 0 {
		config.RefreshRate = 80 * time.Millisecond
	}
	if config.Writer == nil {
		config.Writer = os.Stderr
	}
	isTTY := IsTerminal(config.Writer)
	if config.IsTTY != nil {
		isTTY = *config.IsTTY
	}
	return &Spinner{config: config, isTTY: isTTY}
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
func IsTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// Message returns the current message.
func (s *Spinner) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Message
}

// IsActive reports whether the spinner is running.
func (s *Spinner) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// IsTTY reports whether the spinner animates.
func (s *Spinner) IsTTY() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isTTY
}

// Start begins the animation. Starting a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return
	}
	s.active = true
	s.startTime = time.Now()
	s.frame = 0
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	if !s.isTTY {
		fmt.Fprintf(s.config.Writer, "%s...\n", s.config.Message)
		return
	}
	if s.config.HideCursor {
		fmt.Fprint(s.config.Writer, hideCursor)
	}
	go s.spin()
}

func (s *Spinner) spin() {
	ticker := time.NewTicker(s.config.RefreshRate)
	defer ticker.Stop()

	s.render()
	for {
		select {
		case <-s.stopCh:
			close(s.doneCh)
			return
		case <-ticker.C:
			s.render()
		}
	}
}

func (s *Spinner) render() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	char := s.config.CharSet[s.frame%len(s.config.CharSet)]
	s.frame++
	s.write(char + " " + s.line())
}

// line is the message with progress and elapsed time. Caller holds mu.
func (s *Spinner) line() string {
	var b strings.Builder
	b.WriteString(s.config.Message)
	if s.total > 0 {
		fmt.Fprintf(&b, " [%d/%d]", s.done, s.total)
	}
	if s.config.ShowElapsed && !s.startTime.IsZero() {
		b.WriteString(" ")
		b.WriteString(FormatElapsed(time.Since(s.startTime)))
	}
	return b.String()
}

// write replaces the current line. Caller holds mu.
func (s *Spinner) write(output string) {
	s.clear()
	fmt.Fprint(s.config.Writer, output)
	s.lastOutput = len(output)
}

// clear blanks the current line. Caller holds mu.
func (s *Spinner) clear() {
	if s.lastOutput > 0 {
		fmt.Fprint(s.config.Writer, carriageReturn+strings.Repeat(" ", s.lastOutput)+carriageReturn)
		s.lastOutput = 0
	}
}

// Stop halts the animation and clears the line. It blocks until the
// animation goroutine exits. Stopping an idle spinner is a no-op.
func (s *Spinner) Stop() {
	s.finish()
}

// Update changes the message.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Message = message
}

// Progress sets the completed/total counter shown after the message. In
// non-TTY mode each update prints a line.
func (s *Spinner) Progress(done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done, s.total = done, total
	if s.active && !s.isTTY {
		fmt.Fprintln(s.config.Writer, s.line())
	}
}

// Success stops the spinner and prints a success line.
func (s *Spinner) Success(message string) {
	s.complete(message, symbolSuccess)
}

// Fail stops the spinner and prints a failure line.
func (s *Spinner) Fail(message string) {
	s.complete(message, symbolFailure)
}

func (s *Spinner) complete(message, symbol string) {
	elapsed := s.finish()

	s.mu.Lock()
	defer s.mu.Unlock()
	if message == "" {
		message = s.config.Message
	}
	if s.config.ShowElapsed && elapsed > 0 {
		fmt.Fprintf(s.config.Writer, "%s %s %s\n", symbol, message, FormatElapsed(elapsed))
		return
	}
	fmt.Fprintf(s.config.Writer, "%s %s\n", symbol, message)
}

// finish stops the animation and returns how long the spinner ran.
func (s *Spinner) finish() time.Duration {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return 0
	}
	s.active = false
	elapsed := time.Since(s.startTime)
	if !s.isTTY {
		s.mu.Unlock()
		return elapsed
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh

	s.mu.Lock()
	s.clear()
	if s.config.HideCursor {
		fmt.Fprint(s.config.Writer, showCursor)
	}
	s.mu.Unlock()
	return elapsed
}

// FormatElapsed renders a duration as "(1.2s)" or "(1m 30s)".
func FormatElapsed(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("(%.1fs)", d.Seconds())
	}
	return fmt.Sprintf("(%dm %ds)", int(d.Minutes()), int(d.Seconds())%60)
}
