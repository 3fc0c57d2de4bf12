package shell

import (
	"strings"

	"github.com/chzyer/readline"

	"github.com/r3d91ll/chime/pkg/link"
)

// commands is the static list of shell commands (without the / prefix).
var commands = []string{
	"send",
	"measure",
	"entangle",
	"reset",
	"cycles",
	"mode",
	"session",
	"help",
	"quit",
	"exit",
}

// arguments lists the fixed argument values some commands accept.
var arguments = map[string][]string{
	"mode":    {string(link.ModeDirect), string(link.ModeEntangled), string(link.ModeResonance)},
	"session": {"export", "save"},
}

// Completer completes command names and their fixed arguments.
type Completer struct{}

// NewCompleter creates a completer.
func NewCompleter() *Completer { return &Completer{} }

var _ readline.AutoCompleter = (*Completer)(nil)

// Do implements readline.AutoCompleter. It returns candidate suffixes and
// the length of the prefix they complete.
func (c *Completer) Do(line []rune, pos int) (newLine [][]rune, length int) {
	if len(line) == 0 || pos <= 0 {
		return nil, 0
	}
	if pos > len(line) {
		pos = len(line)
	}

	lineStr := string(line[:pos])
	wordStart := findWordStart(lineStr)
	word := lineStr[wordStart:]

	if wordStart == 0 {
		if !strings.HasPrefix(word, "/") {
			return nil, 0
		}
		return complete(commands, strings.TrimPrefix(word, "/"), len(word))
	}

	fields := strings.Fields(lineStr[:wordStart])
	if len(fields) != 1 || !strings.HasPrefix(fields[0], "/") {
		return nil, 0
	}
	values, ok := arguments[strings.TrimPrefix(fields[0], "/")]
	if !ok {
		return nil, 0
	}
	return complete(values, word, len(word))
}

func complete(candidates []string, prefix string, length int) ([][]rune, int) {
	var matches [][]rune
	for _, cand := range candidates {
		if strings.HasPrefix(cand, prefix) {
			matches = append(matches, []rune(cand[len(prefix):]+" "))
		}
	}
	return matches, length
}

// findWordStart returns the index after the last space or tab.
func findWordStart(s string) int {
	return strings.LastIndexAny(s, " \t") + 1
}
