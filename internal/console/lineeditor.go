package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const historyLimit = 500

// LineReader supplies operator input one line at a time. ReadLine returns
// io.EOF when the input is exhausted.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// LineEditor reads from a terminal with readline editing and a history file,
// or from piped input with a plain scanner.
type LineEditor struct {
	interactive bool
	rl          *readline.Instance
	scanner     *bufio.Scanner
	out         io.Writer
}

// NewLineEditor inspects stdin and picks the interactive or piped mode.
// historyPath may be empty to keep history in memory only.
func NewLineEditor(historyPath string, out io.Writer) *LineEditor {
	if !term.IsTerminal(int(os.Stdin.Fd())) || os.Getenv("INSIDE_EMACS") != "" {
		return NewPipedEditor(os.Stdin, out)
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            historyPath,
		HistoryLimit:           historyLimit,
		DisableAutoSaveHistory: true,
		Stdout:                 out,
	})
	if err != nil {
		fmt.Fprintf(out, "readline unavailable (%v), using basic input\n", err)
		return NewPipedEditor(os.Stdin, out)
	}
	return &LineEditor{interactive: true, rl: rl, out: out}
}

// NewPipedEditor reads lines from r, writing prompts to out.
func NewPipedEditor(r io.Reader, out io.Writer) *LineEditor {
	return &LineEditor{scanner: bufio.NewScanner(r), out: out}
}

func (le *LineEditor) ReadLine(prompt string) (string, error) {
	if le.interactive {
		le.rl.SetPrompt(prompt)
		line, err := le.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				return "", io.EOF
			}
			return "", err
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			le.rl.SaveToHistory(trimmed)
		}
		return line, nil
	}

	fmt.Fprint(le.out, prompt)
	if !le.scanner.Scan() {
		if err := le.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return le.scanner.Text(), nil
}

// Interactive reports whether input comes from a terminal.
func (le *LineEditor) Interactive() bool {
	return le.interactive
}

func (le *LineEditor) Close() error {
	if le.rl == nil {
		return nil
	}
	err := le.rl.Close()
	le.rl = nil
	return err
}
