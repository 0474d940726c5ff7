package console

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/berrythewa/bandman/internal/commands"
	"github.com/berrythewa/bandman/internal/ipc"
	"github.com/berrythewa/bandman/internal/script"
	"github.com/berrythewa/bandman/pkg/format"
	"go.uber.org/zap"
)

const (
	commandPrompt = "$ "
	fieldPrompt   = "> "
)

// Config holds configuration for the operator console
type Config struct {
	Registry *commands.Registry
	Input    LineReader
	Printer  *format.Printer
	Scripts  *script.Stack
	Logger   *zap.Logger
}

// Console turns operator input into requests. Lines come from the innermost
// running script, or from the base input once every script is finished.
type Console struct {
	registry *commands.Registry
	input    LineReader
	out      *format.Printer
	scripts  *script.Stack
	logger   *zap.Logger
	retried  bool
}

func New(cfg Config) *Console {
	if cfg.Registry == nil {
		cfg.Registry = commands.NewDefaultRegistry()
	}
	if cfg.Printer == nil {
		cfg.Printer = format.NewPrinter(io.Discard, format.PlainOptions())
	}
	if cfg.Scripts == nil {
		cfg.Scripts = script.NewStack()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c := &Console{
		registry: cfg.Registry,
		input:    cfg.Input,
		out:      cfg.Printer,
		scripts:  cfg.Scripts,
		logger:   cfg.Logger,
	}
	c.scripts.Notify = c.out.Noticeln
	return c
}

// Next returns the next valid request. An ERROR or SERVER_EXIT answer to a
// scripted request aborts every running script first. It returns io.EOF
// when the base input stays exhausted after one retry.
func (c *Console) Next(last *ipc.Response) (*ipc.Request, error) {
	if last != nil && c.scripts.Active() && (last.Code == ipc.CodeError || last.Code == ipc.CodeServerExit) {
		c.abortScripts("the server rejected a scripted command")
	}

	for {
		line, scripted, err := c.nextLine()
		if err != nil {
			return nil, err
		}

		name, argument := SplitCommand(line)
		if name == "" {
			continue
		}

		res := c.registry.Classify(name, argument)
		if !res.OK() {
			c.out.Errorln(res.Message)
			if scripted {
				c.abortScripts("invalid command " + name)
			}
			continue
		}

		req := &ipc.Request{Command: res.Name, Argument: argument}
		switch res.Name {
		case commands.ExecuteScript:
			if err := c.scripts.Push(argument); err != nil {
				c.scriptError(err)
				continue
			}
			c.logger.Debug("Script started", zap.String("script", argument), zap.Int("depth", c.scripts.Depth()))
		case commands.Add, commands.Update:
			b := c.formBuilder(scripted)
			if res.Name == commands.Add {
				req.Form, err = b.New()
			} else {
				req.Form, err = b.Update()
			}
			if err != nil {
				if !scripted && errors.Is(err, io.EOF) {
					if c.exhausted() {
						return nil, io.EOF
					}
					continue
				}
				if scripted {
					c.abortScripts("invalid form in script")
				} else {
					c.out.Errorln("Form input failed: " + err.Error())
				}
				continue
			}
		}
		return req, nil
	}
}

// Close stops every running script and releases the base input.
func (c *Console) Close() error {
	c.scripts.Abort()
	if c.input == nil {
		return nil
	}
	return c.input.Close()
}

// nextLine reports whether the line came from a script.
func (c *Console) nextLine() (string, bool, error) {
	for {
		if c.scripts.Active() {
			line, err := c.scripts.Next()
			if err == nil {
				if strings.TrimSpace(line) != "" {
					c.out.Println(commandPrompt + line)
				}
				return line, true, nil
			}
			if !errors.Is(err, script.ErrDrained) {
				c.scriptError(err)
			}
			continue
		}

		line, err := c.input.ReadLine(commandPrompt)
		if err == nil {
			c.retried = false
			return line, false, nil
		}
		if !errors.Is(err, io.EOF) {
			return "", false, err
		}
		if c.exhausted() {
			return "", false, io.EOF
		}
	}
}

// exhausted handles an end of the base input, in a command or inside a
// form. The first one is reported and retried, the second ends the input.
func (c *Console) exhausted() bool {
	if c.retried {
		c.out.Errorln("Input is exhausted.")
		return true
	}
	c.retried = true
	c.out.Println("")
	c.out.Errorln("An error occurred during command input.")
	return false
}

func (c *Console) formBuilder(scripted bool) *formBuilder {
	read := c.input.ReadLine
	if scripted {
		read = func(string) (string, error) {
			line, err := c.scripts.ReadLine()
			if errors.Is(err, io.EOF) || errors.Is(err, script.ErrDrained) {
				return "", fmt.Errorf("%w: script ended inside a form", errInvalidField)
			}
			return line, err
		}
	}
	return &formBuilder{read: read, out: c.out, script: scripted}
}

func (c *Console) scriptError(err error) {
	switch {
	case errors.Is(err, script.ErrCycle):
		c.out.Errorln("Recursion detected in script file.")
	case errors.Is(err, script.ErrNotFound):
		c.out.Errorln("Script file not found or not readable.")
	default:
		c.out.Errorln(err.Error())
	}
	c.abortScripts(err.Error())
}

func (c *Console) abortScripts(reason string) {
	if n := c.scripts.Abort(); n > 0 {
		c.logger.Debug("Scripts aborted", zap.Int("count", n), zap.String("reason", reason))
		c.out.Errorln("Script execution aborted. Please debug your script.")
	}
}

// SplitCommand splits a line into the command name and its trimmed argument.
func SplitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i:])
}
