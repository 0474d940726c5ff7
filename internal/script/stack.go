package script

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrCycle is returned when a script is already being executed.
	ErrCycle = errors.New("recursion detected in script file")

	// ErrNotFound is returned when a script file cannot be opened.
	ErrNotFound = errors.New("script file not found")

	// ErrDrained is returned by Next once every source is exhausted.
	ErrDrained = errors.New("script stack is empty")
)

// Opener opens a script source by absolute path.
type Opener func(path string) (io.ReadCloser, error)

// Frame is one active script source.
type Frame struct {
	Path    string // absolute cleaned path, the source identity
	Name    string // name as given by the operator
	Line    int    // number of lines read so far
	scanner *bufio.Scanner
	closer  io.Closer
}

// Stack holds the chain of nested script sources, innermost last.
type Stack struct {
	frames []*Frame
	open   Opener
	// Notify receives operator-facing notices, e.g. a resumed script.
	Notify func(msg string)
}

// NewStack creates an empty stack that opens files from disk.
func NewStack() *Stack {
	return &Stack{
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// NewStackWithOpener creates an empty stack using a custom opener.
func NewStackWithOpener(open Opener) *Stack {
	return &Stack{open: open}
}

// Active reports whether any script is being executed.
func (s *Stack) Active() bool {
	return len(s.frames) > 0
}

func (s *Stack) Depth() int {
	return len(s.frames)
}

// Top returns the innermost frame, or nil.
func (s *Stack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Paths returns the identities of the active sources, outermost first.
func (s *Stack) Paths() []string {
	paths := make([]string, len(s.frames))
	for i, f := range s.frames {
		paths[i] = f.Path
	}
	return paths
}

// Contains reports whether the script at name is already on the stack.
func (s *Stack) Contains(name string) bool {
	path, err := identity(name)
	if err != nil {
		return false
	}
	return s.indexOf(path) >= 0
}

// Push opens the named script and makes it the innermost source.
// On error the stack is left untouched.
func (s *Stack) Push(name string) error {
	name = strings.TrimSpace(name)
	path, err := identity(name)
	if err != nil {
		return fmt.Errorf("%w: '%s': %v", ErrNotFound, name, err)
	}
	if s.indexOf(path) >= 0 {
		return fmt.Errorf("%w: '%s' is already running", ErrCycle, name)
	}

	rc, err := s.open(path)
	if err != nil {
		return fmt.Errorf("%w: '%s': %v", ErrNotFound, name, err)
	}
	s.frames = append(s.frames, &Frame{
		Path:    path,
		Name:    name,
		scanner: bufio.NewScanner(rc),
		closer:  rc,
	})
	return nil
}

// Pop closes and removes the innermost source.
func (s *Stack) Pop() *Frame {
	top := s.Top()
	if top == nil {
		return nil
	}
	top.closer.Close()
	s.frames = s.frames[:len(s.frames)-1]
	return top
}

// Abort closes every source and returns how many were dropped.
func (s *Stack) Abort() int {
	n := len(s.frames)
	for s.Active() {
		s.Pop()
	}
	return n
}

// Next returns the next line of the innermost source. Exhausted sources are
// popped and reading resumes in the enclosing script. ErrDrained is returned
// once the stack is empty.
func (s *Stack) Next() (string, error) {
	for {
		top := s.Top()
		if top == nil {
			return "", ErrDrained
		}
		if top.scanner.Scan() {
			top.Line++
			return top.scanner.Text(), nil
		}
		err := top.scanner.Err()
		s.Pop()
		if err != nil {
			return "", fmt.Errorf("reading script '%s': %w", top.Name, err)
		}
		if s.Notify == nil {
			continue
		}
		if parent := s.Top(); parent != nil {
			s.Notify(fmt.Sprintf("Returning to script '%s'...", parent.Name))
		} else {
			s.Notify(fmt.Sprintf("Script '%s' finished. Returning to interactive input...", top.Name))
		}
	}
}

// ReadLine reads the next line of the innermost source without popping it.
// Forms embedded in a script must end inside the same source.
func (s *Stack) ReadLine() (string, error) {
	top := s.Top()
	if top == nil {
		return "", ErrDrained
	}
	if !top.scanner.Scan() {
		if err := top.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	top.Line++
	return top.scanner.Text(), nil
}

func (s *Stack) indexOf(path string) int {
	for i, f := range s.frames {
		if f.Path == path {
			return i
		}
	}
	return -1
}

func identity(name string) (string, error) {
	if name == "" {
		return "", errors.New("empty file name")
	}
	path, err := filepath.Abs(name)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return filepath.Clean(path), nil
}
