package console

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/berrythewa/bandman/internal/commands"
	"github.com/berrythewa/bandman/internal/ipc"
	"github.com/berrythewa/bandman/internal/script"
	"github.com/berrythewa/bandman/internal/types"
	"github.com/berrythewa/bandman/pkg/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okResp = &ipc.Response{Code: ipc.CodeOK}

func newConsole(input string) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	c := New(Config{
		Input:   NewPipedEditor(strings.NewReader(input), &out),
		Printer: format.NewPrinter(&out, format.PlainOptions()),
	})
	return c, &out
}

func writeScript(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func TestNextRepromptsInteractively(t *testing.T) {
	c, out := newConsole("\n   \ndance\nshow extra\nr_id\nShow\nr_id 4\n")

	req, err := c.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, &ipc.Request{Command: commands.RemoveByID, Argument: "4"}, req)

	text := out.String()
	assert.Contains(t, text, "Command 'dance' not found. Use command 'help' for advice.")
	assert.Contains(t, text, "Usage: 'show'")
	assert.Contains(t, text, "Usage: 'remove_by_id <id>'")
	assert.Contains(t, text, "Command 'Show' not found.")
}

func TestNextResolvesLayoutTypos(t *testing.T) {
	c, _ := newConsole("ырщц\n")
	req, err := c.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, commands.Show, req.Command)
}

func TestNextEndsAfterOneRetry(t *testing.T) {
	c, out := newConsole("")
	_, err := c.Next(nil)
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, out.String(), "An error occurred during command input.")
	assert.Contains(t, out.String(), "Input is exhausted.")
}

// stutterReader yields its lines in order, a nil entry standing for a
// single end of input, and io.EOF for good once they run out.
type stutterReader struct {
	lines []*string
}

func (r *stutterReader) ReadLine(string) (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	if line == nil {
		return "", io.EOF
	}
	return *line, nil
}

func (r *stutterReader) Close() error { return nil }

func TestFormEndOfInputRetriesOnce(t *testing.T) {
	add, name, show := "add", "Wire", "show"
	var out bytes.Buffer
	c := New(Config{
		Input:   &stutterReader{lines: []*string{&add, &name, nil, &show}},
		Printer: format.NewPrinter(&out, format.PlainOptions()),
	})

	req, err := c.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, commands.Show, req.Command)
	assert.Contains(t, out.String(), "An error occurred during command input.")
	assert.NotContains(t, out.String(), "Input is exhausted.")

	out.Reset()
	_, err = c.Next(okResp)
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, out.String(), "An error occurred during command input.")
	assert.Contains(t, out.String(), "Input is exhausted.")
}

func TestFormEndOfInputAfterRetryEnds(t *testing.T) {
	c, out := newConsole("add\nWire\n")
	_, err := c.Next(nil)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, strings.Count(out.String(), "An error occurred during command input."))
	assert.Contains(t, out.String(), "Input is exhausted.")
}

func TestAddFormInteractive(t *testing.T) {
	input := strings.Join([]string{
		"add",
		"",         // empty name
		"Can",      // name
		"-1000",    // x out of range
		"5",        // x
		"7.5",      // y
		"abc",      // participants
		"4",        // participants
		"01-01-68", // bad date
		"1968 01 02",
		"funk", // unknown genre
		"soul",
		"Cologne",
	}, "\n") + "\n"
	c, out := newConsole(input)

	req, err := c.Next(nil)
	require.NoError(t, err)
	require.Equal(t, commands.Add, req.Command)
	require.NotNil(t, req.Form)

	f := req.Form
	assert.Equal(t, "Can", f.Name)
	assert.Equal(t, types.Coordinates{X: 5, Y: 7.5}, *f.Coordinates)
	assert.Equal(t, int64(4), *f.NumberOfParticipants)
	assert.Equal(t, time.Date(1968, 1, 2, 0, 0, 0, 0, time.UTC), *f.EstablishmentDate)
	assert.Equal(t, types.GenreSoul, *f.Genre)
	assert.Equal(t, "Cologne", f.Studio.Address)
	assert.NoError(t, f.ValidateNew())

	text := out.String()
	assert.Contains(t, text, "Name must not be empty.")
	assert.Contains(t, text, "Coordinate X must be greater than -584.")
	assert.Contains(t, text, "Number of participants must be an integer.")
	assert.Contains(t, text, "There is no such genre.")
}

func TestUpdateFormAsksPerField(t *testing.T) {
	input := strings.Join([]string{
		"update 3",
		"+", "Neu!",
		"-",
		"+", "",
		"?", "-",
		"-",
		"-",
	}, "\n") + "\n"
	c, out := newConsole(input)

	req, err := c.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, commands.Update, req.Command)
	assert.Equal(t, "3", req.Argument)

	f := req.Form
	assert.Equal(t, "Neu!", f.Name)
	assert.Nil(t, f.Coordinates)
	assert.Nil(t, f.NumberOfParticipants)
	assert.True(t, f.ClearParticipants)
	assert.Nil(t, f.EstablishmentDate)
	assert.False(t, f.ClearGenre)
	assert.Contains(t, out.String(), "Answer must be either '+' or '-'.")
}

func TestScriptExecution(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "bands.txt",
		"show",
		"",
		"add",
		"Kraftwerk", "1", "2", "4", "1970.01.01", "", "Kling Klang",
		"info",
	)
	c, out := newConsole("execute_script " + path + "\n")

	req, err := c.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, &ipc.Request{Command: commands.ExecuteScript, Argument: path}, req)

	var got []string
	for {
		req, err := c.Next(okResp)
		if err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
		got = append(got, req.Command)
		if req.Command == commands.Add {
			assert.Equal(t, "Kraftwerk", req.Form.Name)
			assert.Nil(t, req.Form.Genre)
		}
	}
	assert.Equal(t, []string{commands.Show, commands.Add, commands.Info}, got)
	assert.Contains(t, out.String(), "$ show\n")
}

func TestScriptAbortedByErrorResponse(t *testing.T) {
	path := writeScript(t, t.TempDir(), "s.txt", "show", "info")
	c, out := newConsole("exs " + path + "\nhelp\n")

	_, err := c.Next(nil)
	require.NoError(t, err)
	req, err := c.Next(okResp)
	require.NoError(t, err)
	assert.Equal(t, commands.Show, req.Command)

	req, err = c.Next(&ipc.Response{Code: ipc.CodeError, Body: "nope"})
	require.NoError(t, err)
	assert.Equal(t, commands.Help, req.Command, "the rest of the script is skipped")
	assert.Contains(t, out.String(), "Script execution aborted.")
}

func TestScriptCycleAbortsStack(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := writeScript(t, dir, "b.txt", "execute_script "+a, "info")
	writeScript(t, dir, "a.txt", "execute_script "+b, "show")

	stack := script.NewStack()
	var out bytes.Buffer
	c := New(Config{
		Input:   NewPipedEditor(strings.NewReader("exs "+a+"\nhistory\n"), &out),
		Printer: format.NewPrinter(&out, format.PlainOptions()),
		Scripts: stack,
	})

	req, err := c.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, commands.ExecuteScript, req.Command)
	assert.Equal(t, 1, stack.Depth())

	req, err = c.Next(okResp)
	require.NoError(t, err)
	assert.Equal(t, b, req.Argument)
	assert.Equal(t, 2, stack.Depth())

	req, err = c.Next(okResp)
	require.NoError(t, err)
	assert.Equal(t, commands.HistoryCmd, req.Command)
	assert.False(t, stack.Active())
	assert.Contains(t, out.String(), "Recursion detected in script file.")
}

func TestScriptMissingFile(t *testing.T) {
	c, out := newConsole("execute_script /does/not/exist.txt\nshow\n")
	req, err := c.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, commands.Show, req.Command)
	assert.Contains(t, out.String(), "Script file not found")
}

func TestScriptInvalidFormAborts(t *testing.T) {
	path := writeScript(t, t.TempDir(), "bad.txt",
		"add",
		"Cluster", "not-a-number", "1", "2", "1971-01-01", "", "Forst",
		"show",
	)
	c, out := newConsole("exs " + path + "\ninfo\n")

	_, err := c.Next(nil)
	require.NoError(t, err)
	req, err := c.Next(okResp)
	require.NoError(t, err)
	assert.Equal(t, commands.Info, req.Command)
	assert.Contains(t, out.String(), "Coordinate X must be a number.")
	assert.Contains(t, out.String(), "Script execution aborted.")
}

func TestScriptEndingInsideFormAborts(t *testing.T) {
	path := writeScript(t, t.TempDir(), "short.txt", "add", "Cluster")
	c, _ := newConsole("exs " + path + "\ninfo\n")

	_, err := c.Next(nil)
	require.NoError(t, err)
	req, err := c.Next(okResp)
	require.NoError(t, err)
	assert.Equal(t, commands.Info, req.Command)
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		line, name, arg string
	}{
		{"show", "show", ""},
		{"  update   7  ", "update", "7"},
		{"execute_script my script.txt", "execute_script", "my script.txt"},
		{"r_id\t3", "r_id", "3"},
		{"", "", ""},
	}
	for _, tt := range tests {
		name, arg := SplitCommand(tt.line)
		assert.Equal(t, tt.name, name, tt.line)
		assert.Equal(t, tt.arg, arg, tt.line)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"1999-12-31", "1999.12.31", "1999/12/31", "1999 12 31", " 1999-12-31 "} {
		got, err := ParseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}
	for _, s := range []string{"", "31-12-1999", "1999-13-01", "yesterday"} {
		_, err := ParseDate(s)
		assert.Error(t, err, s)
	}
}
