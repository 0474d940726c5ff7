package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/berrythewa/bandman/internal/collection"
	"github.com/berrythewa/bandman/internal/commands"
	"github.com/berrythewa/bandman/internal/ipc"
	"github.com/berrythewa/bandman/pkg/format"
	"go.uber.org/zap"
)

// Handler turns one decoded request into one response.
type Handler interface {
	Dispatch(req *ipc.Request) ipc.Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(req *ipc.Request) ipc.Response

func (f HandlerFunc) Dispatch(req *ipc.Request) ipc.Response {
	return f(req)
}

type commandFunc func(req *ipc.Request) (ipc.Response, error)

// DispatcherConfig holds configuration for the request dispatcher
type DispatcherConfig struct {
	Registry *commands.Registry
	Store    *collection.Store
	Logger   *zap.Logger
	Format   format.Options
	AutoSave bool // persist after every mutating command
}

// Dispatcher executes requests against the command registry and the
// collection. Every failure becomes an ERROR response.
type Dispatcher struct {
	registry *commands.Registry
	store    *collection.Store
	logger   *zap.Logger
	text     *format.Formatter
	autoSave bool
	commands map[string]commandFunc
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Registry == nil {
		cfg.Registry = commands.NewDefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	d := &Dispatcher{
		registry: cfg.Registry,
		store:    cfg.Store,
		logger:   cfg.Logger,
		text:     format.New(cfg.Format),
		autoSave: cfg.AutoSave,
	}
	d.commands = map[string]commandFunc{
		commands.Add:                   d.add,
		commands.Clear:                 d.clear,
		commands.ExecuteScript:         d.executeScript,
		commands.Exit:                  d.exit,
		commands.FilterLessThanMembers: d.filterLessThanParticipants,
		commands.GroupByEstablishment:  d.groupByEstablishment,
		commands.Help:                  d.help,
		commands.HistoryCmd:            d.history,
		commands.Info:                  d.info,
		commands.PrintDatesDescending:  d.printDatesDescending,
		commands.RemoveAt:              d.removeAt,
		commands.RemoveByID:            d.removeByID,
		commands.Save:                  d.save,
		commands.ServerExit:            d.serverExit,
		commands.Show:                  d.show,
		commands.Shuffle:               d.shuffle,
		commands.Update:                d.update,
	}
	return d
}

// Dispatch validates the request, records it in the history and runs it.
func (d *Dispatcher) Dispatch(req *ipc.Request) (resp ipc.Response) {
	if req.IsEmpty() {
		return ipc.Failure("Empty request.")
	}

	res := d.registry.Validate(req.Command, req.Argument, req.Form != nil)
	if res.Recognized() {
		d.registry.Record(res.Name)
	}
	if !res.OK() {
		d.logger.Debug("Request rejected", zap.String("command", req.Command), zap.String("reason", res.Message))
		return ipc.Failure(res.Message)
	}

	run, ok := d.commands[res.Name]
	if !ok {
		return ipc.Failure(fmt.Sprintf("Command '%s' is not available on this server.", res.Name))
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Command panicked", zap.String("command", res.Name), zap.Any("panic", r))
			resp = ipc.Failure(fmt.Sprintf("Internal error while executing '%s'.", res.Name))
		}
	}()

	start := time.Now()
	resp, err := run(req)
	if err != nil {
		d.logger.Debug("Command failed", zap.String("command", res.Name), zap.Error(err))
		return ipc.Failure(capitalize(err.Error()) + ".")
	}
	d.logger.Debug("Command executed",
		zap.String("command", res.Name),
		zap.String("code", string(resp.Code)),
		zap.Duration("took", time.Since(start)))
	return resp
}

func (d *Dispatcher) add(req *ipc.Request) (ipc.Response, error) {
	band, err := d.store.Add(req.Form)
	if err != nil {
		return ipc.Response{}, err
	}
	return d.mutated(fmt.Sprintf("Band %s added to the collection.", band.String())), nil
}

func (d *Dispatcher) update(req *ipc.Request) (ipc.Response, error) {
	id, err := parseID(req.Argument)
	if err != nil {
		return ipc.Response{}, err
	}
	band, err := d.store.Update(id, req.Form)
	if err != nil {
		return ipc.Response{}, err
	}
	return d.mutated(fmt.Sprintf("Band %s updated.", band.String())), nil
}

func (d *Dispatcher) removeByID(req *ipc.Request) (ipc.Response, error) {
	id, err := parseID(req.Argument)
	if err != nil {
		return ipc.Response{}, err
	}
	if err := d.store.RemoveByID(id); err != nil {
		return ipc.Response{}, err
	}
	return d.mutated(fmt.Sprintf("Band #%d removed.", id)), nil
}

func (d *Dispatcher) removeAt(req *ipc.Request) (ipc.Response, error) {
	index, err := strconv.Atoi(strings.TrimSpace(req.Argument))
	if err != nil {
		return ipc.Response{}, fmt.Errorf("index must be an integer, got '%s'", req.Argument)
	}
	if err := d.store.RemoveAt(index); err != nil {
		return ipc.Response{}, err
	}
	return d.mutated(fmt.Sprintf("Band at position %d removed.", index)), nil
}

func (d *Dispatcher) clear(*ipc.Request) (ipc.Response, error) {
	if err := d.store.Clear(); err != nil {
		return ipc.Response{}, err
	}
	return d.mutated("Collection cleared."), nil
}

func (d *Dispatcher) shuffle(*ipc.Request) (ipc.Response, error) {
	if err := d.store.Shuffle(); err != nil {
		return ipc.Response{}, err
	}
	return d.mutated("Collection shuffled."), nil
}

func (d *Dispatcher) show(*ipc.Request) (ipc.Response, error) {
	bands := d.store.List()
	if len(bands) == 0 {
		return ipc.OK("Collection is empty."), nil
	}
	return ipc.OK(d.text.Bands(bands)), nil
}

func (d *Dispatcher) info(*ipc.Request) (ipc.Response, error) {
	info := d.store.Info()
	saved := "never"
	if !info.SaveTime.IsZero() {
		saved = info.SaveTime.Format(time.DateTime) + " (" + format.FormatRelativeTime(info.SaveTime) + ")"
	}
	return ipc.OK(d.text.Table([][2]string{
		{"Type", info.Type},
		{"Elements", strconv.Itoa(info.Count)},
		{"Initialized", info.InitTime.Format(time.DateTime)},
		{"Last saved", saved},
		{"Storage", info.Storage},
	})), nil
}

func (d *Dispatcher) filterLessThanParticipants(req *ipc.Request) (ipc.Response, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(req.Argument), 10, 64)
	if err != nil || n <= 0 {
		return ipc.Response{}, fmt.Errorf("number of participants must be a positive integer, got '%s'", req.Argument)
	}
	bands := d.store.FilterLessThanParticipants(n)
	if len(bands) == 0 {
		return ipc.OK(fmt.Sprintf("No bands with fewer than %d participants.", n)), nil
	}
	return ipc.OK(d.text.Bands(bands)), nil
}

func (d *Dispatcher) groupByEstablishment(*ipc.Request) (ipc.Response, error) {
	groups := d.store.GroupByEstablishmentDate()
	if len(groups) == 0 {
		return ipc.OK("Collection is empty."), nil
	}
	rows := make([][2]string, len(groups))
	for i, g := range groups {
		rows[i] = [2]string{g.Date.Format(time.DateOnly), strconv.Itoa(g.Count)}
	}
	return ipc.OK(d.text.Table(rows)), nil
}

func (d *Dispatcher) printDatesDescending(*ipc.Request) (ipc.Response, error) {
	dates := d.store.EstablishmentDatesDescending()
	if len(dates) == 0 {
		return ipc.OK("Collection is empty."), nil
	}
	lines := make([]string, len(dates))
	for i, date := range dates {
		lines[i] = date.Format(time.DateOnly)
	}
	return ipc.OK(strings.Join(lines, "\n")), nil
}

func (d *Dispatcher) history(*ipc.Request) (ipc.Response, error) {
	names := d.registry.History()
	lines := make([]string, 0, len(names)+1)
	lines = append(lines, d.text.Notice(fmt.Sprintf("Last %d commands:", len(names))))
	for i, name := range names {
		lines = append(lines, fmt.Sprintf("%2d. %s", i+1, name))
	}
	return ipc.OK(strings.Join(lines, "\n")), nil
}

func (d *Dispatcher) help(*ipc.Request) (ipc.Response, error) {
	descriptors := d.registry.Descriptors()
	rows := make([][2]string, len(descriptors))
	for i, desc := range descriptors {
		rows[i] = [2]string{desc.Synopsis(), desc.Description}
	}
	return ipc.OK(d.text.Table(rows)), nil
}

func (d *Dispatcher) executeScript(req *ipc.Request) (ipc.Response, error) {
	return ipc.OK(fmt.Sprintf("Executing script '%s'...", strings.TrimSpace(req.Argument))), nil
}

func (d *Dispatcher) save(*ipc.Request) (ipc.Response, error) {
	if err := d.store.Save(); err != nil {
		return ipc.Response{}, fmt.Errorf("failed to save collection: %w", err)
	}
	return ipc.OK(d.text.Success("Collection saved.")), nil
}

func (d *Dispatcher) exit(*ipc.Request) (ipc.Response, error) {
	body := "Session closed."
	if err := d.store.Save(); err != nil {
		d.logger.Warn("Failed to save collection on client exit", zap.Error(err))
		body += "\n" + d.text.Warning("Collection was not saved: "+err.Error())
	}
	return ipc.OK(body), nil
}

func (d *Dispatcher) serverExit(*ipc.Request) (ipc.Response, error) {
	body := "Server is shutting down."
	if err := d.store.Save(); err != nil {
		d.logger.Warn("Failed to save collection on shutdown", zap.Error(err))
		body += "\n" + d.text.Warning("Collection was not saved: "+err.Error())
	}
	return ipc.Response{Code: ipc.CodeServerExit, Body: body}, nil
}

// mutated builds the response of a command that changed the collection,
// persisting it first when autosave is on.
func (d *Dispatcher) mutated(body string) ipc.Response {
	body = d.text.Success(body)
	if !d.autoSave {
		return ipc.OK(body)
	}
	if err := d.store.Save(); err != nil {
		d.logger.Warn("Autosave failed", zap.Error(err))
		body += "\n" + d.text.Warning("Collection was not saved: "+err.Error())
	}
	return ipc.OK(body)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("id must be a positive integer, got '%s'", arg)
	}
	return id, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
