package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/berrythewa/bandman/internal/collection"
	"github.com/berrythewa/bandman/internal/commands"
	"github.com/berrythewa/bandman/internal/ipc"
	"github.com/berrythewa/bandman/internal/storage"
	"github.com/berrythewa/bandman/internal/types"
	"github.com/berrythewa/bandman/pkg/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func bandForm(name string, participants int64) *types.BandForm {
	established := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	return &types.BandForm{
		Name:                 name,
		Coordinates:          &types.Coordinates{X: 0, Y: 0},
		NumberOfParticipants: &participants,
		EstablishmentDate:    &established,
		Studio:               &types.Studio{Address: "Düsseldorf"},
	}
}

func newTestDispatcher(t *testing.T, autoSave bool) (*Dispatcher, *collection.Store, storage.Storage) {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bands.json")})
	require.NoError(t, err)
	store := collection.NewStore(st, zap.NewNop())
	require.NoError(t, store.Load())

	d := NewDispatcher(DispatcherConfig{
		Registry: commands.NewDefaultRegistry(),
		Store:    store,
		Logger:   zap.NewNop(),
		Format:   format.PlainOptions(),
		AutoSave: autoSave,
	})
	return d, store, st
}

func TestDispatchShapeErrors(t *testing.T) {
	d, _, _ := newTestDispatcher(t, false)

	tests := []struct {
		name string
		req  ipc.Request
		want string
	}{
		{name: "unknown", req: ipc.Request{Command: "dance"}, want: "Command 'dance' not found. Use command 'help' for advice."},
		{name: "argument on none", req: ipc.Request{Command: "show", Argument: "1"}, want: "Usage: 'show'"},
		{name: "missing form", req: ipc.Request{Command: "add"}, want: "Usage: 'add {element}'"},
		{name: "missing argument", req: ipc.Request{Command: "update", Form: bandForm("x", 1)}, want: "Usage: 'update <id> {element}'"},
		{name: "unexpected form", req: ipc.Request{Command: "remove_by_id", Argument: "1", Form: bandForm("x", 1)}, want: "Usage: 'remove_by_id <id>'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := d.Dispatch(&tt.req)
			assert.Equal(t, ipc.CodeError, resp.Code)
			assert.Equal(t, tt.want, resp.Body)
		})
	}

	assert.Equal(t, "Empty request.", d.Dispatch(&ipc.Request{}).Body)
	assert.Equal(t, ipc.CodeError, d.Dispatch(&ipc.Request{Argument: "1"}).Code)
}

func TestDispatchRecordsRecognizedCommands(t *testing.T) {
	d, _, _ := newTestDispatcher(t, false)

	d.Dispatch(&ipc.Request{Command: "show"})
	d.Dispatch(&ipc.Request{Command: "dance"})
	d.Dispatch(&ipc.Request{Command: "add"}) // usage error is still recorded
	d.Dispatch(&ipc.Request{Command: "r_id", Argument: "5"})

	resp := d.Dispatch(&ipc.Request{Command: "history"})
	require.Equal(t, ipc.CodeOK, resp.Code)
	assert.Equal(t, "Last 4 commands:\n 1. history\n 2. remove_by_id\n 3. add\n 4. show", resp.Body)
}

func TestDispatchCollectionCommands(t *testing.T) {
	d, store, _ := newTestDispatcher(t, false)

	resp := d.Dispatch(&ipc.Request{Command: "add", Form: bandForm("Kraftwerk", 4)})
	require.Equal(t, ipc.CodeOK, resp.Code, resp.Body)
	assert.Equal(t, "Band #1 Kraftwerk added to the collection.", resp.Body)

	resp = d.Dispatch(&ipc.Request{Command: "фвв", Form: bandForm("Neu!", 2)})
	require.Equal(t, ipc.CodeOK, resp.Code, resp.Body)
	assert.Equal(t, 2, store.Len())

	resp = d.Dispatch(&ipc.Request{Command: "update", Argument: "2", Form: &types.BandForm{Name: "La Düsseldorf"}})
	require.Equal(t, ipc.CodeOK, resp.Code, resp.Body)
	band, err := store.Get(2)
	require.NoError(t, err)
	assert.Equal(t, "La Düsseldorf", band.Name)

	resp = d.Dispatch(&ipc.Request{Command: "filter_less_than_number_of_participants", Argument: "3"})
	require.Equal(t, ipc.CodeOK, resp.Code)
	assert.Contains(t, resp.Body, "La Düsseldorf")
	assert.NotContains(t, resp.Body, "Kraftwerk")

	resp = d.Dispatch(&ipc.Request{Command: "fltnop", Argument: "1"})
	assert.Equal(t, ipc.CodeOK, resp.Code)
	assert.Equal(t, "No bands with fewer than 1 participants.", resp.Body)

	resp = d.Dispatch(&ipc.Request{Command: "fltnop", Argument: "-1"})
	assert.Equal(t, ipc.CodeError, resp.Code)

	resp = d.Dispatch(&ipc.Request{Command: "gcbed"})
	assert.Equal(t, ipc.CodeOK, resp.Code)
	assert.Equal(t, "1970-01-01: 2", resp.Body)

	resp = d.Dispatch(&ipc.Request{Command: "update", Argument: "99", Form: &types.BandForm{Name: "ghost"}})
	assert.Equal(t, ipc.CodeError, resp.Code)
	assert.Equal(t, "No band with such id: 99.", resp.Body)

	resp = d.Dispatch(&ipc.Request{Command: "remove_by_id", Argument: "abc"})
	assert.Equal(t, ipc.CodeError, resp.Code)

	resp = d.Dispatch(&ipc.Request{Command: "remove_at", Argument: "0"})
	assert.Equal(t, ipc.CodeOK, resp.Code)
	assert.Equal(t, 1, store.Len())

	resp = d.Dispatch(&ipc.Request{Command: "clear"})
	assert.Equal(t, ipc.CodeOK, resp.Code)
	resp = d.Dispatch(&ipc.Request{Command: "clear"})
	assert.Equal(t, ipc.CodeError, resp.Code)

	resp = d.Dispatch(&ipc.Request{Command: "show"})
	assert.Equal(t, "Collection is empty.", resp.Body)
}

func TestDispatchPersistence(t *testing.T) {
	d, _, st := newTestDispatcher(t, true)

	resp := d.Dispatch(&ipc.Request{Command: "add", Form: bandForm("Can", 5)})
	require.Equal(t, ipc.CodeOK, resp.Code)

	saved, err := st.Load()
	require.NoError(t, err)
	assert.Len(t, saved, 1)

	resp = d.Dispatch(&ipc.Request{Command: "save"})
	assert.Equal(t, ipc.CodeOK, resp.Code)

	resp = d.Dispatch(&ipc.Request{Command: "exit"})
	assert.Equal(t, ipc.CodeOK, resp.Code)

	resp = d.Dispatch(&ipc.Request{Command: "server_exit"})
	assert.Equal(t, ipc.CodeServerExit, resp.Code)
}

func TestDispatchInvalidForm(t *testing.T) {
	d, store, _ := newTestDispatcher(t, false)

	bad := bandForm("Far away", 3)
	bad.Coordinates.X = -1000
	resp := d.Dispatch(&ipc.Request{Command: "add", Form: bad})
	assert.Equal(t, ipc.CodeError, resp.Code)
	assert.Equal(t, 0, store.Len())
}

func TestDispatchRecoversFromPanics(t *testing.T) {
	d, _, _ := newTestDispatcher(t, false)
	d.commands[commands.Info] = func(*ipc.Request) (ipc.Response, error) {
		panic("boom")
	}

	resp := d.Dispatch(&ipc.Request{Command: "info"})
	assert.Equal(t, ipc.CodeError, resp.Code)
	assert.Equal(t, "Internal error while executing 'info'.", resp.Body)

	resp = d.Dispatch(&ipc.Request{Command: "help"})
	assert.Equal(t, ipc.CodeOK, resp.Code)
	assert.Contains(t, resp.Body, "update <id> {element}:")
}
