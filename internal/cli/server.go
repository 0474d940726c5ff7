package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/berrythewa/bandman/internal/collection"
	"github.com/berrythewa/bandman/internal/server"
	"github.com/berrythewa/bandman/internal/storage"
	"github.com/berrythewa/bandman/pkg/format"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for bandmand
	serverHost    string
	serverPort    int
	storagePath   string
	noAutoSave    bool
	detach        bool
	maxFrameBytes int
)

func newServerCmd() *cobra.Command {
	root := newRoot("bandmand", applyServerFlags)
	root.Short = "bandmand serves a band collection to bandman consoles"
	root.Long = `bandmand keeps a collection of music bands in memory and answers
requests from bandman consoles over TCP. The collection is loaded from
the storage file on start and saved on client exit, on 'save', on
'server_exit' and on SIGINT or SIGTERM.

Storage files ending in .db or .bolt use BoltDB, anything else is a
JSON document.`
	root.Args = cobra.NoArgs
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if detach {
			return daemonize()
		}
		return runServer(cmd.Context())
	}

	flags := root.PersistentFlags()
	flags.StringVar(&serverHost, "host", "", "Interface to listen on (default all interfaces)")
	flags.IntVarP(&serverPort, "port", "p", 0, "TCP port to listen on")
	flags.StringVarP(&storagePath, "storage", "s", "", "Collection storage file")
	flags.BoolVar(&noAutoSave, "no-autosave", false, "Only save on exit, 'save' and shutdown")
	flags.IntVar(&maxFrameBytes, "max-frame-size", 0, "Largest accepted request payload in bytes")
	root.Flags().BoolVar(&detach, "detach", false, "Detach from terminal and run in background")

	root.AddCommand(newStopCmd(), newStatusCmd())
	return root
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a server started with --detach",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := stopDetached(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "bandmand stopped")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a detached server is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := detachedStatus()
			if err != nil {
				return err
			}
			if pid == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Status: stopped")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Status: running")
			fmt.Fprintf(cmd.OutOrStdout(), "PID: %d\n", pid)
			return nil
		},
	}
}

func applyServerFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = serverHost
	}
	if flags.Changed("port") {
		cfg.Server.Port = serverPort
	}
	if flags.Changed("storage") {
		cfg.Server.StoragePath = storagePath
	}
	if flags.Changed("no-autosave") {
		cfg.Server.AutoSave = !noAutoSave
	}
	if flags.Changed("max-frame-size") {
		cfg.Server.MaxFrameSize = maxFrameBytes
	}
}

// runServer serves the collection until server_exit or a shutdown signal.
func runServer(ctx context.Context) error {
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Server.StoragePath), 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	st, err := storage.Open(storage.Config{
		Path:   cfg.Server.StoragePath,
		Logger: logger.Named("storage"),
	})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer st.Close()

	store := collection.NewStore(st, logger.Named("collection"))
	if err := store.Load(); err != nil {
		if !errors.Is(err, storage.ErrCorrupt) {
			return fmt.Errorf("failed to load collection: %w", err)
		}
		logger.Warn("Storage is corrupt, continuing with the readable bands",
			zap.String("path", st.Path()), zap.Error(err))
	}

	opts := format.DefaultOptions()
	opts.UseColors = cfg.Colors
	dispatcher := server.NewDispatcher(server.DispatcherConfig{
		Store:    store,
		Logger:   logger.Named("dispatcher"),
		Format:   opts,
		AutoSave: cfg.Server.AutoSave,
	})

	loop, err := server.Listen(server.Config{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Backlog:      cfg.Server.Backlog,
		MaxFrameSize: cfg.Server.MaxFrameSize,
		Logger:       logger.Named("loop"),
	}, dispatcher)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	defer loop.Close()

	logger.Info("Server started",
		zap.String("addr", loop.Addr().String()),
		zap.String("storage", st.Path()),
		zap.Int("bands", store.Len()),
		zap.Bool("autosave", cfg.Server.AutoSave),
		zap.String("version", Version))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		loop.Stop()
	}()

	serveErr := loop.Serve()
	if ctx.Err() != nil {
		logger.Info("Shutdown signal received")
	}

	if err := store.Save(); err != nil {
		logger.Error("Failed to save collection", zap.String("path", st.Path()), zap.Error(err))
		if serveErr == nil {
			serveErr = fmt.Errorf("failed to save collection: %w", err)
		}
	} else {
		logger.Info("Collection saved", zap.String("path", st.Path()), zap.Int("bands", store.Len()))
	}
	return serveErr
}
