package cli

import (
	"fmt"
	"os"

	"github.com/berrythewa/bandman/internal/client"
	"github.com/berrythewa/bandman/internal/config"
	"github.com/berrythewa/bandman/internal/console"
	"github.com/berrythewa/bandman/pkg/format"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	// Flags for bandman
	clientHost       string
	clientPort       int
	reconnectTimeout string
	maxAttempts      int
	historyFile      string
)

func newClientCmd() *cobra.Command {
	root := newRoot("bandman", applyClientFlags)
	root.Short = "bandman is the console for a bandmand collection server"
	root.Long = `bandman reads commands from the terminal or from piped input, sends
them to bandmand and prints the answers. Type 'help' once connected for
the list of commands. 'execute_script <file>' runs the commands of a file,
scripts may call other scripts but never themselves.

Unless --log-level or a log file is configured, only warnings are logged
so the console stays readable.`
	root.Args = cobra.NoArgs
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return runClient(cmd)
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&clientHost, "host", "H", "", "Server host")
	flags.IntVarP(&clientPort, "port", "p", 0, "Server port")
	flags.StringVarP(&reconnectTimeout, "reconnect-timeout", "t", "", "Pause between connection attempts, e.g. 5s or 500 (milliseconds)")
	flags.IntVarP(&maxAttempts, "max-attempts", "a", 0, "Connection attempts before giving up")
	flags.StringVar(&historyFile, "history", "", "Line editor history file")
	return root
}

func applyClientFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Client.Host = clientHost
	}
	if flags.Changed("port") {
		cfg.Client.Port = clientPort
	}
	if flags.Changed("reconnect-timeout") {
		cfg.Client.ReconnectTimeout = reconnectTimeout
	}
	if flags.Changed("max-attempts") {
		cfg.Client.MaxAttempts = maxAttempts
	}
	if flags.Changed("history") {
		cfg.Client.HistoryFile = historyFile
	}
	if !flags.Changed("log-level") && cfg.Log.File == "" && os.Getenv("BANDMAN_LOG_LEVEL") == "" {
		cfg.Log.Level = "warn"
	}
}

func runClient(cmd *cobra.Command) error {
	if err := cfg.ValidateClient(); err != nil {
		return fmt.Errorf("invalid client configuration: %w", err)
	}

	stdout := os.Stdout
	opts := format.DefaultOptions()
	opts.UseColors = cfg.Colors && term.IsTerminal(int(stdout.Fd()))
	out := format.NewPrinter(stdout, opts)

	backoff, err := client.ParseBackoff(cfg.Client.ReconnectTimeout)
	if err != nil {
		logger.Warn("Invalid reconnect timeout, retrying immediately",
			zap.String("value", cfg.Client.ReconnectTimeout), zap.Error(err))
		out.Warnln(fmt.Sprintf("Reconnect timeout '%s' is invalid. Reconnection attempts will be made immediately.", cfg.Client.ReconnectTimeout))
	}
	dialTimeout, _ := config.ParseTimeout(cfg.Client.DialTimeout)
	ioTimeout, _ := config.ParseTimeout(cfg.Client.IOTimeout)

	con := console.New(console.Config{
		Input:   console.NewLineEditor(cfg.Client.HistoryFile, stdout),
		Printer: out,
		Logger:  logger.Named("console"),
	})
	defer con.Close()

	session := client.NewSession(client.Config{
		Host:             cfg.Client.Host,
		Port:             cfg.Client.Port,
		ReconnectTimeout: backoff,
		MaxAttempts:      cfg.Client.MaxAttempts,
		DialTimeout:      dialTimeout,
		IOTimeout:        ioTimeout,
		Logger:           logger.Named("session"),
		Printer:          out,
	})

	logger.Debug("Starting console session",
		zap.String("host", cfg.Client.Host),
		zap.Int("port", cfg.Client.Port),
		zap.Duration("reconnect_timeout", backoff),
		zap.Int("max_attempts", cfg.Client.MaxAttempts))

	return session.Run(cmd.Context(), con)
}
