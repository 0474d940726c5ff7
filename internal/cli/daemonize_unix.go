//go:build !windows

package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/berrythewa/bandman/internal/config"
	"go.uber.org/zap"
)

// daemonize starts bandmand again in a new session with the standard
// streams on /dev/null and writes its PID file.
func daemonize() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %v", err)
	}

	cmd := exec.Command(executable, withoutDetach(os.Args[1:])...)
	cmd.Dir = cwd

	nullDev, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %v", os.DevNull, err)
	}
	defer nullDev.Close()

	cmd.Stdin = nullDev
	cmd.Stdout = nullDev
	cmd.Stderr = nullDev
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	pidFile, err := pidFilePath()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server process: %v", err)
	}

	if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", cmd.Process.Pid)), 0644); err != nil {
		return fmt.Errorf("failed to write pid file: %v", err)
	}

	logger.Info("Server detached", zap.Int("pid", cmd.Process.Pid), zap.String("pid_file", pidFile))
	fmt.Printf("bandmand started in background (PID: %d)\n", cmd.Process.Pid)
	return cmd.Process.Release()
}

func pidFilePath() (string, error) {
	paths, err := config.GetConfigPaths()
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}
	pidDir := filepath.Join(paths.DataDir, "run")
	if err := os.MkdirAll(pidDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create pid directory: %v", err)
	}
	return filepath.Join(pidDir, "bandmand.pid"), nil
}

// withoutDetach drops --detach so the child does not fork again
func withoutDetach(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "--detach" || strings.HasPrefix(arg, "--detach=") {
			continue
		}
		out = append(out, arg)
	}
	return out
}

// readPID returns the PID recorded by a detached server.
func readPID() (int, string, error) {
	pidFile, err := pidFilePath()
	if err != nil {
		return 0, "", err
	}
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, pidFile, fmt.Errorf("failed to read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, pidFile, fmt.Errorf("invalid PID in file: %s", strings.TrimSpace(string(data)))
	}
	return pid, pidFile, nil
}

// stopDetached sends SIGTERM to a detached server, which saves the
// collection before it exits.
func stopDetached() error {
	pid, pidFile, err := readPID()
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop process %d: %w", pid, err)
	}
	logger.Info("Stop signal sent", zap.Int("pid", pid))
	return os.Remove(pidFile)
}

// detachedStatus reports the PID of a running detached server, or 0.
func detachedStatus() (int, error) {
	pid, _, err := readPID()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, nil
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, nil
	}
	return pid, nil
}
