//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package server

import (
	"errors"
	"net"

	"go.uber.org/zap"
)

// ErrClosed is returned by Serve on a loop that was already closed.
var ErrClosed = errors.New("server loop is closed")

var errUnsupported = errors.New("server loop is not supported on this platform")

// Config holds configuration for the server loop
type Config struct {
	Addr         string
	Backlog      int
	MaxFrameSize int
	Logger       *zap.Logger
}

// Loop is unavailable on this platform.
type Loop struct{}

func Listen(Config, Handler) (*Loop, error) { return nil, errUnsupported }

func (l *Loop) Addr() *net.TCPAddr { return &net.TCPAddr{} }
func (l *Loop) Stop()              {}
func (l *Loop) Serve() error       { return errUnsupported }
func (l *Loop) Close() error       { return nil }
