package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/berrythewa/bandman/internal/commands"
	"github.com/berrythewa/bandman/internal/ipc"
	"github.com/berrythewa/bandman/pkg/format"
	"go.uber.org/zap"
)

// ErrAttemptsExhausted ends a session whose dial counter reached the limit.
var ErrAttemptsExhausted = errors.New("connection attempts exhausted")

// DialFunc opens a connection to addr.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Console supplies the requests of a session. last is the response to the
// previous request, or nil when that request was not delivered. Next returns
// io.EOF once the operator input is exhausted.
type Console interface {
	Next(last *ipc.Response) (*ipc.Request, error)
}

// Config holds configuration for a client session
type Config struct {
	Host             string
	Port             int
	ReconnectTimeout time.Duration // backoff between dials, negative becomes 0
	MaxAttempts      int
	DialTimeout      time.Duration
	IOTimeout        time.Duration // per request round trip, 0 disables
	MaxFrameSize     int

	Logger  *zap.Logger
	Printer *format.Printer
	Dial    DialFunc
	Sleep   func(ctx context.Context, d time.Duration) error
}

// Session drives the request/response exchange with one server. It holds
// at most one request in flight.
type Session struct {
	cfg      Config
	addr     string
	logger   *zap.Logger
	out      *format.Printer
	attempts int
}

func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Printer == nil {
		cfg.Printer = format.NewPrinter(io.Discard, format.PlainOptions())
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = ipc.DefaultMaxFrameSize
	}
	if cfg.ReconnectTimeout < 0 {
		cfg.Logger.Warn("Negative reconnect timeout, retrying immediately", zap.Duration("timeout", cfg.ReconnectTimeout))
		cfg.Printer.Warnln(fmt.Sprintf("Reconnect timeout '%s' is out of range. Reconnection attempts will be made immediately.", cfg.ReconnectTimeout))
		cfg.ReconnectTimeout = 0
	}
	if cfg.Dial == nil {
		dialer := &net.Dialer{Timeout: cfg.DialTimeout}
		cfg.Dial = dialer.DialContext
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	return &Session{
		cfg:    cfg,
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		logger: cfg.Logger,
		out:    cfg.Printer,
	}
}

// Attempts returns the number of dials made so far.
func (s *Session) Attempts() int {
	return s.attempts
}

// Run connects and exchanges requests until the console is exhausted, the
// operator exits, the server shuts down or the dial limit is reached.
func (s *Session) Run(ctx context.Context, console Console) error {
	defer s.out.Println("Client session has been terminated.")

	for {
		conn, err := s.connect(ctx)
		if err != nil {
			return err
		}

		done, err := s.exchange(ctx, conn, console)
		if err != nil || done {
			return err
		}

		// The immediate reconnect failed; fall back to the backoff loop.
		if err := s.backoff(ctx); err != nil {
			return err
		}
	}
}

// connect dials until it succeeds, sleeping the backoff between failures.
func (s *Session) connect(ctx context.Context) (net.Conn, error) {
	for {
		conn, err := s.dial(ctx)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := s.backoff(ctx); err != nil {
			return nil, err
		}
	}
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	if s.attempts > 0 {
		s.out.Println("Reconnecting to the server...")
	}
	s.attempts++

	conn, err := s.cfg.Dial(ctx, "tcp", s.addr)
	if err != nil {
		s.logger.Debug("Dial failed", zap.String("addr", s.addr), zap.Int("attempt", s.attempts), zap.Error(err))
		s.out.Errorln("The server is currently unavailable. Please try later.")
		return nil, err
	}
	s.logger.Info("Connected to server", zap.String("addr", s.addr), zap.Int("attempt", s.attempts))
	s.out.Successln("Connection to the server has been established.")
	return conn, nil
}

func (s *Session) backoff(ctx context.Context) error {
	if s.attempts >= s.cfg.MaxAttempts {
		s.out.Errorln("Connection attempts have exceeded the limit.")
		return fmt.Errorf("%w after %d dials to %s", ErrAttemptsExhausted, s.attempts, s.addr)
	}
	return s.cfg.Sleep(ctx, s.cfg.ReconnectTimeout)
}

// exchange runs requests over conn. It reports done when the session is
// over, and false when the connection is lost for good.
func (s *Session) exchange(ctx context.Context, conn net.Conn, console Console) (bool, error) {
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	var last *ipc.Response
	for {
		if err := ctx.Err(); err != nil {
			return true, err
		}

		req, err := console.Next(last)
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return true, err
		}
		if req.IsEmpty() {
			last = nil
			continue
		}

		resp, err := s.roundTrip(conn, req)
		if errors.Is(err, ipc.ErrPayload) {
			// The frame was read whole, so the stream is still in sync.
			s.logger.Warn("Unreadable response", zap.String("command", req.Command), zap.Error(err))
			resp = &ipc.Response{Code: ipc.CodeError, Body: "The server response could not be read."}
			err = nil
		}
		if err != nil {
			s.logger.Warn("Connection lost", zap.String("addr", s.addr), zap.String("command", req.Command), zap.Error(err))
			s.out.Errorln("A disconnection from the server occurred.")
			conn.Close()
			conn = nil
			last = nil

			if s.attempts < s.cfg.MaxAttempts {
				conn, err = s.dial(ctx)
			}
			if conn == nil {
				if req.Command == commands.Exit {
					s.out.Println("This command will not be registered on the server.")
					return true, nil
				}
				s.out.Println("Please try later.")
				return false, nil
			}
			// The pending request is never re-sent.
			s.out.Noticeln(fmt.Sprintf("Command '%s' was not delivered.", req.Command))
			continue
		}

		s.show(resp)
		last = resp
		if resp.Code == ipc.CodeServerExit || req.Command == commands.Exit {
			return true, nil
		}
	}
}

func (s *Session) roundTrip(conn net.Conn, req *ipc.Request) (*ipc.Response, error) {
	if s.cfg.IOTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout)); err != nil {
			return nil, err
		}
	}
	if err := ipc.WriteFrame(conn, req); err != nil {
		return nil, err
	}
	payload, err := ipc.ReadFrame(conn, s.cfg.MaxFrameSize)
	if err != nil {
		return nil, err
	}
	resp, err := ipc.DecodeResponse(payload)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Response received", zap.String("command", req.Command), zap.String("code", string(resp.Code)))
	return resp, nil
}

func (s *Session) show(resp *ipc.Response) {
	if resp.Body == "" {
		return
	}
	switch resp.Code {
	case ipc.CodeError:
		s.out.Errorln(resp.Body)
	case ipc.CodeServerExit:
		s.out.Warnln(resp.Body)
	default:
		s.out.Println(resp.Body)
	}
}

// ParseBackoff parses a reconnect interval. Invalid or negative values yield
// zero together with an error the caller reports as a warning.
func ParseBackoff(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		// bare integers are milliseconds
		ms, nerr := strconv.ParseInt(raw, 10, 64)
		if nerr != nil {
			return 0, fmt.Errorf("invalid reconnect timeout %q", raw)
		}
		d = time.Duration(ms) * time.Millisecond
	}
	if d < 0 {
		return 0, fmt.Errorf("reconnect timeout %q is negative", raw)
	}
	return d, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
