//go:build linux || darwin || freebsd || netbsd || openbsd

package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/berrythewa/bandman/internal/ipc"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	defaultBacklog = 128
	readChunk      = 64 * 1024

	// accept is paused this long after a failure such as EMFILE, since the
	// pending connection keeps the listener readable
	acceptBackoff = 100 * time.Millisecond
)

// ErrClosed is returned by Serve on a loop that was already closed.
var ErrClosed = errors.New("server loop is closed")

// Config holds configuration for the server loop
type Config struct {
	Addr         string // host:port, port 0 picks a free port
	Backlog      int
	MaxFrameSize int
	Logger       *zap.Logger
}

type connState int

const (
	stateReadable connState = iota
	stateWritable
)

func (s connState) String() string {
	if s == stateWritable {
		return "WRITABLE"
	}
	return "READABLE"
}

type conn struct {
	fd    int
	id    string
	peer  string
	state connState
	in    []byte
	out   []byte
	// stop the loop once out has been flushed
	exitAfterFlush bool
}

// Loop multiplexes the listening socket and every client connection on a
// single goroutine using poll(2). Requests are dispatched one at a time.
type Loop struct {
	cfg     Config
	handler Handler
	logger  *zap.Logger

	lfd   int
	addr  *net.TCPAddr
	wake  [2]int // self-pipe, Stop writes to wake[1]
	conns map[int]*conn
	buf   []byte

	acceptFn func(fd int) (int, unix.Sockaddr, error)

	mu      sync.Mutex
	stopped bool
	closed  bool
}

// Listen binds the listening socket. The loop does not accept connections
// until Serve is called.
func Listen(cfg Config, handler Handler) (*Loop, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = defaultBacklog
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = ipc.DefaultMaxFrameSize
	}

	lfd, addr, err := listenTCP(cfg.Addr, cfg.Backlog)
	if err != nil {
		return nil, err
	}

	var wake [2]int
	if err := unix.Pipe(wake[:]); err != nil {
		unix.Close(lfd)
		return nil, fmt.Errorf("failed to create wake pipe: %w", err)
	}
	for _, fd := range wake {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(lfd)
			unix.Close(wake[0])
			unix.Close(wake[1])
			return nil, fmt.Errorf("failed to configure wake pipe: %w", err)
		}
	}

	cfg.Logger.Info("Server listening", zap.String("addr", addr.String()))
	return &Loop{
		cfg:     cfg,
		handler: handler,
		logger:  cfg.Logger,
		lfd:     lfd,
		addr:    addr,
		wake:    wake,
		conns:   make(map[int]*conn),
		buf:     make([]byte, readChunk),

		acceptFn: unix.Accept,
	}, nil
}

// Addr returns the bound listening address.
func (l *Loop) Addr() *net.TCPAddr {
	return l.addr
}

// Stop asks Serve to return. It is safe to call from any goroutine.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || l.closed {
		return
	}
	l.stopped = true
	unix.Write(l.wake[1], []byte{1})
}

// Serve runs the readiness loop until Stop is called or a request produces
// a SERVER_EXIT response. Client failures never end the loop.
func (l *Loop) Serve() error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	defer l.Close()

	var resumeAccept time.Time
	fds := make([]unix.PollFd, 0, 16)
	for {
		listenEvents, timeout := int16(unix.POLLIN), -1
		if wait := time.Until(resumeAccept); wait > 0 {
			listenEvents, timeout = 0, int(wait/time.Millisecond)+1
		}

		fds = fds[:0]
		fds = append(fds,
			unix.PollFd{Fd: int32(l.lfd), Events: listenEvents},
			unix.PollFd{Fd: int32(l.wake[0]), Events: unix.POLLIN},
		)
		for fd, c := range l.conns {
			events := int16(unix.POLLIN)
			if c.state == stateWritable {
				events = unix.POLLOUT
			}
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
		}

		if _, err := unix.Poll(fds, timeout); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll failed: %w", err)
		}

		if fds[1].Revents != 0 {
			l.logger.Info("Server loop stopped")
			return nil
		}
		if fds[0].Revents&unix.POLLIN != 0 && !l.accept() {
			resumeAccept = time.Now().Add(acceptBackoff)
		}

		for _, p := range fds[2:] {
			if p.Revents == 0 {
				continue
			}
			c, ok := l.conns[int(p.Fd)]
			if !ok {
				continue
			}
			if stop := l.service(c, p.Revents); stop {
				l.logger.Info("Server loop stopped by request", zap.String("conn", c.id))
				return nil
			}
		}
	}
}

// Close releases the listening socket and every open connection.
func (l *Loop) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for _, c := range l.conns {
		l.drop(c, "server closing")
	}
	unix.Close(l.lfd)
	unix.Close(l.wake[0])
	unix.Close(l.wake[1])
	return nil
}

// accept takes every pending connection. It reports false when accepting
// failed for a reason that will not clear by itself, e.g. EMFILE.
func (l *Loop) accept() bool {
	for {
		nfd, sa, err := l.acceptFn(l.lfd)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.ECONNABORTED) {
				return true
			}
			l.logger.Warn("Accept failed, pausing", zap.Duration("pause", acceptBackoff), zap.Error(err))
			return false
		}
		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			l.logger.Warn("Failed to make connection non-blocking", zap.Error(err))
			unix.Close(nfd)
			continue
		}

		c := &conn{fd: nfd, id: uuid.NewString(), peer: sockaddrString(sa), state: stateReadable}
		l.conns[nfd] = c
		l.logger.Info("Client connected", zap.String("conn", c.id), zap.String("peer", c.peer))
	}
}

// service advances one connection according to its readiness. It reports
// whether the loop should stop.
func (l *Loop) service(c *conn, revents int16) bool {
	switch c.state {
	case stateReadable:
		if revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			if revents&unix.POLLNVAL != 0 {
				l.drop(c, "invalid descriptor")
			}
			return false
		}
		if !l.read(c) {
			return false
		}
		l.process(c)
		return false

	case stateWritable:
		if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			l.drop(c, "socket error")
			return false
		}
		if revents&(unix.POLLOUT|unix.POLLHUP) == 0 {
			return false
		}
		return l.write(c)
	}
	return false
}

// read drains the socket into the connection buffer. It returns false when
// the connection was dropped.
func (l *Loop) read(c *conn) bool {
	for {
		n, err := unix.Read(c.fd, l.buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return true
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			l.drop(c, "read failed: "+err.Error())
			return false
		}
		if n == 0 {
			l.drop(c, "peer closed")
			return false
		}
		c.in = append(c.in, l.buf[:n]...)
		if len(c.in) >= ipc.HeaderSize+l.cfg.MaxFrameSize || n < len(l.buf) {
			return true
		}
	}
}

// process dispatches the first complete frame buffered on c, if any, and
// switches the connection to WRITABLE.
func (l *Loop) process(c *conn) {
	payload, consumed, err := ipc.SplitFrame(c.in, l.cfg.MaxFrameSize)
	if errors.Is(err, ipc.ErrIncomplete) {
		return
	}
	if err != nil {
		l.drop(c, err.Error())
		return
	}

	req, err := ipc.DecodeRequest(payload)
	c.in = c.in[consumed:]

	var resp ipc.Response
	switch {
	case errors.Is(err, ipc.ErrPayload):
		l.logger.Warn("Malformed request payload", zap.String("conn", c.id), zap.String("command", req.Command), zap.Error(err))
		resp = ipc.Failure(fmt.Sprintf("Malformed request for '%s': %v", req.Command, err))
	case err != nil:
		l.drop(c, err.Error())
		return
	default:
		l.logger.Debug("Dispatching request", zap.String("conn", c.id), zap.String("command", req.Command))
		resp = l.handler.Dispatch(req)
	}

	frame, err := ipc.Encode(resp)
	if err != nil {
		l.logger.Error("Failed to encode response", zap.String("conn", c.id), zap.Error(err))
		frame, _ = ipc.Encode(ipc.Failure("Response could not be encoded."))
	}
	c.out = frame
	c.exitAfterFlush = resp.Code == ipc.CodeServerExit
	c.state = stateWritable
}

// write flushes pending output. Once empty the connection returns to
// READABLE and any already buffered request is processed.
func (l *Loop) write(c *conn) bool {
	for len(c.out) > 0 {
		n, err := unix.Write(c.fd, c.out)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return false
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			l.drop(c, "write failed: "+err.Error())
			return false
		}
		c.out = c.out[n:]
	}

	c.out = nil
	c.state = stateReadable
	if c.exitAfterFlush {
		return true
	}
	l.process(c)
	return false
}

func (l *Loop) drop(c *conn, reason string) {
	if _, ok := l.conns[c.fd]; !ok {
		return
	}
	delete(l.conns, c.fd)
	unix.Close(c.fd)
	l.logger.Info("Client disconnected",
		zap.String("conn", c.id),
		zap.String("peer", c.peer),
		zap.String("reason", reason),
		zap.Stringer("state", c.state))
}

func listenTCP(addr string, backlog int) (int, *net.TCPAddr, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, nil, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := tcpAddr.IP.To4(); tcpAddr.IP == nil || ip4 != nil {
		sa4 := &unix.SockaddrInet4{Port: tcpAddr.Port}
		if ip4 != nil {
			copy(sa4.Addr[:], ip4)
		}
		sa = sa4
	} else {
		family = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(sa6.Addr[:], tcpAddr.IP.To16())
		sa = sa6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, nil, fmt.Errorf("failed to create socket: %w", err)
	}
	unix.CloseOnExec(fd)

	fail := func(step string, err error) (int, *net.TCPAddr, error) {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("failed to %s %s: %w", step, addr, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("configure", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail("listen on", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("configure", err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		return fail("inspect", err)
	}
	return fd, sockaddrTCP(bound), nil
}

func sockaddrTCP(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), a.Addr[:]...)), Port: a.Port}
	default:
		return &net.TCPAddr{}
	}
}

func sockaddrString(sa unix.Sockaddr) string {
	if sa == nil {
		return "unknown"
	}
	return sockaddrTCP(sa).String()
}
