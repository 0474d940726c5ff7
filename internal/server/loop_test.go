//go:build linux || darwin || freebsd || netbsd || openbsd

package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/berrythewa/bandman/internal/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// echoHandler answers every request with its own argument.
var echoHandler = HandlerFunc(func(req *ipc.Request) ipc.Response {
	if req.Command == "server_exit" {
		return ipc.Response{Code: ipc.CodeServerExit, Body: "bye"}
	}
	return ipc.OK(req.Command + ":" + req.Argument)
})

func startLoop(t *testing.T, handler Handler) (*Loop, <-chan error) {
	t.Helper()
	l, err := Listen(Config{Addr: "127.0.0.1:0"}, handler)
	require.NoError(t, err)
	require.NotZero(t, l.Addr().Port)

	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		done <- l.Serve()
		close(stopped)
	}()
	t.Cleanup(func() {
		l.Stop()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Error("server loop did not stop")
		}
	})
	return l, done
}

func dial(t *testing.T, l *Loop) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", l.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, c.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { c.Close() })
	return c
}

func roundTrip(t *testing.T, c net.Conn, req ipc.Request) *ipc.Response {
	t.Helper()
	require.NoError(t, ipc.WriteFrame(c, req))
	resp, err := ipc.ReadResponse(c)
	require.NoError(t, err)
	return resp
}

func TestLoopServesConcurrentClients(t *testing.T) {
	l, _ := startLoop(t, echoHandler)

	const clients = 8
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := net.Dial("tcp", l.Addr().String())
			if err != nil {
				errs <- err
				return
			}
			defer c.Close()
			c.SetDeadline(time.Now().Add(5 * time.Second))

			for n := 0; n < 3; n++ {
				arg := fmt.Sprintf("%d-%d", i, n)
				if err := ipc.WriteFrame(c, ipc.Request{Command: "show", Argument: arg}); err != nil {
					errs <- err
					return
				}
				resp, err := ipc.ReadResponse(c)
				if err != nil {
					errs <- err
					return
				}
				if resp.Body != "show:"+arg {
					errs <- fmt.Errorf("client %d got %q", i, resp.Body)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestLoopReassemblesPartialFrames(t *testing.T) {
	l, _ := startLoop(t, echoHandler)
	c := dial(t, l)

	frame, err := ipc.Encode(ipc.Request{Command: "info", Argument: "slow"})
	require.NoError(t, err)
	for _, b := range frame {
		_, err := c.Write([]byte{b})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	resp, err := ipc.ReadResponse(c)
	require.NoError(t, err)
	assert.Equal(t, "info:slow", resp.Body)
}

func TestLoopHandlesPipelinedRequests(t *testing.T) {
	l, _ := startLoop(t, echoHandler)
	c := dial(t, l)

	var batch []byte
	for _, arg := range []string{"a", "b", "c"} {
		frame, err := ipc.Encode(ipc.Request{Command: "show", Argument: arg})
		require.NoError(t, err)
		batch = append(batch, frame...)
	}
	_, err := c.Write(batch)
	require.NoError(t, err)

	for _, arg := range []string{"a", "b", "c"} {
		resp, err := ipc.ReadResponse(c)
		require.NoError(t, err)
		assert.Equal(t, "show:"+arg, resp.Body)
	}
}

func TestLoopDropsClientOnFramingError(t *testing.T) {
	l, _ := startLoop(t, echoHandler)
	bad := dial(t, l)
	good := dial(t, l)

	header := make([]byte, ipc.HeaderSize)
	binary.BigEndian.PutUint32(header, uint32(ipc.DefaultMaxFrameSize+1))
	_, err := bad.Write(header)
	require.NoError(t, err)

	_, err = ipc.ReadResponse(bad)
	assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, ipc.ErrFrame), "unexpected error: %v", err)

	resp := roundTrip(t, good, ipc.Request{Command: "show", Argument: "still here"})
	assert.Equal(t, "show:still here", resp.Body)
}

func TestLoopAnswersMalformedPayload(t *testing.T) {
	l, _ := startLoop(t, echoHandler)
	c := dial(t, l)

	payload := []byte(`{"command":"add","argument":"","form":{"name":"x","unknown":1}}`)
	header := make([]byte, ipc.HeaderSize)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	_, err := c.Write(append(header, payload...))
	require.NoError(t, err)

	resp, err := ipc.ReadResponse(c)
	require.NoError(t, err)
	assert.Equal(t, ipc.CodeError, resp.Code)
	assert.Contains(t, resp.Body, "Malformed request for 'add'")

	resp = roundTrip(t, c, ipc.Request{Command: "show"})
	assert.Equal(t, ipc.CodeOK, resp.Code)
}

func TestLoopStopsAfterServerExit(t *testing.T) {
	l, done := startLoop(t, echoHandler)
	c := dial(t, l)

	resp := roundTrip(t, c, ipc.Request{Command: "server_exit"})
	assert.Equal(t, ipc.CodeServerExit, resp.Code)
	assert.Equal(t, "bye", resp.Body)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server loop kept running after server_exit")
	}

	_, err := net.DialTimeout("tcp", l.Addr().String(), time.Second)
	assert.Error(t, err)
}

func TestLoopStop(t *testing.T) {
	l, done := startLoop(t, echoHandler)
	dial(t, l)

	l.Stop()
	l.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not end Serve")
	}
}

func TestLoopPausesAcceptAfterFailure(t *testing.T) {
	l, err := Listen(Config{Addr: "127.0.0.1:0"}, echoHandler)
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	l.acceptFn = func(int) (int, unix.Sockaddr, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return -1, nil, unix.EMFILE
	}

	done := make(chan error, 1)
	go func() { done <- l.Serve() }()

	// the pending connection keeps the listener readable
	c, err := net.DialTimeout("tcp", l.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer c.Close()

	time.Sleep(350 * time.Millisecond)
	l.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server loop did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, calls, 1)
	assert.LessOrEqual(t, calls, 6)
}
