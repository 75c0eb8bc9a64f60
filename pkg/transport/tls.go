//go:build unix

package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/xing15037290/uxmpp-sub000/pkg/ioreactor"
)

const (
	handshakeTimeout = 30 * time.Second
	// writeStallTimeout bounds how long an encrypted record write waits
	// for a full send buffer to drain.
	writeStallTimeout = 30 * time.Second
)

var ErrTLSActive = errors.New("transport: TLS already enabled")

// EnableTLS upgrades the connected socket to TLS as a client. The
// handshake runs on its own goroutine and waits for readiness through
// zero-length reactor operations, so no other operation may be queued on the
// socket until cb runs. cb receives nil once TLS carries all further
// reads and writes.
func (s *Socket) EnableTLS(cfg *tls.Config, cb func(error)) {
	if s.FD() < 0 {
		cb(errors.New("transport: socket not connected"))
		return
	}
	e := &tlsEngine{}
	e.raw = &rawConn{sock: s, closed: make(chan struct{})}
	e.raw.blocking.Store(true)
	e.conn = tls.Client(e.raw, cfg)
	if !s.tls.CompareAndSwap(nil, e) {
		cb(ErrTLSActive)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		defer cancel()
		err := e.conn.HandshakeContext(ctx)
		if err != nil {
			s.tls.CompareAndSwap(e, nil)
			s.log.WithField("fd", s.FD()).Warnf("TLS handshake failed: %v", err)
			cb(errors.Wrap(err, "tls handshake"))
			return
		}
		e.raw.blocking.Store(false)
		e.ready.Store(true)
		state := e.conn.ConnectionState()
		s.log.WithField("fd", s.FD()).Debugf("TLS established: version %x, cipher %x",
			state.Version, state.CipherSuite)
		cb(nil)
	}()
}

// tlsEngine routes socket transfers through crypto/tls once the
// handshake completed.
type tlsEngine struct {
	raw  *rawConn
	conn *tls.Conn

	ready   atomic.Bool
	pending atomic.Bool
}

func (e *tlsEngine) read(p []byte) (int, error) {
	if !e.ready.Load() {
		return 0, unix.EAGAIN
	}
	n, err := e.conn.Read(p)
	if err != nil {
		var wb wouldBlockError
		if errors.As(err, &wb) {
			e.pending.Store(false)
			return 0, unix.EAGAIN
		}
		return n, err
	}
	// More plaintext may sit in the engine without the descriptor
	// turning readable.
	e.pending.Store(n > 0)
	return n, nil
}

func (e *tlsEngine) write(p []byte) (int, error) {
	if !e.ready.Load() {
		return 0, unix.EAGAIN
	}
	return e.conn.Write(p)
}

func (e *tlsEngine) buffered() bool {
	return e.ready.Load() && e.pending.Load()
}

// wouldBlockError is a temporary net.Error; crypto/tls keeps its record
// state intact across it.
type wouldBlockError struct{}

func (wouldBlockError) Error() string   { return "transport: operation would block" }
func (wouldBlockError) Timeout() bool   { return true }
func (wouldBlockError) Temporary() bool { return true }

// rawConn exposes the socket descriptor to crypto/tls. While blocking is
// set, reads and writes that would block wait for a reactor readiness check.
type rawConn struct {
	sock     *Socket
	blocking atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
}

var _ net.Conn = (*rawConn)(nil)

func (c *rawConn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(c.sock.FD(), p)
		switch {
		case err == nil && n == 0 && len(p) > 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case err != unix.EAGAIN && err != unix.EINTR:
			return 0, err
		case !c.blocking.Load():
			return 0, wouldBlockError{}
		}
		if err := c.await(c.sock.reactor.Read); err != nil {
			return 0, err
		}
	}
}

func (c *rawConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(c.sock.FD(), p[written:])
		if err == nil {
			written += n
			continue
		}
		if err != unix.EAGAIN && err != unix.EINTR {
			return written, err
		}
		if c.blocking.Load() {
			err = c.await(c.sock.reactor.Write)
		} else {
			// Called from the reactor worker: a record must be written
			// whole, so wait for the send buffer directly.
			err = c.awaitWritable()
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

type queueFunc func(c ioreactor.Conn, buf []byte, cb ioreactor.Callback) error

// await queues a zero-length operation and blocks until it fires.
func (c *rawConn) await(queue queueFunc) error {
	fired := make(chan error, 1)
	if err := queue(c.sock, nil, func(op *ioreactor.Operation) { fired <- op.Err }); err != nil {
		return err
	}
	select {
	case err := <-fired:
		return err
	case <-c.closed:
		return net.ErrClosed
	}
}

func (c *rawConn) awaitWritable() error {
	fds := []unix.PollFd{{Fd: int32(c.sock.FD()), Events: unix.POLLOUT}}
	for {
		n, err := unix.Poll(fds, int(writeStallTimeout/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("transport: write stalled")
		}
		return nil
	}
}

func (c *rawConn) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Close is called by crypto/tls when a handshake is interrupted. The
// descriptor stays owned by the socket.
func (c *rawConn) Close() error {
	c.close()
	return nil
}

func (c *rawConn) LocalAddr() net.Addr {
	sa, err := unix.Getsockname(c.sock.FD())
	if err != nil {
		return nil
	}
	return tcpAddr(sa)
}

func (c *rawConn) RemoteAddr() net.Addr {
	sa, err := unix.Getpeername(c.sock.FD())
	if err != nil {
		return nil
	}
	return tcpAddr(sa)
}

func tcpAddr(sa unix.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(sa.Addr[:]).To16(), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(sa.Addr[:]), Port: sa.Port}
	}
	return nil
}

func (c *rawConn) SetDeadline(time.Time) error      { return nil }
func (c *rawConn) SetReadDeadline(time.Time) error  { return nil }
func (c *rawConn) SetWriteDeadline(time.Time) error { return nil }
