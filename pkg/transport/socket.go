//go:build unix

package transport

import (
	"net"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/xing15037290/uxmpp-sub000/pkg/ioreactor"
)

// Socket is a TCP connection with non-blocking connect and optional TLS.
type Socket struct {
	FDConn

	tls atomic.Pointer[tlsEngine]
}

var _ Conn = (*Socket)(nil)

func NewSocket(r *ioreactor.Reactor, log logrus.FieldLogger) *Socket {
	s := &Socket{}
	s.init(r, log, s)
	return s
}

// Connect starts a non-blocking connect to addr. cb is called exactly
// once with the outcome, possibly before Connect returns.
func (s *Socket) Connect(addr *net.TCPAddr, cb func(error)) {
	if s.FD() >= 0 {
		cb(errors.New("transport: socket already connected"))
		return
	}
	domain, sa, err := sockaddr(addr)
	if err != nil {
		cb(err)
		return
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		cb(errors.Wrap(err, "socket"))
		return
	}
	unix.CloseOnExec(fd)
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	if err := s.attach(fd); err != nil {
		unix.Close(fd)
		cb(err)
		return
	}

	log := s.log.WithFields(logrus.Fields{"fd": fd, "addr": addr.String()})
	err = unix.Connect(fd, sa)
	switch {
	case err == nil:
		log.Debug("Connected")
		cb(nil)
		return
	case err != unix.EINPROGRESS:
		cb(errors.Wrapf(err, "connect %s", addr))
		return
	}

	// The descriptor turns writable once the connect settled either way.
	err = s.reactor.Write(s, nil, func(op *ioreactor.Operation) {
		if op.Err != nil {
			cb(errors.Wrapf(op.Err, "connect %s", addr))
			return
		}
		soErr, err := unix.GetsockoptInt(op.Conn.FD(), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			cb(errors.Wrap(err, "getsockopt SO_ERROR"))
			return
		}
		if soErr != 0 {
			cb(errors.Wrapf(unix.Errno(soErr), "connect %s", addr))
			return
		}
		log.Debug("Connected")
		cb(nil)
	})
	if err != nil {
		cb(err)
	}
}

func sockaddr(addr *net.TCPAddr) (int, unix.Sockaddr, error) {
	if addr == nil {
		return 0, nil, errors.New("transport: nil address")
	}
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa, nil
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip6)
		return unix.AF_INET6, sa, nil
	}
	return 0, nil, errors.Errorf("transport: invalid address %s", addr)
}

func (s *Socket) DoRead(p []byte) (int, error) {
	if e := s.tls.Load(); e != nil {
		return e.read(p)
	}
	return s.FDConn.DoRead(p)
}

func (s *Socket) DoWrite(p []byte) (int, error) {
	if e := s.tls.Load(); e != nil {
		return e.write(p)
	}
	return s.FDConn.DoWrite(p)
}

// Buffered reports whether decrypted data may be waiting inside the TLS
// engine.
func (s *Socket) Buffered() bool {
	if e := s.tls.Load(); e != nil {
		return e.buffered()
	}
	return false
}

// TLSEnabled reports whether the handshake completed and TLS carries the
// socket's transfers.
func (s *Socket) TLSEnabled() bool {
	e := s.tls.Load()
	return e != nil && e.ready.Load()
}

func (s *Socket) Close() error {
	if e := s.tls.Swap(nil); e != nil {
		e.raw.close()
	}
	return s.FDConn.Close()
}
