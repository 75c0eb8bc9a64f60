//go:build unix

package transport

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/xing15037290/uxmpp-sub000/pkg/ioreactor"
)

// FDConn wraps a descriptor owned by the connection.
type FDConn struct {
	reactor *ioreactor.Reactor
	log     logrus.FieldLogger
	// handle is the identity registered with the reactor. It is the
	// outermost type so that the reactor calls its DoRead/DoWrite.
	handle ioreactor.Conn

	mu   sync.Mutex
	fd   int
	rxCb ioreactor.Callback
	txCb ioreactor.Callback
}

var _ Conn = (*FDConn)(nil)

// NewFDConn takes ownership of fd, switches it to non-blocking mode and
// registers it with r.
func NewFDConn(r *ioreactor.Reactor, fd int, log logrus.FieldLogger) (*FDConn, error) {
	c := &FDConn{}
	c.init(r, log, c)
	if err := c.attach(fd); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *FDConn) init(r *ioreactor.Reactor, log logrus.FieldLogger, handle ioreactor.Conn) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c.reactor = r
	c.log = log
	c.handle = handle
	c.fd = -1
}

func (c *FDConn) attach(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return errors.Wrapf(err, "unable to set fd %d non-blocking", fd)
	}
	c.mu.Lock()
	c.fd = fd
	c.mu.Unlock()
	if err := c.reactor.Register(c.handle); err != nil {
		c.mu.Lock()
		c.fd = -1
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *FDConn) FD() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fd
}

func (c *FDConn) DoRead(p []byte) (int, error) {
	return unix.Read(c.FD(), p)
}

func (c *FDConn) DoWrite(p []byte) (int, error) {
	return unix.Write(c.FD(), p)
}

func (c *FDConn) SetRxCallback(cb ioreactor.Callback) {
	c.mu.Lock()
	c.rxCb = cb
	c.mu.Unlock()
}

func (c *FDConn) SetTxCallback(cb ioreactor.Callback) {
	c.mu.Lock()
	c.txCb = cb
	c.mu.Unlock()
}

func (c *FDConn) onRx(op *ioreactor.Operation) {
	c.mu.Lock()
	cb := c.rxCb
	c.mu.Unlock()
	if cb != nil {
		cb(op)
	}
}

func (c *FDConn) onTx(op *ioreactor.Operation) {
	c.mu.Lock()
	cb := c.txCb
	c.mu.Unlock()
	if cb != nil {
		cb(op)
	}
}

func (c *FDConn) Read(buf []byte, cb ioreactor.Callback) error {
	if cb == nil {
		cb = c.onRx
	}
	return c.reactor.Read(c.handle, buf, cb)
}

func (c *FDConn) Write(buf []byte, cb ioreactor.Callback) error {
	if cb == nil {
		cb = c.onTx
	}
	return c.reactor.Write(c.handle, buf, cb)
}

func (c *FDConn) Cancel() {
	c.reactor.Cancel(c.handle)
}

// Close unregisters the connection and closes its descriptor.
func (c *FDConn) Close() error {
	c.reactor.Unregister(c.handle)
	c.mu.Lock()
	fd := c.fd
	c.fd = -1
	c.mu.Unlock()
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}
