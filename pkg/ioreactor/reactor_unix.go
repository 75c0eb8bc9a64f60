//go:build unix

package ioreactor

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// New creates a reactor and starts its worker.
func New(log logrus.FieldLogger) (*Reactor, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, errors.Wrap(err, "ioreactor: unable to create wake pipe")
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, errors.Wrap(err, "ioreactor: unable to set wake pipe non-blocking")
		}
	}
	r := &Reactor{
		log:      log,
		registry: make(map[Conn]*registration),
		wakeR:    p[0],
		wakeW:    p[1],
		doneCh:   make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

// Close stops the worker, waits for it and releases the wake pipe.
// Queued operations are dropped without callbacks.
func (r *Reactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for c, reg := range r.registry {
		reg.removed = true
		delete(r.registry, c)
	}
	r.mu.Unlock()

	r.wake()
	<-r.doneCh
	unix.Close(r.wakeR)
	unix.Close(r.wakeW)
	return nil
}

func (r *Reactor) wake() {
	// A full pipe already guarantees a wake-up.
	_, _ = unix.Write(r.wakeW, []byte{0})
}

func (r *Reactor) drainWake() {
	var buf [64]byte
	for {
		if _, err := unix.Read(r.wakeR, buf[:]); err != nil {
			return
		}
	}
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}

func (r *Reactor) loop() {
	defer close(r.doneCh)

	var (
		fds      []unix.PollFd
		regs     []*registration
		buffered []*registration
	)
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		fds = append(fds[:0], unix.PollFd{Fd: int32(r.wakeR), Events: unix.POLLIN})
		regs = append(regs[:0], nil)
		buffered = buffered[:0]
		for _, reg := range r.registry {
			var events int16
			if reg.reads.Length() > 0 {
				events |= unix.POLLIN
				if b, ok := reg.conn.(Buffered); ok && b.Buffered() {
					buffered = append(buffered, reg)
				}
			}
			if reg.writes.Length() > 0 {
				events |= unix.POLLOUT
			}
			if events == 0 {
				continue
			}
			fds = append(fds, unix.PollFd{Fd: int32(reg.fd), Events: events})
			regs = append(regs, reg)
		}
		timeout := -1
		if r.spin || len(buffered) > 0 {
			timeout = 0
		}
		r.spin = false
		r.mu.Unlock()

		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			r.log.Errorf("poll failed: %v", err)
			return
		}
		if n > 0 && fds[0].Revents&unix.POLLIN != 0 {
			r.drainWake()
		}

		served := make(map[*registration]bool, len(buffered))
		for i := 1; n > 0 && i < len(fds); i++ {
			rev := fds[i].Revents
			if rev == 0 {
				continue
			}
			reg := regs[i]
			if rev&unix.POLLNVAL != 0 {
				r.fail(reg, unix.EBADF)
				continue
			}
			if fds[i].Events&unix.POLLIN != 0 && rev&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
				r.service(reg, false)
				served[reg] = true
			}
			if fds[i].Events&unix.POLLOUT != 0 && rev&(unix.POLLOUT|unix.POLLHUP|unix.POLLERR) != 0 {
				r.service(reg, true)
			}
		}
		for _, reg := range buffered {
			if !served[reg] {
				r.service(reg, false)
			}
		}
	}
}

// service performs exactly one transfer for the head operation of the
// requested queue.
func (r *Reactor) service(reg *registration, write bool) {
	op, gen := r.head(reg, write)
	if op == nil {
		return
	}

	var n int
	var err error
	complete, spin := true, false
	if len(op.Buf) > 0 {
		if write {
			n, err = op.Conn.DoWrite(op.Buf[op.Offset:])
		} else {
			n, err = op.Conn.DoRead(op.Buf[op.Offset:])
		}
		switch {
		case isWouldBlock(err):
			return
		case err != nil:
		case n == 0 && write:
			err = io.ErrShortWrite
		case n == 0:
			err = io.EOF
		case write:
			bytesTotal.WithLabelValues("write").Add(float64(n))
			op.Offset += n
			if op.Offset < len(op.Buf) {
				complete, spin = false, true
			}
		default:
			bytesTotal.WithLabelValues("read").Add(float64(n))
			spin = op.Offset+n == len(op.Buf)
			op.Offset += n
		}
	}
	if !r.settle(reg, op, gen, complete, spin) || !complete {
		return
	}
	op.Err = err
	r.complete(op)
}

// fail terminates the head operations of reg with err.
func (r *Reactor) fail(reg *registration, err error) {
	for _, write := range []bool{false, true} {
		op, gen := r.head(reg, write)
		if op == nil {
			continue
		}
		if r.settle(reg, op, gen, true, false) {
			op.Err = err
			r.complete(op)
		}
	}
}
