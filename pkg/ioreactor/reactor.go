// Package ioreactor multiplexes non-blocking I/O for any number of
// connections on a single worker goroutine.
//
// The reactor is readiness based: an operation is queued per connection
// and performed by the worker once poll(2) reports the descriptor ready.
// Each connection has one FIFO of reads and one FIFO of writes; across
// connections no ordering is given.
package ioreactor

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotRegistered = errors.New("ioreactor: connection is not registered")
	ErrClosed        = errors.New("ioreactor: reactor is closed")
	ErrBadConn       = errors.New("ioreactor: connection has no descriptor")
)

// Conn is the I/O handle the reactor drives. DoRead and DoWrite perform a
// single non-blocking transfer and return EAGAIN when it would block.
type Conn interface {
	FD() int
	DoRead(p []byte) (int, error)
	DoWrite(p []byte) (int, error)
}

// Buffered is implemented by connections that may hold readable data the
// descriptor does not report, e.g. decrypted TLS records. While Buffered
// returns true a queued read is attempted without waiting for poll.
type Buffered interface {
	Buffered() bool
}

// Callback is invoked on the worker goroutine when an operation completes
// or fails. It may queue new operations.
type Callback func(op *Operation)

// Operation is one queued read or write. Buf is owned by the caller and
// must stay untouched until the callback runs. An empty Buf is a readiness
// check: it completes, without any transfer, once the descriptor is
// readable (read) or writable (write).
type Operation struct {
	Conn Conn
	Buf  []byte
	// Offset is the number of bytes transferred so far.
	Offset int
	Err    error

	write bool
	cb    Callback
}

// Data returns the transferred bytes.
func (op *Operation) Data() []byte {
	return op.Buf[:op.Offset]
}

func (op *Operation) IsWrite() bool { return op.write }

type registration struct {
	conn   Conn
	fd     int
	reads  *queue.Queue
	writes *queue.Queue
	// gen changes on every cancel so the worker can tell that the
	// operation it is transferring was dropped meanwhile.
	gen     uint64
	removed bool
}

func (reg *registration) queueFor(write bool) *queue.Queue {
	if write {
		return reg.writes
	}
	return reg.reads
}

// Reactor is safe for concurrent use. Its mutex guards the registry only
// and is never held while a callback runs.
type Reactor struct {
	log logrus.FieldLogger

	mu       sync.Mutex
	registry map[Conn]*registration
	spin     bool
	closed   bool

	wakeR, wakeW int
	doneCh       chan struct{}
}

// Register adds c to the registry. Registering twice is a no-op.
func (r *Reactor) Register(c Conn) error {
	if c == nil || c.FD() < 0 {
		return ErrBadConn
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.registry[c]; ok {
		return nil
	}
	r.registry[c] = &registration{
		conn:   c,
		fd:     c.FD(),
		reads:  queue.New(),
		writes: queue.New(),
	}
	return nil
}

// Unregister drops every queued operation of c and removes it from the
// registry. No callback runs for the dropped operations.
func (r *Reactor) Unregister(c Conn) {
	r.mu.Lock()
	reg, ok := r.registry[c]
	if ok {
		reg.removed = true
		reg.gen++
		delete(r.registry, c)
	}
	r.mu.Unlock()
	if ok {
		r.wake()
	}
}

func (r *Reactor) Registered(c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.registry[c]
	return ok
}

// Read queues a read into buf.
func (r *Reactor) Read(c Conn, buf []byte, cb Callback) error {
	return r.enqueue(&Operation{Conn: c, Buf: buf, cb: cb})
}

// Write queues a write of buf. The callback runs once all of buf has been
// written or the write failed.
func (r *Reactor) Write(c Conn, buf []byte, cb Callback) error {
	return r.enqueue(&Operation{Conn: c, Buf: buf, write: true, cb: cb})
}

func (r *Reactor) enqueue(op *Operation) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	reg, ok := r.registry[op.Conn]
	if !ok {
		r.mu.Unlock()
		return ErrNotRegistered
	}
	q := reg.queueFor(op.write)
	q.Add(op)
	first := q.Length() == 1
	r.mu.Unlock()
	if first {
		r.wake()
	}
	return nil
}

// Cancel drops both queues of c. Operations queued before the call never
// see their callback; a callback already running still completes.
func (r *Reactor) Cancel(c Conn) {
	r.mu.Lock()
	reg, ok := r.registry[c]
	if ok {
		reg.reads = queue.New()
		reg.writes = queue.New()
		reg.gen++
	}
	r.mu.Unlock()
	if ok {
		r.wake()
	}
}

// Pending returns the number of queued reads and writes for c.
func (r *Reactor) Pending(c Conn) (reads, writes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.registry[c]; ok {
		return reg.reads.Length(), reg.writes.Length()
	}
	return 0, 0
}

// head returns the operation at the front of the requested queue together
// with the registration generation, or nil if there is none.
func (r *Reactor) head(reg *registration, write bool) (*Operation, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg.removed {
		return nil, 0
	}
	q := reg.queueFor(write)
	if q.Length() == 0 {
		return nil, 0
	}
	return q.Peek().(*Operation), reg.gen
}

// settle pops op if it is still the head of its queue. It reports false
// when op was cancelled while the worker was transferring it.
func (r *Reactor) settle(reg *registration, op *Operation, gen uint64, complete, spin bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg.removed || reg.gen != gen {
		return false
	}
	q := reg.queueFor(op.write)
	if q.Length() == 0 || q.Peek() != op {
		return false
	}
	if complete {
		q.Remove()
	}
	if spin {
		r.spin = true
	}
	return true
}

func (r *Reactor) complete(op *Operation) {
	dir := "read"
	if op.write {
		dir = "write"
	}
	result := "ok"
	if op.Err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(dir, result).Inc()
	if op.cb == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("fd", op.Conn.FD()).Errorf("I/O callback panicked: %v", rec)
		}
	}()
	op.cb(op)
}
