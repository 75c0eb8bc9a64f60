// Package xmlstream delivers the XML objects read from a connection in
// order on a single dispatch goroutine and serializes writes to it.
package xmlstream

import (
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/eapache/queue"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xing15037290/uxmpp-sub000/pkg/ioreactor"
	"github.com/xing15037290/uxmpp-sub000/pkg/timer"
	"github.com/xing15037290/uxmpp-sub000/pkg/transport"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
)

var ErrRunning = errors.New("xmlstream: already running")

const readBufferSize = 32 * 1024

// Handler receives every object of a running stream on the dispatch
// goroutine. It may call Write, Stop, Reset and the timeout methods.
type Handler func(s *Stream, obj *xmlobj.Object)

type Config struct {
	Timers *timer.Service
	Log    logrus.FieldLogger
	// RootName and RootNamespace name the element whose children are
	// delivered one by one.
	RootName      string
	RootNamespace string
	// DefaultNamespace is assumed in scope when serializing writes.
	DefaultNamespace string
	Handler          Handler
}

// Stream binds a receive and a transmit connection to a parser, a set of
// named timeouts and a dispatch queue. Wire data, parse and I/O errors
// and timeouts all reach the handler through the same ordered queue. The
// queue is unbounded so the parser never waits on the handler.
type Stream struct {
	cfg Config
	log logrus.FieldLogger

	mu        sync.Mutex
	drained   *sync.Cond
	ready     *sync.Cond
	running   bool
	reading   bool
	suspended bool
	draining  bool
	rx, tx    transport.Conn
	parser    *xmlobj.Parser
	rxBuf     []byte
	txBufs    map[*byte][]byte
	timeouts  map[string]*timer.Timer
	drain     *timer.Timer
	pending   *queue.Queue
}

func New(cfg Config) *Stream {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Handler == nil {
		cfg.Handler = func(*Stream, *xmlobj.Object) {}
	}
	s := &Stream{
		cfg:      cfg,
		log:      cfg.Log,
		timeouts: make(map[string]*timer.Timer),
	}
	s.drained = sync.NewCond(&s.mu)
	s.ready = sync.NewCond(&s.mu)
	return s
}

// Run sends initial, when valid, and delivers received objects until Stop
// is called and the queue is empty. It blocks for the life of the stream.
// rx and tx may be the same connection.
func (s *Stream) Run(rx, tx transport.Conn, initial *xmlobj.Object) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.reading = false
	s.suspended = false
	s.draining = false
	s.rx, s.tx = rx, tx
	s.rxBuf = make([]byte, readBufferSize)
	s.txBufs = make(map[*byte][]byte)
	s.pending = queue.New()
	s.parser = xmlobj.NewParser(s.cfg.RootName, s.cfg.RootNamespace, s.push, s.onParseError)
	s.mu.Unlock()

	dispatched := make(chan struct{})
	go s.dispatch(dispatched)

	rx.SetRxCallback(s.onRx)
	tx.SetTxCallback(s.onTx)
	if initial.Valid() {
		s.Write(initial)
	}
	s.read()

	<-dispatched

	s.mu.Lock()
	for len(s.txBufs) > 0 {
		s.drained.Wait()
	}
	for id, t := range s.timeouts {
		t.Close()
		delete(s.timeouts, id)
	}
	if s.drain != nil {
		s.drain.Close()
		s.drain = nil
	}
	parser := s.parser
	s.parser = nil
	s.rx, s.tx = nil, nil
	s.rxBuf = nil
	s.txBufs = nil
	s.mu.Unlock()

	rx.SetRxCallback(nil)
	tx.SetTxCallback(nil)
	parser.Close()
	return nil
}

func (s *Stream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop cancels outstanding I/O on both connections and ends the dispatch
// goroutine once the queue is empty. Objects received afterwards are
// dropped.
func (s *Stream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.draining = false
	s.ready.Broadcast()
	rx, tx := s.rx, s.tx
	// Cancelled writes never complete.
	s.txBufs = make(map[*byte][]byte)
	s.drained.Broadcast()
	for _, t := range s.timeouts {
		t.Cancel()
	}
	if s.drain != nil {
		s.drain.Cancel()
	}
	s.mu.Unlock()

	rx.Cancel()
	if tx != rx {
		tx.Cancel()
	}
}

// Drain stops reading and calls Stop once every queued write has been
// transmitted, or after d if the connection does not drain in time.
func (s *Stream) Drain(d time.Duration) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	if len(s.txBufs) == 0 {
		s.mu.Unlock()
		s.Stop()
		return
	}
	s.draining = true
	s.suspended = true
	if s.drain == nil {
		s.drain = s.cfg.Timers.NewTimer("drain")
	}
	// Armed under mu, where Stop cancels it.
	s.drain.Set(d, 0, func(time.Time) {
		s.log.Warn("Pending writes not drained in time, stopping")
		s.Stop()
	})
	n := len(s.txBufs)
	s.mu.Unlock()
	s.log.Debugf("Draining %d pending writes before stopping", n)
}

// Reset re-arms the parser for a new document and resumes reading. The
// dispatch goroutine keeps running.
func (s *Stream) Reset() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.suspended = false
	parser := s.parser
	s.mu.Unlock()

	parser.Reset()
	s.read()
}

// SuspendRead cancels the outstanding read until Reset. Used before the
// transport is upgraded in place.
func (s *Stream) SuspendRead() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.suspended = true
	s.reading = false
	rx, tx := s.rx, s.tx
	if rx == tx && len(s.txBufs) > 0 {
		s.log.Warnf("Dropping %d pending writes when suspending the stream", len(s.txBufs))
		s.txBufs = make(map[*byte][]byte)
		s.drained.Broadcast()
	}
	s.mu.Unlock()
	rx.Cancel()
}

// Write serializes obj and queues it on the transmit connection. It
// returns false when the stream is not running.
func (s *Stream) Write(obj *xmlobj.Object) bool {
	text := obj.Format(s.cfg.DefaultNamespace)
	if text == "" {
		s.log.Warn("Ignoring write of an empty object")
		return false
	}
	buf := []byte(text)

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.log.Warnf("Write on a stopped stream: %s", text)
		return false
	}
	s.txBufs[&buf[0]] = buf
	tx := s.tx
	s.mu.Unlock()

	s.log.Debugf("TX: %s", text)
	if err := tx.Write(buf, nil); err != nil {
		s.release(buf)
		s.log.Errorf("Unable to queue write: %v", err)
		return false
	}
	return true
}

// SetTimeout arms the named timeout. When it fires an internal timeout
// object carrying id is delivered to the handler.
func (s *Stream) SetTimeout(id string, d time.Duration) {
	if id == "" {
		s.log.Warn("Ignoring timeout without a name")
		return
	}
	s.mu.Lock()
	t := s.timeouts[id]
	if t == nil {
		t = s.cfg.Timers.NewTimer(id)
		s.timeouts[id] = t
	}
	s.mu.Unlock()
	t.Set(d, 0, func(time.Time) {
		s.push(xmlobj.NewTimeout(id))
	})
}

// CancelTimeout reports whether the named timeout was pending.
func (s *Stream) CancelTimeout(id string) bool {
	s.mu.Lock()
	t := s.timeouts[id]
	s.mu.Unlock()
	if t == nil {
		return false
	}
	return t.Cancel()
}

func (s *Stream) push(obj *xmlobj.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.pending.Add(obj)
	s.ready.Signal()
}

// dispatch delivers queued objects until the stream is stopped and the
// queue is empty.
func (s *Stream) dispatch(done chan<- struct{}) {
	defer close(done)
	s.mu.Lock()
	for {
		for s.running && s.pending.Length() == 0 {
			s.ready.Wait()
		}
		if s.pending.Length() == 0 {
			s.mu.Unlock()
			return
		}
		obj := s.pending.Remove().(*xmlobj.Object)
		s.mu.Unlock()
		s.deliver(obj)
		s.mu.Lock()
	}
}

func (s *Stream) deliver(obj *xmlobj.Object) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("Stream handler panicked: %v", r)
		}
	}()
	s.cfg.Handler(s, obj)
}

func (s *Stream) read() {
	s.mu.Lock()
	if !s.running || s.suspended || s.reading {
		s.mu.Unlock()
		return
	}
	s.reading = true
	rx, buf := s.rx, s.rxBuf
	s.mu.Unlock()

	if err := rx.Read(buf, nil); err != nil {
		s.mu.Lock()
		s.reading = false
		s.mu.Unlock()
		s.push(ioError(xmlobj.RxErrorName, err))
	}
}

func (s *Stream) onRx(op *ioreactor.Operation) {
	s.mu.Lock()
	s.reading = false
	parser := s.parser
	s.mu.Unlock()

	if op.Err != nil {
		s.log.Debugf("Read failed: %v", op.Err)
		s.push(ioError(xmlobj.RxErrorName, op.Err))
		return
	}
	data := op.Data()
	s.log.Debugf("RX: %s", data)
	if parser != nil {
		parser.Parse(data)
	}
	s.read()
}

func (s *Stream) onTx(op *ioreactor.Operation) {
	s.release(op.Buf)
	if op.Err != nil {
		s.log.Debugf("Write failed: %v", op.Err)
		s.push(ioError(xmlobj.TxErrorName, op.Err))
	}
}

func (s *Stream) release(buf []byte) {
	if len(buf) == 0 {
		return
	}
	s.mu.Lock()
	delete(s.txBufs, &buf[0])
	s.drained.Broadcast()
	stop := s.draining && s.running && len(s.txBufs) == 0
	s.mu.Unlock()
	if stop {
		s.Stop()
	}
}

func (s *Stream) onParseError(err error) {
	s.log.Warnf("Parse error: %v", err)
	s.push(xmlobj.NewInternalError(xmlobj.ParseErrorName, 0, err.Error()))
}

func ioError(name string, err error) *xmlobj.Object {
	if errors.Is(err, io.EOF) {
		return xmlobj.NewInternalError(name, 0, "connection closed by peer")
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return xmlobj.NewInternalError(name, int(errno), errno.Error())
	}
	return xmlobj.NewInternalError(name, 0, err.Error())
}
