// Package xmppsession runs an XMPP client session: address discovery,
// connect with fallback, stream negotiation and stanza dispatch to an
// ordered chain of modules.
package xmppsession

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xing15037290/uxmpp-sub000/pkg/ioreactor"
	"github.com/xing15037290/uxmpp-sub000/pkg/timer"
	"github.com/xing15037290/uxmpp-sub000/pkg/transport"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmlstream"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
)

// Reserved timeout ids.
const (
	timeoutClose       = "close"
	timeoutStopSession = "stop_session"
)

const resolveTimeout = 15 * time.Second

type Session struct {
	reactor  *ioreactor.Reactor
	timers   *timer.Service
	resolver Resolver
	log      logrus.FieldLogger

	mu       sync.Mutex
	state    State
	cfg      Config
	sock     *transport.Socket
	stream   *xmlstream.Stream
	aborted  bool
	streamID string
	from     string
	features []*xmlobj.Object
	jid      xmppcore.JID
	bindID   string
	err      *StreamError

	chainMu   sync.Mutex
	modules   []Module
	listeners []Listener
}

// New creates a closed session driven by reactor and timers.
func New(reactor *ioreactor.Reactor, timers *timer.Service, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		reactor:  reactor,
		timers:   timers,
		resolver: &DNSResolver{},
		log:      log,
	}
}

// SetResolver replaces the address resolver used by later runs.
func (s *Session) SetResolver(r Resolver) {
	s.mu.Lock()
	s.resolver = r
	s.mu.Unlock()
}

// Run connects and runs the session until it closes. It returns the
// error that ended the session, if any; the session is closed again when
// Run returns.
func (s *Session) Run(cfg Config) error {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return ErrNotClosed
	}
	s.cfg = cfg
	s.err = nil
	s.aborted = false
	resolver := s.resolver
	s.mu.Unlock()

	if !s.changeState(StateConnecting) {
		return ErrNotClosed
	}
	defer s.finish()

	log := s.log.WithField("domain", cfg.Domain)
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	addrs, err := resolveAddresses(ctx, resolver, cfg, log)
	cancel()
	if err != nil {
		log.Warnf("Unable to resolve server address: %v", err)
		s.setError(&StreamError{AppError: AppErrorResolve, Text: err.Error()})
		return s.result()
	}

	sock := s.connect(addrs, cfg.ConnectTimeout, log)
	if sock == nil {
		if !s.isAborted() {
			s.setError(&StreamError{AppError: AppErrorConnect})
		}
		return s.result()
	}
	defer sock.Close()

	stream := xmlstream.New(xmlstream.Config{
		Timers:           s.timers,
		Log:              s.log,
		RootName:         "stream",
		RootNamespace:    xmppcore.JabberStreamsNS,
		DefaultNamespace: xmppcore.JabberClientNS,
		Handler:          s.onStreamObject,
	})
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return s.result()
	}
	s.sock, s.stream = sock, stream
	s.mu.Unlock()

	if cfg.NegotiationTimeout > 0 {
		stream.SetTimeout(timeoutClose, cfg.NegotiationTimeout)
	}
	if err := stream.Run(sock, sock, xmppcore.NewStreamHeader(cfg.Domain)); err != nil {
		log.Errorf("Unable to run stream: %v", err)
	}
	return s.result()
}

func (s *Session) connect(addrs []*net.TCPAddr, timeout time.Duration, log logrus.FieldLogger) *transport.Socket {
	for _, addr := range addrs {
		if s.isAborted() {
			return nil
		}
		sock := transport.NewSocket(s.reactor, s.log)
		done := make(chan error, 1)
		sock.Connect(addr, func(err error) { done <- err })

		var err error
		select {
		case err = <-done:
		case <-time.After(timeout):
			err = errors.Errorf("connect %s: timed out after %v", addr, timeout)
		}
		if err == nil {
			log.Infof("Connected to %s", addr)
			return sock
		}
		log.Infof("Connection attempt failed: %v", err)
		sock.Close()
	}
	return nil
}

func (s *Session) finish() {
	s.changeState(StateClosed)
	s.mu.Lock()
	s.sock = nil
	s.stream = nil
	s.streamID = ""
	s.from = ""
	s.features = nil
	s.jid = xmppcore.JID{}
	s.bindID = ""
	s.mu.Unlock()
}

func (s *Session) result() error {
	if err := s.LastError(); err != nil {
		return err
	}
	return nil
}

func (s *Session) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Stop ends the session. A fast stop drops the transport at once; a
// graceful one closes the stream and waits for the peer to do the same,
// at most Config.StopTimeout.
func (s *Session) Stop(fast bool) {
	s.mu.Lock()
	stream, state, grace := s.stream, s.state, s.cfg.StopTimeout
	if stream == nil {
		s.aborted = state != StateClosed
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if fast {
		stream.Stop()
		return
	}
	switch state {
	case StateClosing, StateClosed:
		return
	case StateConnecting:
		stream.Stop()
		return
	}
	if !s.changeState(StateClosing) {
		return
	}
	stream.Write(xmppcore.NewStreamEnd())
	stream.SetTimeout(timeoutStopSession, grace)
}

// changeState moves the session to state if the transition is legal and
// then notifies the listeners in registration order.
func (s *Session) changeState(state State) bool {
	s.mu.Lock()
	old := s.state
	if !legalTransition(old, state) {
		s.mu.Unlock()
		s.log.Errorf("Illegal session state transition %s -> %s", old, state)
		return false
	}
	s.state = state
	s.mu.Unlock()

	stateTransitions.WithLabelValues(state.String()).Inc()
	s.log.Debugf("Session state %s -> %s", old, state)
	for _, l := range s.listenerList() {
		l.OnStateChange(s, state, old)
	}
	return true
}

// setError records err unless an earlier error is already recorded.
func (s *Session) setError(err *StreamError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// JID is the address bound to the session.
func (s *Session) JID() xmppcore.JID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jid
}

func (s *Session) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

// From is the peer address announced in the stream header.
func (s *Session) From() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.from
}

// Features returns the features of the last stream header.
func (s *Session) Features() []*xmlobj.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*xmlobj.Object(nil), s.features...)
}

func (s *Session) LastError() *StreamError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) HaveError() bool {
	return s.LastError() != nil
}

// AppError is the application error code of the last error, "" when
// there is none or when the peer sent a stream error.
func (s *Session) AppError() string {
	if err := s.LastError(); err != nil {
		return err.AppError
	}
	return ""
}

func (s *Session) currentStream() *xmlstream.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// SendStanza writes obj on the stream. It returns false when the session
// has no running stream.
func (s *Session) SendStanza(obj *xmlobj.Object) bool {
	stream := s.currentStream()
	if stream == nil {
		s.log.Warn("Send on a session without stream")
		return false
	}
	if !stream.Write(obj) {
		return false
	}
	stanzasTotal.WithLabelValues("tx").Inc()
	return true
}

// SetTimeout arms a named timeout; its event is offered to the modules.
func (s *Session) SetTimeout(id string, d time.Duration) {
	if id == timeoutClose || id == timeoutStopSession {
		s.log.Warnf("Timeout id %q is reserved", id)
		return
	}
	if stream := s.currentStream(); stream != nil {
		stream.SetTimeout(id, d)
	}
}

func (s *Session) CancelTimeout(id string) bool {
	if stream := s.currentStream(); stream != nil {
		return stream.CancelTimeout(id)
	}
	return false
}

// RestartStream discards the parser state and sends a new stream header,
// as required after TLS and SASL negotiation.
func (s *Session) RestartStream() {
	s.mu.Lock()
	stream, domain := s.stream, s.cfg.Domain
	s.mu.Unlock()
	if stream == nil {
		return
	}
	stream.Reset()
	stream.Write(xmppcore.NewStreamHeader(domain))
}

// TLSEnabled reports whether the current transport runs over TLS.
func (s *Session) TLSEnabled() bool {
	s.mu.Lock()
	sock := s.sock
	s.mu.Unlock()
	return sock != nil && sock.TLSEnabled()
}

// StartTLS upgrades the transport in place and restarts the stream.
// cb runs once with the outcome; on failure the session stops with a
// tls-error.
func (s *Session) StartTLS(cb func(error)) {
	s.mu.Lock()
	stream, sock, cfg := s.stream, s.sock, s.cfg
	s.mu.Unlock()
	if stream == nil || sock == nil {
		cb(ErrNoStream)
		return
	}

	tlsCfg := &tls.Config{}
	if cfg.TLSConfig != nil {
		tlsCfg = cfg.TLSConfig.Clone()
	}
	if tlsCfg.ServerName == "" {
		tlsCfg.ServerName = cfg.Domain
	}

	stream.SuspendRead()
	sock.EnableTLS(tlsCfg, func(err error) {
		if err != nil {
			s.log.Warnf("STARTTLS failed: %v", err)
			s.setError(&StreamError{AppError: AppErrorTLS, Text: err.Error()})
			stream.Stop()
			cb(err)
			return
		}
		s.log.Debug("Transport upgraded to TLS")
		s.RestartStream()
		cb(nil)
	})
}

func (s *Session) onStreamObject(_ *xmlstream.Stream, obj *xmlobj.Object) {
	if obj.Part() == xmlobj.PartAll && !xmlobj.IsInternalError(obj) && obj.Namespace() != xmlobj.InternalTimerNS {
		stanzasTotal.WithLabelValues("rx").Inc()
	}
	if s.processXMLObject(obj) {
		return
	}
	for _, m := range s.moduleChain() {
		if m.ProcessXMLObject(s, obj) {
			return
		}
	}
	s.unhandled(obj)
}

// processXMLObject handles what the session itself owns. It returns true
// when obj must not reach the modules.
func (s *Session) processXMLObject(obj *xmlobj.Object) bool {
	s.mu.Lock()
	stream, state, grace := s.stream, s.state, s.cfg.StopTimeout
	s.mu.Unlock()
	if stream == nil {
		return true
	}

	switch {
	case xmlobj.IsInternalError(obj):
		if state != StateClosing {
			s.log.Warnf("Stream failed: %s %s", obj.Name(), obj.Attr("text"))
			s.setError(&StreamError{AppError: appErrorForInternal(obj.Name()), Text: obj.Attr("text")})
		}
		if obj.Name() == xmlobj.ParseErrorName && state != StateClosing && s.changeState(StateClosing) {
			// RFC 6120  4.9.3.1
			stream.Write(xmlobj.MustMarshal(xmppcore.StreamError{Condition: xmppcore.StreamErrorConditionBadFormat}))
			stream.Write(xmppcore.NewStreamEnd())
			stream.Drain(grace)
			return true
		}
		stream.Stop()
		return true

	case xmppcore.IsStreamError(obj):
		s.log.Warnf("Received stream error: %s", obj)
		s.setError(&StreamError{Element: obj})
		s.Stop(false)
		return true

	case xmppcore.IsStreamEnd(obj):
		if state != StateClosing && s.changeState(StateClosing) {
			stream.Write(xmppcore.NewStreamEnd())
		}
		stream.Drain(grace)
		return true

	case xmppcore.IsStreamStart(obj):
		s.mu.Lock()
		s.streamID = obj.Attr("id")
		s.from = obj.Attr("from")
		s.features = nil
		s.bindID = ""
		s.mu.Unlock()
		s.log.WithField("stream", obj.Attr("id")).Debug("Stream opened")
		if state == StateConnecting || state == StateNegotiating {
			s.changeState(StateNegotiating)
		}
		return true

	case xmppcore.IsStreamFeatures(obj):
		features := append([]*xmlobj.Object(nil), obj.Children()...)
		s.mu.Lock()
		s.features = features
		s.mu.Unlock()
		for _, l := range s.listenerList() {
			l.OnFeatures(s, features)
		}
		return false
	}

	if id, ok := xmlobj.TimeoutID(obj); ok {
		switch id {
		case timeoutClose:
			s.log.Warn("Session negotiation timed out")
			s.setError(&StreamError{AppError: AppErrorTimeout})
			stream.Stop()
			return true
		case timeoutStopSession:
			stream.Stop()
			return true
		}
		return false
	}

	if state == StateNegotiating {
		return s.bindResult(stream, obj)
	}
	return false
}

func (s *Session) bindResult(stream *xmlstream.Stream, obj *xmlobj.Object) bool {
	iq, ok := xmppcore.AsIQ(obj)
	s.mu.Lock()
	bindID := s.bindID
	s.mu.Unlock()
	if !ok || bindID == "" || iq.ID() != bindID {
		return false
	}
	if iq.Type() != xmppcore.IQTypeResult {
		s.log.Errorf("Resource binding refused: %s", obj)
		return false
	}
	payload := iq.Payload()
	var res xmppcore.BindIQResult
	if payload == nil || payload.Unmarshal(&res) != nil || res.JID == nil {
		s.log.Errorf("Malformed bind result: %s", obj)
		return false
	}

	s.mu.Lock()
	s.jid = *res.JID
	s.bindID = ""
	s.mu.Unlock()
	stream.CancelTimeout(timeoutClose)
	s.log.WithField("jid", res.JID.Full()).Info("Resource bound")
	s.changeState(StateBound)
	return true
}

func (s *Session) unhandled(obj *xmlobj.Object) {
	if iq, ok := xmppcore.AsIQ(obj); ok && iq.IsRequest() {
		s.log.Debugf("Rejecting unhandled iq %s", iq.ID())
		s.SendStanza(iq.ErrorReply(xmppcore.StanzaErrorTypeCancel,
			xmppcore.StanzaErrorConditionServiceUnavailable).Object())
		return
	}

	s.mu.Lock()
	state, bindID, resource := s.state, s.bindID, s.cfg.Resource
	canBind := xmppcore.FindFeature(s.features, "bind", xmppcore.BindNS) != nil
	s.mu.Unlock()
	if state != StateNegotiating || !canBind || bindID != "" {
		return
	}

	id, err := xmppcore.NewID()
	if err != nil {
		s.log.Errorf("Unable to generate bind id: %v", err)
		return
	}
	iq, err := xmppcore.NewIQ(xmppcore.IQTypeSet, id, nil, xmppcore.BindIQSet{Resource: resource})
	if err != nil {
		s.log.Errorf("Unable to build bind request: %v", err)
		return
	}
	s.mu.Lock()
	s.bindID = id
	s.mu.Unlock()
	s.SendStanza(iq.Object())
}
