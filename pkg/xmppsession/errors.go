package xmppsession

import (
	"github.com/pkg/errors"

	"github.com/xing15037290/uxmpp-sub000/pkg/xmlobj"
	"github.com/xing15037290/uxmpp-sub000/pkg/xmppcore"
)

var (
	ErrNotClosed = errors.New("xmppsession: session is not closed")
	ErrNoStream  = errors.New("xmppsession: no running stream")
)

// Application error codes reported by a session.
const (
	AppErrorResolve = "resolve-error"
	AppErrorConnect = "connect-failed"
	AppErrorTimeout = "timeout"
	AppErrorParse   = "parse-error"
	AppErrorRx      = "rx-error"
	AppErrorTx      = "tx-error"
	AppErrorTLS     = "tls-error"
)

// StreamError is why a session ended. Either AppError is set for a local
// failure or Element holds the stream error received from the peer.
type StreamError struct {
	AppError string
	Element  *xmlobj.Object
	Text     string
}

func (e *StreamError) Error() string {
	if e.Element != nil {
		msg := "stream error"
		if cond := xmppcore.StreamErrorConditionOf(e.Element); cond != "" {
			msg += ": " + cond
		}
		if text := xmppcore.StreamErrorText(e.Element); text != "" {
			msg += " (" + text + ")"
		}
		return msg
	}
	if e.Text != "" {
		return e.AppError + ": " + e.Text
	}
	return e.AppError
}

func appErrorForInternal(name string) string {
	switch name {
	case xmlobj.ParseErrorName:
		return AppErrorParse
	case xmlobj.TxErrorName:
		return AppErrorTx
	}
	return AppErrorRx
}
