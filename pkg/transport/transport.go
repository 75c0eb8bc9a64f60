// Package transport provides reactor-driven connections: FDConn for any
// non-blocking descriptor and Socket for TCP with optional TLS.
package transport

import (
	"github.com/xing15037290/uxmpp-sub000/pkg/ioreactor"
)

// Conn is what the XML stream layer drives.
type Conn interface {
	ioreactor.Conn

	// Read queues a read into buf. A nil cb uses the rx callback.
	Read(buf []byte, cb ioreactor.Callback) error
	// Write queues a write of buf. A nil cb uses the tx callback.
	Write(buf []byte, cb ioreactor.Callback) error

	SetRxCallback(cb ioreactor.Callback)
	SetTxCallback(cb ioreactor.Callback)

	// Cancel drops every queued operation.
	Cancel()
	Close() error
}
