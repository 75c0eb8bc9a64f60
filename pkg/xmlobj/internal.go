package xmlobj

import (
	"strconv"
)

// Namespaces used only for in-process signaling. The parser rejects them
// on input, so a peer cannot forge these events.
const (
	InternalErrorNS = "internal-error"
	InternalTimerNS = "internal-timer"
)

// Internal error element names.
const (
	ParseErrorName = "parse-error"
	RxErrorName    = "rx-error"
	TxErrorName    = "tx-error"
)

const TimeoutName = "timeout"

// IsInternalNamespace reports whether ns is reserved for internal events.
func IsInternalNamespace(ns string) bool {
	return ns == InternalErrorNS || ns == InternalTimerNS
}

// NewInternalError builds an internal error event. errnum is an
// implementation code, zero when there is none.
func NewInternalError(name string, errnum int, text string) *Object {
	o := New(name, InternalErrorNS, true)
	o.SetAttr("errnum", strconv.Itoa(errnum))
	if text != "" {
		o.SetAttr("text", text)
	}
	return o
}

func IsInternalError(o *Object) bool {
	return o.Valid() && o.namespace == InternalErrorNS
}

// NewTimeout builds the event delivered when the timer id fires.
func NewTimeout(id string) *Object {
	return New(TimeoutName, InternalTimerNS, true).SetAttr("id", id)
}

// TimeoutID returns the timer id of a timeout event.
func TimeoutID(o *Object) (string, bool) {
	if !o.Is(TimeoutName, InternalTimerNS) {
		return "", false
	}
	return o.Attr("id"), true
}
