//go:build !unix

package ioreactor

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// New returns an error on platforms without poll(2).
func New(log logrus.FieldLogger) (*Reactor, error) {
	return nil, errors.New("ioreactor: this platform is not supported")
}

func (r *Reactor) Close() error { return nil }

func (r *Reactor) wake() {}
