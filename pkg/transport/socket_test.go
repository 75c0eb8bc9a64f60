//go:build unix

package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xing15037290/uxmpp-sub000/pkg/ioreactor"
)

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("callback not called")
		return nil
	}
}

func connect(t *testing.T, r *ioreactor.Reactor, addr net.Addr) *Socket {
	s := NewSocket(r, nil)
	t.Cleanup(func() { s.Close() })
	done := make(chan error, 1)
	s.Connect(addr.(*net.TCPAddr), func(err error) { done <- err })
	require.NoError(t, waitErr(t, done))
	return s
}

func echoServer(t *testing.T, wrap func(net.Conn) net.Conn) net.Listener {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			if wrap != nil {
				c = wrap(c)
			}
			go func() {
				defer c.Close()
				io.Copy(c, c)
			}()
		}
	}()
	return l
}

func roundTrip(t *testing.T, s *Socket, msg string) string {
	t.Helper()
	written := make(chan error, 1)
	require.NoError(t, s.Write([]byte(msg), func(op *ioreactor.Operation) { written <- op.Err }))
	require.NoError(t, waitErr(t, written))

	var got []byte
	buf := make([]byte, 64)
	for len(got) < len(msg) {
		read := make(chan error, 1)
		require.NoError(t, s.Read(buf, func(op *ioreactor.Operation) {
			got = append(got, op.Data()...)
			read <- op.Err
		}))
		require.NoError(t, waitErr(t, read))
	}
	return string(got)
}

func TestSocketConnectAndEcho(t *testing.T) {
	r := newReactor(t)
	l := echoServer(t, nil)

	s := connect(t, r, l.Addr())
	assert.False(t, s.TLSEnabled())
	assert.Equal(t, "ping", roundTrip(t, s, "ping"))
}

func TestSocketConnectRefused(t *testing.T) {
	r := newReactor(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	s := NewSocket(r, nil)
	defer s.Close()
	done := make(chan error, 1)
	s.Connect(addr, func(err error) { done <- err })
	assert.Error(t, waitErr(t, done))
}

func TestSocketConnectTwice(t *testing.T) {
	r := newReactor(t)
	l := echoServer(t, nil)
	s := connect(t, r, l.Addr())

	done := make(chan error, 1)
	s.Connect(l.Addr().(*net.TCPAddr), func(err error) { done <- err })
	assert.Error(t, waitErr(t, done))
}

func selfSigned(t *testing.T) tls.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestSocketTLSEcho(t *testing.T) {
	r := newReactor(t)
	cfg := &tls.Config{Certificates: []tls.Certificate{selfSigned(t)}}
	l := echoServer(t, func(c net.Conn) net.Conn { return tls.Server(c, cfg) })

	s := connect(t, r, l.Addr())
	done := make(chan error, 1)
	s.EnableTLS(&tls.Config{InsecureSkipVerify: true}, func(err error) { done <- err })
	require.NoError(t, waitErr(t, done))
	assert.True(t, s.TLSEnabled())

	assert.Equal(t, "hello over tls", roundTrip(t, s, "hello over tls"))
	assert.Equal(t, "again", roundTrip(t, s, "again"))
}

func TestSocketTLSHandshakeFailure(t *testing.T) {
	r := newReactor(t)
	// A plain echo server reflects the ClientHello, which is not a valid
	// server response.
	l := echoServer(t, nil)

	s := connect(t, r, l.Addr())
	done := make(chan error, 1)
	s.EnableTLS(&tls.Config{InsecureSkipVerify: true}, func(err error) { done <- err })
	assert.Error(t, waitErr(t, done))
	assert.False(t, s.TLSEnabled())
}

func TestSocketEnableTLSUnconnected(t *testing.T) {
	r := newReactor(t)
	s := NewSocket(r, nil)
	done := make(chan error, 1)
	s.EnableTLS(&tls.Config{}, func(err error) { done <- err })
	assert.Error(t, waitErr(t, done))
}
